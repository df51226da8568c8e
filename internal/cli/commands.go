package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()
			fmt.Fprintln(a.stdout, "Migrations applied.")
			return nil
		},
	}
}

func newCreateAdminCmd(a *cliApp) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account if it does not exist",
		Long: `Create an admin account. The password may also be supplied through
HMS_ADMIN_PASSWORD so it does not appear in shell history.

Examples:
  hmsctl create-admin --email admin@hospital.org --password 'S3cure!pass'
  HMS_ADMIN_PASSWORD='S3cure!pass' hmsctl create-admin --email admin@hospital.org`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("HMS_ADMIN_PASSWORD")
			}
			if strings.TrimSpace(email) == "" || password == "" {
				return fmt.Errorf("--email and --password (or HMS_ADMIN_PASSWORD) are required")
			}

			application, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			created, err := application.Auth.EnsureAdmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(a.stdout, "Admin %s created.\n", strings.ToLower(strings.TrimSpace(email)))
			} else {
				fmt.Fprintln(a.stdout, "Admin user already exists.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	return cmd
}

func newUnlockCmd(a *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock EMAIL",
		Short: "Clear failed login attempts and any lockout for an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Auth.Unlock(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Login attempts for %s reset.\n", args[0])
			return nil
		},
	}
}

func newPruneAttemptsCmd(a *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "prune-attempts",
		Short: "Delete idle login attempt records that hold no lock",
		Long: `Delete login attempt records untouched for ATTEMPT_RETENTION (default 24h)
that carry no active lock. The server also sweeps on its own as new emails
are tracked; this command is for running the sweep on a schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			n, err := application.Auth.PruneAttempts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Removed %d idle login attempt record(s).\n", n)
			return nil
		},
	}
}

func newAccountsCmd(a *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:     "accounts",
		Short:   "List accounts with role and lockout state",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			accounts, err := application.Auth.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Fprintln(a.stdout, "No accounts.")
				return nil
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EMAIL\tROLE\tFAILED\tLOCKED UNTIL\tLAST LOGIN")
			for _, acc := range accounts {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					acc.Email, acc.Role, acc.FailedAttempts, formatTime(acc.LockedUntil), formatTime(acc.LastLoginAt))
			}
			return tw.Flush()
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
