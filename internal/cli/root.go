// Package cli implements hmsctl, the operator tool for accounts and lockouts.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/carepoint/server/internal/app"
	"github.com/carepoint/server/internal/config"
	"github.com/carepoint/server/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cliApp struct {
	stdout  io.Writer
	envFile string
	verbose bool
}

// open loads configuration and returns a migrated application.
func (a *cliApp) open(ctx context.Context) (*app.App, error) {
	if a.envFile != "" {
		_ = godotenv.Load(a.envFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := zap.NewNop()
	if a.verbose {
		log, err = logging.New("development", "debug")
		if err != nil {
			return nil, err
		}
	}
	return app.Open(ctx, cfg, log)
}

// NewRootCmd builds the hmsctl command tree.
func NewRootCmd(stdout io.Writer) *cobra.Command {
	a := &cliApp{stdout: stdout}

	root := &cobra.Command{
		Use:           "hmsctl",
		Short:         "Administer hospital backend accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log database and service activity to stderr")

	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newCreateAdminCmd(a))
	root.AddCommand(newUnlockCmd(a))
	root.AddCommand(newAccountsCmd(a))
	root.AddCommand(newPruneAttemptsCmd(a))
	return root
}
