package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is the closed set of account roles.
type Role uint8

const (
	roleUnknown Role = iota
	RoleAdmin
	RoleDoctor
	RoleNurse
	RoleStaff
	RolePatient
)

// DefaultRole is the lowest-privilege role, assigned when none is requested.
const DefaultRole = RolePatient

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleDoctor, RoleNurse, RoleStaff, RolePatient}

// ParseRole maps a role name to a Role. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "doctor":
		return RoleDoctor, nil
	case "nurse":
		return RoleNurse, nil
	case "staff":
		return RoleStaff, nil
	case "patient":
		return RolePatient, nil
	}
	return roleUnknown, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleDoctor:
		return "doctor"
	case RoleNurse:
		return "nurse"
	case RoleStaff:
		return "staff"
	case RolePatient:
		return "patient"
	}
	return "unknown"
}

// Valid reports whether r is a member of the enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleNurse, RoleStaff, RolePatient:
		return true
	}
	return false
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", r)
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value stores the role by name.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", r)
	}
	return r.String(), nil
}

// Scan reads a role name written by Value.
func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	}
	return fmt.Errorf("cannot scan %T into Role", src)
}
