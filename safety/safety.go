// Package safety gates every clone operation against production misuse.
// Both the generic cloner and the specialized-systems orchestrator consult
// it before any read or write.
package safety

import (
	"errors"
	"fmt"

	"loftdata/config"
)

// ViolationError reports an attempted production misuse. It is always
// surfaced verbatim to the operator.
type ViolationError struct {
	Environment string
	Reason      string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("production safety violation on %s: %s", e.Environment, e.Reason)
}

// IsViolation reports whether err is (or wraps) a ViolationError.
func IsViolation(err error) bool {
	var v *ViolationError
	return errors.As(err, &v)
}

// ValidateCloneSource allows production sources only when they are strictly
// read-only. A production environment misconfigured to allow writes is an
// error to catch before any read proceeds.
func ValidateCloneSource(env config.Environment) error {
	if env.Type == config.EnvProduction && env.AllowWrites {
		return &ViolationError{
			Environment: env.Name,
			Reason:      "production source must be read-only (allowWrites=true)",
		}
	}
	return nil
}

// ValidateCloneTarget refuses production targets unconditionally. There is
// no override.
func ValidateCloneTarget(env config.Environment) error {
	if env.Type == config.EnvProduction || env.IsProduction {
		return &ViolationError{
			Environment: env.Name,
			Reason:      "production can never be a clone target",
		}
	}
	return nil
}

// ValidateDatabaseConnection checks that an environment carries usable
// credentials and consistent production flags before a connection is opened.
func ValidateDatabaseConnection(env config.Environment) error {
	if err := env.Validate(); err != nil {
		return err
	}
	if env.ServiceKey == "" && env.AnonKey == "" {
		return fmt.Errorf("environment %s has no credentials", env.Name)
	}
	if env.IsProduction && env.AllowWrites {
		return &ViolationError{
			Environment: env.Name,
			Reason:      "production environment allows writes",
		}
	}
	return nil
}
