package config

import (
	"errors"
	"fmt"
)

var ErrMissingValue = errors.New("missing_value")

// ConfigError is fatal: the process must not start with it.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "config error"
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
