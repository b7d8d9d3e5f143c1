package config

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested resource does not exist in the
// store, or exists only in another tenant.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update violates a uniqueness
// constraint.
var ErrConflict = errors.New("conflict")

// classify maps driver errors onto the store's sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE") {
		return ErrConflict
	}
	return err
}
