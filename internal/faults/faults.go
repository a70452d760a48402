// Package faults defines the error markers shared by the catalog, content
// store, swap executor, and rotation engine.
//
// Components wrap failures with Wrap so callers can classify them with
// errors.Is while the message still names the component and operation.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCatalogUnreachable  = errors.New("catalog unreachable")
	ErrNotFound            = errors.New("not found")
	ErrNoEligibleFile      = errors.New("no eligible file")
	ErrInsufficientBudget  = errors.New("insufficient storage budget")
	ErrDownloadFailed      = errors.New("download failed")
	ErrOutOfSpace          = errors.New("out of space")
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrNextNotReady        = errors.New("next item not ready")
	ErrRenameFailed        = errors.New("rename failed")
	ErrHalted              = errors.New("rotation halted")
	ErrConfiguration       = errors.New("configuration error")
	ErrValidation          = errors.New("validation error")
)

// Wrap tags err with marker and a "component: operation: message" detail.
// A nil marker is treated as ErrValidation.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrValidation
	}
	detail := buildDetail(component, operation, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Transient reports whether err is expected to clear on a later attempt.
func Transient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrCatalogUnreachable),
		errors.Is(err, ErrDownloadFailed),
		errors.Is(err, ErrInsufficientBudget),
		errors.Is(err, ErrNextNotReady):
		return true
	default:
		return false
	}
}

// Kind returns a short label for the first marker err carries.
func Kind(err error) string {
	markers := []struct {
		err  error
		name string
	}{
		{ErrCatalogUnreachable, "catalog_unreachable"},
		{ErrNotFound, "not_found"},
		{ErrNoEligibleFile, "no_eligible_file"},
		{ErrInsufficientBudget, "insufficient_budget"},
		{ErrOutOfSpace, "out_of_space"},
		{ErrDownloadFailed, "download_failed"},
		{ErrDuplicateIdentifier, "duplicate_identifier"},
		{ErrNextNotReady, "next_not_ready"},
		{ErrRenameFailed, "rename_failed"},
		{ErrHalted, "halted"},
		{ErrConfiguration, "configuration"},
		{ErrValidation, "validation"},
	}
	for _, m := range markers {
		if errors.Is(err, m.err) {
			return m.name
		}
	}
	if err == nil {
		return ""
	}
	return "unknown"
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{component, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "unspecified failure"
	}
	return strings.Join(parts, ": ")
}
