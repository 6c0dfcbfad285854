package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrCredential    = errors.New("credential error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrDecode        = errors.New("decode error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureClass distinguishes failures that poison the whole run from failures
// confined to one item.
type FailureClass string

const (
	FailureItem     FailureClass = "item"
	FailureSystemic FailureClass = "systemic"
)

// Classify maps an error to its failure class. Credential and configuration
// problems repeat for every item, so they count against the run-wide budget.
func Classify(err error) FailureClass {
	if IsSystemic(err) {
		return FailureSystemic
	}
	return FailureItem
}

// IsSystemic reports whether err is a credential or configuration failure.
func IsSystemic(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCredential) || errors.Is(err, ErrConfiguration)
}

// Hint returns a short operator-facing suggestion for the error's marker.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCredential):
		return "check the configured credentials and their permissions"
	case errors.Is(err, ErrConfiguration):
		return "review the configuration file and stage overrides"
	case errors.Is(err, ErrDecode):
		return "the file could not be decoded; verify it with ffprobe"
	case errors.Is(err, ErrExternalTool):
		return "run `audiocorpus check` to verify external tools"
	case errors.Is(err, ErrNotFound):
		return "the owning record or input file is missing"
	case errors.Is(err, ErrTimeout):
		return "the operation timed out; retry or raise the timeout"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
