package flight

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a flight does not exist
	ErrNotFound = errors.New("flight not found")

	// ErrConflict is returned when a flight changed between read and write
	ErrConflict = errors.New("flight was modified concurrently")
)

// PreconditionError rejects an operation the flight's current state does not allow
type PreconditionError struct {
	Op        string
	FlightID  string
	Status    Status
	Phase     Phase
	IsInTower bool
	Expected  string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s flight %s: requires %s (status=%s, phase=%s, in_tower=%t)",
		e.Op, e.FlightID, e.Expected, e.Status, e.Phase, e.IsInTower)
}

func precondition(op string, f *Flight, expected string) error {
	return &PreconditionError{
		Op:        op,
		FlightID:  f.ID,
		Status:    f.Status,
		Phase:     f.Phase,
		IsInTower: f.IsInTower,
		Expected:  expected,
	}
}

// ValidationError rejects missing or malformed input before anything is written
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

func invalid(reason string, fields ...string) error {
	return &ValidationError{Fields: fields, Reason: reason}
}

// IsPrecondition reports whether err is a precondition violation
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// IsValidation reports whether err is an input validation failure
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
