package errors

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// ValidationError carries field level problems for a rejected input.
type ValidationError struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func NewValidation(message string) *ValidationError {
	return &ValidationError{Message: message, Fields: map[string]string{}}
}

// Field adds a field problem and returns the receiver for chaining.
func (e *ValidationError) Field(name, problem string) *ValidationError {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[name] = problem
	return e
}

// HasFields reports whether any field problem was recorded.
func (e *ValidationError) HasFields() bool {
	return len(e.Fields) > 0
}

// OrNil returns nil when nothing was recorded, so callers can build one
// error across several checks.
func (e *ValidationError) OrNil() error {
	if e.HasFields() {
		return e
	}
	return nil
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// InvalidStateTransition is returned when a lifecycle move is not allowed
// from the entity's current state.
type InvalidStateTransition struct {
	Entity string `json:"entity"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *InvalidStateTransition) StatusCode() int { return http.StatusConflict }

// RequestExpired is returned when acting on a blood request whose expiry
// has passed, whether or not the sweeper has recorded it yet.
type RequestExpired struct {
	RequestID string    `json:"request_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e *RequestExpired) Error() string {
	return fmt.Sprintf("blood request %s expired at %s", e.RequestID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *RequestExpired) StatusCode() int { return http.StatusGone }

// DeliveryChannelFailure describes one channel failing for one recipient.
// It never aborts a dispatch.
type DeliveryChannelFailure struct {
	Channel string
	UserID  string
	Err     error
}

func (e *DeliveryChannelFailure) Error() string {
	return fmt.Sprintf("%s delivery to user %s failed: %v", e.Channel, e.UserID, e.Err)
}

func (e *DeliveryChannelFailure) Unwrap() error { return e.Err }

func (e *DeliveryChannelFailure) StatusCode() int { return http.StatusBadGateway }

// PersistenceFailure marks a record that could not be stored. For fan-out it
// is fatal for that one recipient only.
type PersistenceFailure struct {
	Entity string
	Err    error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Entity, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

func (e *PersistenceFailure) StatusCode() int { return http.StatusInternalServerError }
