// Package faults defines the reconciliation error taxonomy. Failures are
// always scoped to the single group or record being processed; callers
// record them and keep going.
package faults

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// ValidationError reports a planned merge that would violate a store
// invariant. The group is aborted; other groups are unaffected.
type ValidationError struct {
	Strategy string
	GroupKey string
	Field    string
	Message  string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func NewValidationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	path := []string{}
	if e.Strategy != "" {
		path = append(path, fmt.Sprintf("strategy '%s'", e.Strategy))
	}
	if e.GroupKey != "" {
		path = append(path, fmt.Sprintf("group '%s'", e.GroupKey))
	}
	if e.Field != "" {
		path = append(path, fmt.Sprintf("field '%s'", e.Field))
	}

	if len(path) == 0 {
		return e.Message
	}

	return strings.Join(path, " -> ") + ": " + e.Message
}

func (e *ValidationError) AddStrategy(strategy string) *ValidationError {
	e.Strategy = strategy
	return e
}

func (e *ValidationError) AddGroupKey(key string) *ValidationError {
	e.GroupKey = key
	return e
}

func (e *ValidationError) AddField(field string) *ValidationError {
	e.Field = field
	return e
}

func (e *ValidationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("strategy", e.Strategy).AddMetaValue("group_key", e.GroupKey).AddMetaValue("field", e.Field)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports a contact id that no longer exists, usually
// because an earlier group already merged it away. Treated as a no-op.
type NotFoundError struct {
	ContactID int64
	Message   string
}

func NewNotFoundError(contactID int64) *NotFoundError {
	return &NotFoundError{ContactID: contactID, Message: "contact not found"}
}

func (e *NotFoundError) Error() string {
	if e.ContactID != 0 {
		return fmt.Sprintf("contact %d: %s", e.ContactID, e.Message)
	}
	return e.Message
}

func (e *NotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error()).AddMetaValue("contact_id", fmt.Sprintf("%d", e.ContactID))
}

func IsNotFoundError(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// StoreError reports a write the store rejected. The enclosing
// transaction rolls back; the group is reported failed and the run
// continues.
type StoreError struct {
	Op      string
	Message string
	cause   error
}

func NewStoreError(op string, cause error) *StoreError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &StoreError{Op: op, Message: msg, cause: cause}
}

func (e *StoreError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("store %s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.cause
}

func (e *StoreError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusInternalServerError, e.Error()).AddMetaValue("op", e.Op)
}

func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// IntegrityDefect describes a structural defect the repairer found but
// will not fix on its own, e.g. a detail row whose owning contact is
// gone. Reported for manual intervention.
type IntegrityDefect struct {
	Table    string `json:"table"`
	KeyValue int64  `json:"key_value"`
	Message  string `json:"message"`
}

func (d IntegrityDefect) String() string {
	return fmt.Sprintf("%s key=%d: %s", d.Table, d.KeyValue, d.Message)
}
