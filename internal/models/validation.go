package models

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors.
var (
	ErrMissingOperatorID  = errors.New("operator id is required")
	ErrInvalidRole        = errors.New("role must be one of client, developer, admin")
	ErrMissingRecipient   = errors.New("recipient id is required")
	ErrMissingMessageBody = errors.New("message body is required")
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (v ValidationError) Error() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationErrors aggregates multiple validation failures.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Add records a validation error for a field.
func (v *ValidationErrors) Add(field string, err error) {
	if err == nil {
		return
	}
	v.Errors = append(v.Errors, ValidationError{
		Field:   field,
		Message: err.Error(),
		Cause:   err,
	})
}

// Err returns nil if there are no errors, otherwise returns the validation error.
func (v *ValidationErrors) Err() error {
	if v == nil || len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Error implements error.
func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(v.Errors))
	for _, err := range v.Errors {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}

// Is allows errors.Is to match the cause of any contained error.
func (v *ValidationErrors) Is(target error) bool {
	if v == nil {
		return false
	}
	for _, err := range v.Errors {
		if err.Cause != nil && errors.Is(err.Cause, target) {
			return true
		}
	}
	return false
}

// Validate checks the operator identity. A missing token is not a
// validation error; it is reported by HasActiveSession at send time.
func (o Operator) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(o.ID) == "" {
		validation.Add("id", ErrMissingOperatorID)
	}
	if o.Role != "" && !o.Role.Valid() {
		validation.Add("role", ErrInvalidRole)
	}
	return validation.Err()
}

// Validate checks a send request before it reaches the transport.
func (r SendRequest) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(r.RecipientID) == "" {
		validation.Add("recipient_id", ErrMissingRecipient)
	}
	if strings.TrimSpace(r.Body) == "" {
		validation.Add("body", ErrMissingMessageBody)
	}
	return validation.Err()
}
