// Package common contains general functions and types that are used by the
// various packages in the sdk-core module.
package common

import (
	"fmt"
	"strings"
)

// ConfigurationError reports an invalid credential or configuration value.
// It is returned synchronously from constructors and mutators and is never
// retried.
type ConfigurationError struct {
	// Field is the name of the offending configuration field, e.g. "url".
	Field string
	// Message describes the violated precondition.
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NewConfigurationError builds a ConfigurationError for the named field.
func NewConfigurationError(field string, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// HasBadFirstOrLastChar reports whether a credential string starts or ends
// with a curly bracket or a double quote. Values like that are almost always
// the result of copying a JSON snippet instead of the bare credential.
func HasBadFirstOrLastChar(value string) bool {
	if value == "" {
		return false
	}
	bad := `{}"`
	return strings.ContainsAny(value[:1], bad) || strings.ContainsAny(value[len(value)-1:], bad)
}

// ValidateCredential checks a credential string for the bracket/quote
// constraint and returns a ConfigurationError naming the field on violation.
func ValidateCredential(field, value string) error {
	if HasBadFirstOrLastChar(value) {
		return NewConfigurationError(field,
			"the value shouldn't start or end with curly brackets or quotes, remove any {, } and \" characters surrounding it")
	}
	return nil
}
