package core

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
)

// StringPtr returns a pointer to a string literal, for populating generated
// model fields.
func StringPtr(value string) *string {
	return &value
}

// BoolPtr returns a pointer to a bool literal.
func BoolPtr(value bool) *bool {
	return &value
}

// Int64Ptr returns a pointer to an int64 literal.
func Int64Ptr(value int64) *int64 {
	return &value
}

// Float64Ptr returns a pointer to a float64 literal.
func Float64Ptr(value float64) *float64 {
	return &value
}

// ConvertList renders a list value as a single comma-joined string, the wire
// form expected by list-typed query parameters. Non-list values are rendered
// as-is.
func ConvertList(value interface{}) string {
	switch v := value.(type) {
	case []string:
		return strings.Join(v, ",")
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", value)
	}
}

// EncodePathVars percent-encodes path segments for interpolation into a
// request path. Every reserved character is escaped, including slashes.
func EncodePathVars(vars ...string) []string {
	encoded := make([]string, len(vars))
	for i, v := range vars {
		encoded[i] = strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
	}
	return encoded
}

// DateTimeToString serializes a datetime as an RFC3339 string with a Z
// suffix.
func DateTimeToString(dateTime strfmt.DateTime) string {
	return strings.ReplaceAll(dateTime.String(), "+00:00", "Z")
}

// StringToDateTime parses an RFC3339 datetime string.
func StringToDateTime(value string) (strfmt.DateTime, error) {
	return strfmt.ParseDateTime(value)
}

// removeNullValues drops entries whose value is nil. On the wire an absent
// field and an explicit null are not the same thing; this core only ever
// sends absent.
func removeNullValues(input map[string]interface{}) map[string]interface{} {
	if input == nil {
		return nil
	}
	cleaned := make(map[string]interface{}, len(input))
	for key, value := range input {
		if value != nil {
			cleaned[key] = value
		}
	}
	return cleaned
}

// cleanupValue renders a header, query or form value as its wire string:
// lists become comma-joined, booleans lowercase literals.
func cleanupValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case []string, []interface{}:
		return ConvertList(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
