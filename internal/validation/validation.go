// Package validation provides input validation for the Sentra API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 256

// idRegex validates caller-assigned identifiers (transaction and user IDs).
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-]{1,64}$`)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidID checks a caller-assigned identifier: 1-64 chars of
// alphanumerics, underscores and hyphens.
func IsValidID(id string) bool {
	return idRegex.MatchString(id)
}

// SanitizeString trims whitespace, limits length, and strips null bytes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidLatitude reports whether lat is a usable latitude.
func ValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

// ValidLongitude reports whether lon is a usable longitude.
func ValidLongitude(lon float64) bool {
	return lon >= -180 && lon <= 180
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their errors.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidID checks that a field is a well-formed identifier.
func ValidID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidID(value) {
			return &ValidationError{Field: field, Message: "must be 1-64 chars of [a-zA-Z0-9_-]"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length.
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// PositiveAmount checks that an amount is strictly positive.
func PositiveAmount(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}

// Coordinates checks an optional latitude/longitude pair: both or neither
// must be present, and each within range.
func Coordinates(lat, lon *float64) func() *ValidationError {
	return func() *ValidationError {
		if lat == nil && lon == nil {
			return nil
		}
		if lat == nil || lon == nil {
			return &ValidationError{Field: "location", Message: "latitude and longitude must be provided together"}
		}
		if !ValidLatitude(*lat) {
			return &ValidationError{Field: "latitude", Message: "must be between -90 and 90"}
		}
		if !ValidLongitude(*lon) {
			return &ValidationError{Field: "longitude", Message: "must be between -180 and 180"}
		}
		return nil
	}
}
