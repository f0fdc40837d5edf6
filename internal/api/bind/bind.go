// Package bind decodes request bodies into typed DTOs and validates them,
// aggregating every violation instead of failing fast.
package bind

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/smart-navigator/server/internal/api/respond"
	"github.com/smart-navigator/server/internal/auth"
)

var hhmmRange = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]-([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// Binder validates typed request DTOs. Construct one per process and share
// it; the underlying validator caches struct metadata.
type Binder struct {
	validate *validator.Validate
}

func New() *Binder {
	v := validator.New()

	// Report violations against the wire field name, not the Go field name.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return auth.ValidatePasswordStrength(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("hhmmrange", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value == "" || hhmmRange.MatchString(value)
	})
	_ = v.RegisterValidation("future", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(time.Time)
		if !ok {
			return false
		}
		return value.After(time.Now())
	})

	return &Binder{validate: v}
}

// RegisterStructRule attaches a struct-level validation (cross-field rules
// such as mutual exclusion) to the given DTO types.
func (b *Binder) RegisterStructRule(fn validator.StructLevelFunc, types ...any) {
	b.validate.RegisterStructValidation(fn, types...)
}

// Body decodes the JSON request body into dst and validates it. Unknown
// fields are dropped by struct decoding. The returned slice lists every
// violation; nil means the body is valid.
func (b *Binder) Body(r *http.Request, dst any) []respond.FieldError {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return []respond.FieldError{{Field: "body", Message: "request body is required", Type: "required"}}
		}
		return []respond.FieldError{{Field: "body", Message: "malformed JSON", Type: "json"}}
	}
	return b.Check(dst)
}

// Check validates an already-populated DTO.
func (b *Binder) Check(dst any) []respond.FieldError {
	err := b.validate.Struct(dst)
	if err == nil {
		return nil
	}

	var violations validator.ValidationErrors
	if !errors.As(err, &violations) {
		return []respond.FieldError{{Field: "body", Message: err.Error(), Type: "invalid"}}
	}

	fieldErrors := make([]respond.FieldError, 0, len(violations))
	for _, violation := range violations {
		fieldErrors = append(fieldErrors, respond.FieldError{
			Field:   fieldPath(violation.Namespace()),
			Message: messageFor(violation),
			Type:    violation.Tag(),
			Value:   violation.Value(),
		})
	}
	return fieldErrors
}

// All runs the per-part validation functions concurrently and merges their
// violations in call order.
func All(parts ...func() []respond.FieldError) []respond.FieldError {
	results := make([][]respond.FieldError, len(parts))

	var group errgroup.Group
	for i, part := range parts {
		group.Go(func() error {
			results[i] = part()
			return nil
		})
	}
	_ = group.Wait()

	var merged []respond.FieldError
	for _, result := range results {
		merged = append(merged, result...)
	}
	return merged
}

// fieldPath strips the DTO type name from a validator namespace, leaving the
// dotted wire path ("organizer.email").
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func messageFor(violation validator.FieldError) string {
	switch violation.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min":
		if violation.Kind() == reflect.String || violation.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items or characters", violation.Param())
		}
		return fmt.Sprintf("must be at least %s", violation.Param())
	case "max":
		if violation.Kind() == reflect.String || violation.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items or characters", violation.Param())
		}
		return fmt.Sprintf("must be at most %s", violation.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(violation.Param(), " ", ", "))
	case "latitude":
		return "must be between -90 and 90"
	case "longitude":
		return "must be between -180 and 180"
	case "password":
		return "must contain at least 8 characters with uppercase, lowercase, number and special character"
	case "hhmmrange":
		return "must match HH:MM-HH:MM"
	case "future":
		return "must be in the future"
	case "eqfield":
		return fmt.Sprintf("must match %s", violation.Param())
	case "gtfield":
		return fmt.Sprintf("must be after %s", violation.Param())
	case "ltfield":
		return fmt.Sprintf("must be before %s", violation.Param())
	case "eq":
		return fmt.Sprintf("must be %s", violation.Param())
	default:
		return fmt.Sprintf("failed %s validation", violation.Tag())
	}
}
