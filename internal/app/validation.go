package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"scorecard/api/internal/schema"
)

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("scorecard_status", func(fl validator.FieldLevel) bool {
		_, ok := schema.ParseStatus(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("scorecard_strength", func(fl validator.FieldLevel) bool {
		_, ok := schema.ParseStrength(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("scorecard_node", func(fl validator.FieldLevel) bool {
		_, ok := schema.ParseNodeType(fl.Field().String())
		return ok
	})
	return v
}

// check runs struct validation and reports failures as a 400 with one entry
// per field.
func (s *Service) check(value any) error {
	err := s.validate.Struct(value)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	details := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fieldError{Field: fieldPath(fe.Namespace()), Rule: fe.Tag()})
	}
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", details)
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// decodeStrict decodes one JSON object and rejects unknown keys.
func decodeStrict(raw []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return domainError(http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body: "+err.Error(), nil)
	}
	return nil
}

func canonicalStatus(value string) string {
	status, _ := schema.ParseStatus(value)
	return string(status)
}

func canonicalStatusPtr(value *string) *string {
	if value == nil {
		return nil
	}
	status := canonicalStatus(*value)
	return &status
}
