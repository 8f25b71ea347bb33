// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package validation provides struct validation using go-playground/validator v10.
// It exposes a thread-safe singleton validator with custom validators for
// gateway-specific rules (RFC3339 timestamps, surface names).
//
// Example:
//
//	if err := validation.ValidateStruct(&input); err != nil {
//	    return apperr.New(apperr.CodeBadInput, err.Error())
//	}
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// surfaceNames mirrors models.ValidSurface without importing models
// (models carries validate tags that reference this package's validators).
var surfaceNames = map[string]bool{
	"admin":   true,
	"public":  true,
	"display": true,
	"poster":  true,
	"sponsor": true,
	"report":  true,
}

// GetValidator returns the singleton validator instance, registering the
// custom validators on first use. Thread-safe.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// rfc3339: strict RFC3339 timestamp (the datetime tag needs a layout param
		// at every use site; a named validator keeps struct tags short)
		_ = validate.RegisterValidation("rfc3339", func(fl validator.FieldLevel) bool {
			_, err := time.Parse(time.RFC3339, fl.Field().String())
			return err == nil
		})

		// surface: one of the six known client surfaces
		_ = validate.RegisterValidation("surface", func(fl validator.FieldLevel) bool {
			return surfaceNames[fl.Field().String()]
		})
	})

	return validate
}

// FieldError is a single field validation failure.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

// RequestValidationError aggregates field validation failures.
type RequestValidationError struct {
	fieldErrors []FieldError
}

// Errors returns the individual field errors.
func (ve *RequestValidationError) Errors() []FieldError {
	return ve.fieldErrors
}

// Error implements the error interface with a combined message.
func (ve *RequestValidationError) Error() string {
	if len(ve.fieldErrors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.fieldErrors))
	for i, fe := range ve.fieldErrors {
		messages[i] = fe.Message
	}
	return strings.Join(messages, "; ")
}

// ValidateStruct validates a struct using the singleton validator.
// Returns nil on success, *RequestValidationError otherwise.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{
			fieldErrors: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}},
		}
	}

	fieldErrors := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fieldErrors[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: translateError(fe),
		}
	}
	return &RequestValidationError{fieldErrors: fieldErrors}
}

// errorMessageTemplates maps validation tags to message templates.
var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"url":      "%s must be a valid URL",
	"rfc3339":  "%s must be an RFC3339 timestamp",
	"surface":  "%s must be a known surface name",
}

// errorMessageWithParam maps validation tags to templates that include the param.
var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"min":   "%s must have at least %s items or characters",
	"max":   "%s must have at most %s items or characters",
}

// translateError converts a validator.FieldError to a human-readable message.
func translateError(fe validator.FieldError) string {
	field := fe.Field()
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(template, field, fe.Param())
	}
	return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
}
