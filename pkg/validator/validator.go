// Package validator provides request validation utilities
package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidationErrors is a slice of ValidationError
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	var messages []string
	for _, e := range ve {
		messages = append(messages, e.Message)
	}
	return strings.Join(messages, "; ")
}

// Init initializes the validator with custom validators
func Init() {
	once.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			validate = v

			// Register custom tag name function to use JSON tags
			v.RegisterTagNameFunc(func(fld reflect.StructField) string {
				name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
				if name == "-" {
					return ""
				}
				return name
			})

			// Register custom validators
			_ = v.RegisterValidation("issuestatus", validateIssueStatus)
			_ = v.RegisterValidation("ruletype", validateRuleType)
			_ = v.RegisterValidation("channeltype", validateChannelType)
			_ = v.RegisterValidation("severity", validateSeverity)
		}
	})
}

// Get returns the validator instance
func Get() *validator.Validate {
	Init()
	return validate
}

// ParseValidationErrors converts validator.ValidationErrors to ValidationErrors
func ParseValidationErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, e := range ve {
			field := e.Field()
			tag := e.Tag()

			validationErrors = append(validationErrors, ValidationError{
				Field:   field,
				Tag:     tag,
				Message: formatErrorMessage(field, tag, e.Param()),
			})
		}
	}

	return validationErrors
}

// formatErrorMessage creates a human-readable error message
func formatErrorMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return field + " must be at least " + param + " characters"
	case "max":
		return field + " must be at most " + param + " characters"
	case "oneof":
		return field + " must be one of: " + param
	case "url":
		return field + " must be a valid URL"
	case "issuestatus":
		return field + " must be a valid status (new, open, investigating, resolved, ignored, muted)"
	case "ruletype":
		return field + " must be a valid rule type (threshold, spike, new_error, critical)"
	case "channeltype":
		return field + " must be a valid channel type (email, webhook, slack, discord, teams)"
	case "severity":
		return field + " must be a valid severity (low, medium, high, critical)"
	case "gte":
		return field + " must be greater than or equal to " + param
	case "lte":
		return field + " must be less than or equal to " + param
	case "gt":
		return field + " must be greater than " + param
	case "lt":
		return field + " must be less than " + param
	default:
		return field + " is invalid"
	}
}

// Custom validators

func validateIssueStatus(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "new", "open", "investigating", "resolved", "ignored", "muted":
		return true
	}
	return false
}

func validateRuleType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "threshold", "spike", "new_error", "critical":
		return true
	}
	return false
}

func validateChannelType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "email", "webhook", "slack", "discord", "teams":
		return true
	}
	return false
}

func validateSeverity(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true // optional fields fall back to the computed severity
	}
	switch val {
	case "low", "medium", "high", "critical":
		return true
	}
	return false
}
