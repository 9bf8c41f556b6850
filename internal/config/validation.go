// Package config provides configuration management for the value backtest service.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("market", validateMarket)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return validateCrossField(cfg)
}

// validateEnvironment validates the environment field
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateLogLevel validates the log level field
func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// validateMarket validates a market filter value
func validateMarket(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "KOSPI", "KOSDAQ", "ALL":
		return true
	default:
		return false
	}
}

// validateCrossField performs validations that span multiple fields
func validateCrossField(cfg *Config) error {
	enabled := 0
	for _, src := range cfg.DataIngestion.Sources {
		if src.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one data source must be enabled")
	}
	return nil
}

// formatValidationErrors builds a readable error from validator output
func formatValidationErrors(errs validator.ValidationErrors) error {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(parts, "; "))
}
