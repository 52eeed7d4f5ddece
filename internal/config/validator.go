package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jacklatrobe/MCP-Guardian/internal/domain/mcpservice"
)

// Validate validates the GuardianConfig using struct tags and custom
// cross-field rules. Returns an error if validation fails, with actionable
// error messages.
func (c *GuardianConfig) Validate() error {
	// Create validator with required struct enabled
	v := validator.New(validator.WithRequiredStructEnabled())

	// Run struct validation (tags)
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field validation: seed services must independently satisfy the
	// domain's own business-rule validation (name pattern, check-frequency
	// floor), not just the shape checks a struct tag can express.
	if err := c.validateSeedServices(); err != nil {
		return err
	}

	return nil
}

// validateSeedServices runs mcpservice.Service.Validate against every seed
// entry, using polling.min_check_frequency as the floor. This mirrors the
// teacher's validateIdentityReferences: a cross-reference check a struct
// tag alone can't express, since it needs another section's runtime value.
func (c *GuardianConfig) validateSeedServices() error {
	seen := make(map[string]struct{}, len(c.Services))
	for i, seed := range c.Services {
		if _, exists := seen[seed.Name]; exists {
			return fmt.Errorf("services[%d]: duplicate service name: %s", i, seed.Name)
		}
		seen[seed.Name] = struct{}{}

		svc := mcpservice.Service{
			Name:                  seed.Name,
			UpstreamURL:           seed.UpstreamURL,
			Enabled:               seed.Enabled,
			CheckFrequencyMinutes: seed.CheckFrequencyMinutes,
		}
		if err := svc.Validate(c.Polling.MinCheckFrequency); err != nil {
			return fmt.Errorf("services[%d]: %w", i, err)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			msg := formatSingleValidationError(e)
			messages = append(messages, msg)
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
