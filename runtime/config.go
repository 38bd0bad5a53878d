package runtime

import (
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Package-level validator instance
var validate *validator.Validate

var plugIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func init() {
	validate = validator.New()

	registerCustomValidators()
}

// InitializeConfig prepares a provider config struct:
// defaults → value merging → validation in one call.
func InitializeConfig(config any, rawValues map[string]any) error {
	if err := ApplyDefaults(config); err != nil {
		slog.Error("Provider config: failed to apply defaults",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	// Config structs use yaml tags for field mapping
	if len(rawValues) > 0 {
		if err := mapToStructFromYAML(rawValues, config); err != nil {
			slog.Error("Provider config: failed to apply config values",
				"config_type", reflect.TypeOf(config).String(),
				"error", err)
			return fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	configValue := reflect.ValueOf(config)
	if configValue.Kind() == reflect.Ptr {
		configValue = configValue.Elem()
	}

	if err := validateStruct(configValue.Interface()); err != nil {
		slog.Error("Provider config validation failed",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// registerCustomValidators registers engine-provided validation tags
func registerCustomValidators() {
	// url_format validates URL structure
	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})

	// plug_id keeps identifiers usable as "provider.plug" keys and URL segments
	validate.RegisterValidation("plug_id", func(fl validator.FieldLevel) bool {
		return plugIDPattern.MatchString(fl.Field().String())
	})

	// dsn validates database connection string format
	validate.RegisterValidation("dsn", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if strings.Contains(s, "://") {
			_, err := url.Parse(s)
			return err == nil
		}
		// file paths and sqlite specials like ":memory:"
		return s != ""
	})
}

func ApplyDefaults(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}

	return nil
}

// ValidateStruct runs the package validator, including the engine's custom
// tags, and flattens validation errors into one readable message.
func ValidateStruct(v any) error {
	return validateStruct(v)
}

func validateStruct(v any) error {
	if v == nil {
		return fmt.Errorf("value cannot be nil")
	}

	if err := validate.Struct(v); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, fieldErr := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"field '%s' failed validation (rule: %s)",
					fieldErr.Namespace(),
					fieldErr.Tag(),
				))
			}
			return fmt.Errorf("validation failed:\n  - %s", strings.Join(errMessages, "\n  - "))
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

func RegisterCustomValidator(tag string, fn validator.Func) error {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("failed to register custom validator '%s': %w", tag, err)
	}
	return nil
}
