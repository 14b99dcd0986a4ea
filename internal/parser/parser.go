package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	relerrors "relesia/internal/errors"
	"relesia/pkg/workspace"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Parse reads and validates a workspace manifest, returning the parsed
// Workspace. Relative destination and overlay paths are resolved against the
// manifest's directory.
func Parse(filePath string) (*workspace.Workspace, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, relerrors.NewManifestNotFoundError(
			"Failed to load workspace manifest",
			fmt.Sprintf("no file at %s", filePath),
			"Pass the manifest path with --file or create relesia.yaml",
			fmt.Errorf("workspace manifest not found: %s", filePath))
	}

	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, relerrors.NewManifestNotFoundError(
				"Failed to load workspace manifest",
				fmt.Sprintf("no file at %s", filePath),
				"",
				fmt.Errorf("workspace manifest not found: %s", filePath))
		}
		return nil, relerrors.NewManifestInvalidError(
			"Failed to load workspace manifest",
			"the file is not valid YAML",
			"Check indentation and quoting",
			fmt.Errorf("failed to read workspace manifest: %w", err))
	}

	var ws workspace.Workspace
	if err := v.Unmarshal(&ws); err != nil {
		return nil, relerrors.NewManifestInvalidError(
			"Failed to load workspace manifest",
			"a field has the wrong type",
			"",
			fmt.Errorf("failed to parse workspace manifest - malformed YAML: %w", err))
	}

	if err := validate.Struct(&ws); err != nil {
		return nil, relerrors.NewManifestInvalidError(
			"Invalid workspace manifest",
			filePath,
			"Fix the listed fields and run again",
			formatValidationError(err))
	}

	resolvePaths(&ws, filepath.Dir(filePath))
	return &ws, nil
}

func resolvePaths(ws *workspace.Workspace, baseDir string) {
	for i := range ws.Spec.Repositories {
		repo := &ws.Spec.Repositories[i]
		repo.Destination = resolvePath(baseDir, repo.Destination)
		if repo.Overlay != nil {
			repo.Overlay.Source = resolvePath(baseDir, repo.Overlay.Source)
		}
	}
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, formatFieldError(e))
		}

		if len(errorMessages) == 1 {
			return fmt.Errorf("validation error: %s", errorMessages[0])
		}

		result := "validation errors:\n"
		for _, msg := range errorMessages {
			result += fmt.Sprintf("  - %s\n", msg)
		}
		return fmt.Errorf("%s", result)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatFieldError formats a single validation error into a user-friendly message.
func formatFieldError(e validator.FieldError) string {
	field := fieldPath(e)
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("field '%s' is required but missing", field)
	case "required_without":
		return fmt.Sprintf("field '%s' is required when '%s' is not set", field, e.Param())
	case "excluded_with":
		return fmt.Sprintf("field '%s' cannot be combined with '%s'", field, e.Param())
	case "eq":
		return fmt.Sprintf("field '%s' must be '%s'", field, e.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
	case "min":
		return fmt.Sprintf("field '%s' needs at least %s entries", field, e.Param())
	case "unique":
		return fmt.Sprintf("field '%s' has duplicate %s values", field, e.Param())
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", field)
	case "email":
		return fmt.Sprintf("field '%s' must be a valid email address", field)
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", field, tag)
	}
}

// fieldPath returns the field's location below the root, e.g.
// "Spec.Repositories[0].URL".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}
