// Package validation checks operator input before a run or a generation starts.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("language", func(fl validator.FieldLevel) bool {
			return models.LanguageSupported(fl.Field().String())
		})
		_ = validate.RegisterValidation("aspect_ratio", func(fl validator.FieldLevel) bool {
			return models.AspectRatioSupported(fl.Field().String())
		})
		_ = validate.RegisterValidation("style", func(fl validator.FieldLevel) bool {
			return models.StyleSupported(fl.Field().String())
		})
	})
	return validate
}

// Struct validates v against its `validate` tags. Failures come back as a
// validation error naming the first offending field.
func Struct(op string, v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.Wrap(apperrors.KindValidation, op, "invalid input", err)
	}
	return apperrors.New(apperrors.KindValidation, op, describe(fieldErrs[0]))
}

// ProcessingOptions validates the toggles of a bulk run.
func ProcessingOptions(opts models.ProcessingOptions) error {
	if err := Struct("options", opts); err != nil {
		return err
	}
	if opts.Selected() && len(opts.ImageIDs) == 0 {
		return apperrors.Validation("options", "no images selected")
	}
	return nil
}

// BatchConfig validates run pacing. maxBatchSize <= 0 disables the upper bound.
func BatchConfig(cfg models.BatchConfig, maxBatchSize int) error {
	if err := Struct("batch_config", cfg); err != nil {
		return err
	}
	if maxBatchSize > 0 && cfg.BatchSize > maxBatchSize {
		return apperrors.Validation("batch_config", "batch size must be at most %d", maxBatchSize)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := snake(fe.Field())
	switch fe.Tag() {
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "language", "aspect_ratio", "style":
		return fmt.Sprintf("%s %q is not supported", field, fe.Value())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

// snake turns a Go field name into the snake_case name used on the wire.
func snake(name string) string {
	upper := func(i int) bool { return name[i] >= 'A' && name[i] <= 'Z' }
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if upper(i) {
			if i > 0 && (!upper(i-1) || (i+1 < len(name) && !upper(i+1) && name[i+1] != 's')) {
				b.WriteByte('_')
			}
			b.WriteByte(name[i] + ('a' - 'A'))
			continue
		}
		b.WriteByte(name[i])
	}
	return b.String()
}
