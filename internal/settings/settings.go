// Package settings reads and writes the persisted plugin options with their
// documented defaults.
package settings

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/validation"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// Option keys
const (
	KeyCustomInstructions = "alttext_custom_instructions"
	KeyLanguage           = "alttext_language"
	KeyMaxLength          = "alttext_max_length"
	KeyBatchSize          = "alttext_batch_size"
	KeyBatchDelay         = "alttext_batch_delay"
	KeyAspectRatio        = "default_aspect_ratio"
	KeyStyle              = "default_style"
)

// Keys lists every option key in a stable order
var Keys = []string{
	KeyCustomInstructions,
	KeyLanguage,
	KeyMaxLength,
	KeyBatchSize,
	KeyBatchDelay,
	KeyAspectRatio,
	KeyStyle,
}

// Settings is the typed view of the options table
type Settings struct {
	CustomInstructions string `json:"alttext_custom_instructions" validate:"max=500"`
	Language           string `json:"alttext_language" validate:"required,language"`
	MaxLength          int    `json:"alttext_max_length" validate:"gt=0"`
	BatchSize          int    `json:"alttext_batch_size" validate:"gte=1"`
	BatchDelayMS       int    `json:"alttext_batch_delay" validate:"gte=0"`
	DefaultAspectRatio string `json:"default_aspect_ratio" validate:"required,aspect_ratio"`
	DefaultStyle       string `json:"default_style" validate:"required,style"`
}

// Defaults returns the documented default of every option
func Defaults() Settings {
	return Settings{
		Language:           models.DefaultLanguage,
		MaxLength:          models.DefaultMaxLength,
		BatchSize:          models.DefaultBatchSize,
		BatchDelayMS:       models.DefaultBatchDelayMS,
		DefaultAspectRatio: models.DefaultAspectRatio,
		DefaultStyle:       models.DefaultStyle,
	}
}

// BatchConfig returns the pacing of a bulk run
func (s Settings) BatchConfig() models.BatchConfig {
	return models.BatchConfig{BatchSize: s.BatchSize, BatchDelayMS: s.BatchDelayMS}
}

// ProcessingOptions returns run options prefilled from the settings
func (s Settings) ProcessingOptions() models.ProcessingOptions {
	return models.ProcessingOptions{
		CustomInstructions: s.CustomInstructions,
		Language:           s.Language,
		MaxLength:          s.MaxLength,
		Selection:          models.SelectionAll,
	}
}

// Values renders the settings as option rows
func (s Settings) Values() map[string]string {
	return map[string]string{
		KeyCustomInstructions: s.CustomInstructions,
		KeyLanguage:           s.Language,
		KeyMaxLength:          strconv.Itoa(s.MaxLength),
		KeyBatchSize:          strconv.Itoa(s.BatchSize),
		KeyBatchDelay:         strconv.Itoa(s.BatchDelayMS),
		KeyAspectRatio:        s.DefaultAspectRatio,
		KeyStyle:              s.DefaultStyle,
	}
}

// Store persists raw option rows
type Store interface {
	GetOptions(ctx context.Context) (map[string]string, error)
	SetOptions(ctx context.Context, values map[string]string) error
}

// Provider loads and saves Settings
type Provider struct {
	store Store
	log   logrus.FieldLogger
}

func NewProvider(store Store, log logrus.FieldLogger) *Provider {
	return &Provider{store: store, log: log}
}

// Load returns the current settings. A missing key silently takes its default;
// a malformed value takes its default and is logged as a configuration error.
func (p *Provider) Load(ctx context.Context) (Settings, error) {
	raw, err := p.store.GetOptions(ctx)
	if err != nil {
		return Settings{}, apperrors.Wrap(apperrors.KindStorage, "settings.load", "failed to read options", err)
	}

	s := Defaults()
	for _, key := range Keys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		if err := apply(&s, key, value); err != nil {
			p.log.WithFields(logrus.Fields{
				"key":   key,
				"value": value,
			}).WithError(apperrors.Wrap(apperrors.KindConfig, "settings.load", "malformed option", err)).
				Warn("Using default for malformed setting")
			def := Defaults()
			_ = apply(&s, key, def.Values()[key])
		}
	}
	return s, nil
}

// Save validates s and persists every option
func (p *Provider) Save(ctx context.Context, s Settings) error {
	if err := validation.Struct("settings.save", s); err != nil {
		return err
	}
	if err := p.store.SetOptions(ctx, s.Values()); err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "settings.save", "failed to write options", err)
	}
	return nil
}

// Update applies key=value pairs on top of the current settings and saves
// the result. Unknown keys and malformed values are validation errors.
func (p *Provider) Update(ctx context.Context, values map[string]string) (Settings, error) {
	s, err := p.Load(ctx)
	if err != nil {
		return Settings{}, err
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := apply(&s, key, values[key]); err != nil {
			return Settings{}, apperrors.Validation("settings.update", "%s: %v", key, err)
		}
	}
	if err := p.Save(ctx, s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// apply parses value into the field behind key. Range checks that Load must
// recover from are done here too.
func apply(s *Settings, key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case KeyCustomInstructions:
		if len([]rune(value)) > models.MaxCustomInstructions {
			return fmt.Errorf("longer than %d characters", models.MaxCustomInstructions)
		}
		s.CustomInstructions = value
	case KeyLanguage:
		if !models.LanguageSupported(value) {
			return fmt.Errorf("unsupported language %q", value)
		}
		s.Language = value
	case KeyMaxLength:
		n, err := positive(value, 1)
		if err != nil {
			return err
		}
		s.MaxLength = n
	case KeyBatchSize:
		n, err := positive(value, 1)
		if err != nil {
			return err
		}
		s.BatchSize = n
	case KeyBatchDelay:
		n, err := positive(value, 0)
		if err != nil {
			return err
		}
		s.BatchDelayMS = n
	case KeyAspectRatio:
		if !models.AspectRatioSupported(value) {
			return fmt.Errorf("unsupported aspect ratio %q", value)
		}
		s.DefaultAspectRatio = value
	case KeyStyle:
		if !models.StyleSupported(value) {
			return fmt.Errorf("unsupported style %q", value)
		}
		s.DefaultStyle = value
	default:
		return fmt.Errorf("unknown setting")
	}
	return nil
}

func positive(value string, min int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", value)
	}
	if n < min {
		return 0, fmt.Errorf("must be at least %d", min)
	}
	return n, nil
}
