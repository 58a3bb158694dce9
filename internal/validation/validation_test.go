package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

func validOptions() models.ProcessingOptions {
	return models.ProcessingOptions{
		Language:  "en",
		MaxLength: 125,
	}
}

func TestProcessingOptions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *models.ProcessingOptions)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(o *models.ProcessingOptions) {}},
		{
			name:   "500 characters accepted",
			mutate: func(o *models.ProcessingOptions) { o.CustomInstructions = strings.Repeat("a", 500) },
		},
		{
			name:    "501 characters rejected",
			mutate:  func(o *models.ProcessingOptions) { o.CustomInstructions = strings.Repeat("a", 501) },
			wantErr: "custom_instructions must be at most 500 characters",
		},
		{
			name:   "multibyte characters counted as characters",
			mutate: func(o *models.ProcessingOptions) { o.CustomInstructions = strings.Repeat("é", 500) },
		},
		{
			name:    "zero max length",
			mutate:  func(o *models.ProcessingOptions) { o.MaxLength = 0 },
			wantErr: "max_length must be greater than 0",
		},
		{
			name:    "unsupported language",
			mutate:  func(o *models.ProcessingOptions) { o.Language = "xx" },
			wantErr: "not supported",
		},
		{
			name:    "missing language",
			mutate:  func(o *models.ProcessingOptions) { o.Language = "" },
			wantErr: "language is required",
		},
		{
			name:    "selected without images",
			mutate:  func(o *models.ProcessingOptions) { o.Selection = models.SelectionSelected },
			wantErr: "no images selected",
		},
		{
			name: "selected with images",
			mutate: func(o *models.ProcessingOptions) {
				o.Selection = models.SelectionSelected
				o.ImageIDs = []int64{4, 8}
			},
		},
		{
			name:    "unknown selection mode",
			mutate:  func(o *models.ProcessingOptions) { o.Selection = "some" },
			wantErr: "selection must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(&opts)
			err := ProcessingOptions(opts)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
			assert.Contains(t, apperrors.Message(err), tt.wantErr)
		})
	}
}

func TestBatchConfig(t *testing.T) {
	assert.NoError(t, BatchConfig(models.BatchConfig{BatchSize: 1}, 50))
	assert.NoError(t, BatchConfig(models.BatchConfig{BatchSize: 500, BatchDelayMS: 0}, 0))

	err := BatchConfig(models.BatchConfig{BatchSize: 0}, 50)
	require.Error(t, err)
	assert.Contains(t, apperrors.Message(err), "batch_size must be at least 1")

	err = BatchConfig(models.BatchConfig{BatchSize: 51}, 50)
	require.Error(t, err)
	assert.Contains(t, apperrors.Message(err), "at most 50")

	err = BatchConfig(models.BatchConfig{BatchSize: 5, BatchDelayMS: -1}, 50)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestSnake(t *testing.T) {
	for in, want := range map[string]string{
		"CustomInstructions": "custom_instructions",
		"MaxLength":          "max_length",
		"ImageIDs":           "image_ids",
		"BatchDelayMS":       "batch_delay_ms",
		"Language":           "language",
	} {
		assert.Equal(t, want, snake(in), in)
	}
}

func TestCustomTags(t *testing.T) {
	type sample struct {
		Language    string `validate:"language"`
		AspectRatio string `validate:"aspect_ratio"`
		Style       string `validate:"style"`
	}
	assert.NoError(t, Struct("test", sample{Language: "en", AspectRatio: models.DefaultAspectRatio, Style: models.DefaultStyle}))

	err := Struct("test", sample{Language: "en", AspectRatio: "7:5", Style: models.DefaultStyle})
	require.Error(t, err)
	assert.Equal(t, `aspect_ratio "7:5" is not supported`, apperrors.Message(err))

	// generation options are checked by artisan.Assemble, not by tags
	type resolutionTagged struct {
		Resolution string `validate:"resolution"`
	}
	assert.Panics(t, func() { _ = Struct("test", resolutionTagged{Resolution: "1K"}) })
}
