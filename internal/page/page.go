// Package page builds the configuration objects handed to the bulk alt text
// client and to the image generation modal.
package page

import (
	"context"
	"sort"
	"strings"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/nonce"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/settings"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// Strings are the status labels shown while a run progresses
type Strings struct {
	Processing string `json:"processing"`
	Completed  string `json:"completed"`
	Cancelled  string `json:"cancelled"`
	Error      string `json:"error"`
}

func DefaultStrings() Strings {
	return Strings{
		Processing: "Processing...",
		Completed:  "Completed!",
		Cancelled:  "Cancelled",
		Error:      "Error occurred",
	}
}

// For returns the label of a run status
func (s Strings) For(status string) string {
	switch status {
	case models.RunStatusCompleted:
		return s.Completed
	case models.RunStatusCancelled:
		return s.Cancelled
	case models.RunStatusError:
		return s.Error
	default:
		return s.Processing
	}
}

// Option is one entry of a select list
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected,omitempty"`
}

// BulkConfig is everything the bulk controller needs to drive a run
type BulkConfig struct {
	EndpointURL           string                   `json:"endpoint_url"`
	Nonce                 string                   `json:"nonce"`
	BatchSize             int                      `json:"batch_size"`
	BatchDelayMS          int                      `json:"batch_delay_ms"`
	Stats                 models.ImageStatistics   `json:"stats"`
	WithAltPercentage     int                      `json:"with_alt_percentage"`
	Defaults              models.ProcessingOptions `json:"defaults"`
	Languages             []Option                 `json:"languages"`
	MaxCustomInstructions int                      `json:"max_custom_instructions"`
	Strings               Strings                  `json:"strings"`
}

// AspectRatioOption lists the pixel size of a ratio per resolution tier
type AspectRatioOption struct {
	Value      string                       `json:"value"`
	Dimensions map[string]models.Dimensions `json:"dimensions"`
	Selected   bool                         `json:"selected,omitempty"`
}

// ArtisanConfig drives the image generation modal
type ArtisanConfig struct {
	EndpointURL         string              `json:"endpoint_url"`
	Nonce               string              `json:"nonce"`
	AspectRatios        []AspectRatioOption `json:"aspect_ratios"`
	Resolutions         []Option            `json:"resolutions"`
	Styles              []Option            `json:"styles"`
	Formats             []Option            `json:"formats"`
	DefaultQuality      int                 `json:"default_quality"`
	MaxReferences       int                 `json:"max_references"`
	MaxObjectReferences int                 `json:"max_object_references"`
	MaxHumanReferences  int                 `json:"max_human_references"`
	Strings             Strings             `json:"strings"`
}

// SettingsLoader provides the persisted settings
type SettingsLoader interface {
	Load(ctx context.Context) (settings.Settings, error)
}

// StatsSource provides alt text coverage
type StatsSource interface {
	Stats(ctx context.Context, filter models.StatsFilter) (models.ImageStatistics, error)
}

// Renderer assembles page configuration from settings, statistics and a fresh nonce
type Renderer struct {
	settings SettingsLoader
	stats    StatsSource
	nonces   *nonce.Manager
	baseURL  string
}

// NewRenderer builds a renderer. nonces may be nil when no endpoint will be called.
func NewRenderer(s SettingsLoader, stats StatsSource, nonces *nonce.Manager, baseURL string) *Renderer {
	return &Renderer{
		settings: s,
		stats:    stats,
		nonces:   nonces,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

func (r *Renderer) nonce(action, session string) string {
	if r.nonces == nil {
		return ""
	}
	return r.nonces.Create(action, session)
}

// BulkConfig renders the bulk alt text configuration for session
func (r *Renderer) BulkConfig(ctx context.Context, session string, filter models.StatsFilter) (BulkConfig, error) {
	s, err := r.settings.Load(ctx)
	if err != nil {
		return BulkConfig{}, err
	}
	stats, err := r.stats.Stats(ctx, filter)
	if err != nil {
		return BulkConfig{}, err
	}

	return BulkConfig{
		EndpointURL:           r.baseURL + "/api/alttext",
		Nonce:                 r.nonce(nonce.ActionBulk, session),
		BatchSize:             s.BatchSize,
		BatchDelayMS:          s.BatchDelayMS,
		Stats:                 stats,
		WithAltPercentage:     stats.WithAltPercentage(),
		Defaults:              s.ProcessingOptions(),
		Languages:             languageOptions(s.Language),
		MaxCustomInstructions: models.MaxCustomInstructions,
		Strings:               DefaultStrings(),
	}, nil
}

// ArtisanConfig renders the generation modal configuration for session
func (r *Renderer) ArtisanConfig(ctx context.Context, session string) (ArtisanConfig, error) {
	s, err := r.settings.Load(ctx)
	if err != nil {
		return ArtisanConfig{}, err
	}

	ratios := make([]AspectRatioOption, 0, len(models.AspectRatios))
	for _, ratio := range models.AspectRatios {
		dims := make(map[string]models.Dimensions, len(models.Resolutions))
		for _, res := range models.Resolutions {
			d, _ := models.DimensionsFor(ratio, res)
			dims[res] = d
		}
		ratios = append(ratios, AspectRatioOption{Value: ratio, Dimensions: dims, Selected: ratio == s.DefaultAspectRatio})
	}

	resolutions := make([]Option, 0, len(models.Resolutions))
	for _, res := range models.Resolutions {
		resolutions = append(resolutions, Option{Value: res, Label: res, Selected: res == models.DefaultResolution})
	}

	formats := make([]Option, 0, len(models.Formats))
	for _, f := range models.Formats {
		formats = append(formats, Option{Value: f, Label: strings.ToUpper(f), Selected: f == models.DefaultFormat})
	}

	return ArtisanConfig{
		EndpointURL:         r.baseURL + "/api/artisan",
		Nonce:               r.nonce(nonce.ActionGenerate, session),
		AspectRatios:        ratios,
		Resolutions:         resolutions,
		Styles:              styleOptions(s.DefaultStyle),
		Formats:             formats,
		DefaultQuality:      models.DefaultQuality,
		MaxReferences:       models.MaxReferences,
		MaxObjectReferences: models.MaxObjectReferences,
		MaxHumanReferences:  models.MaxHumanReferences,
		Strings:             DefaultStrings(),
	}, nil
}

func languageOptions(selected string) []Option {
	codes := models.LanguageCodes()
	opts := make([]Option, 0, len(codes))
	for _, code := range codes {
		opts = append(opts, Option{Value: code, Label: models.Languages[code], Selected: code == selected})
	}
	return opts
}

func styleOptions(selected string) []Option {
	opts := make([]Option, 0, len(models.Styles))
	for value, label := range models.Styles {
		opts = append(opts, Option{Value: value, Label: label, Selected: value == selected})
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].Label < opts[j].Label })
	return opts
}
