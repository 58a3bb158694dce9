package models

import "sort"

const (
	// MaxCustomInstructions is the limit on custom instructions, in characters.
	MaxCustomInstructions = 500

	DefaultLanguage     = "en"
	DefaultMaxLength    = 125
	DefaultBatchSize    = 5
	DefaultBatchDelayMS = 1000
	DefaultAspectRatio  = "1:1"
	DefaultStyle        = "photorealistic"

	SelectionAll      = "all"
	SelectionSelected = "selected"
)

// ProcessingOptions are the user toggles captured at run start and sent with every batch
type ProcessingOptions struct {
	OverwriteExisting  bool    `json:"overwrite_existing"`
	OnlyAttached       bool    `json:"only_attached"`
	SkipProcessed      bool    `json:"skip_processed"`
	CustomInstructions string  `json:"custom_instructions" validate:"max=500"`
	Language           string  `json:"language" validate:"required,language"`
	MaxLength          int     `json:"max_length" validate:"gt=0"`
	Selection          string  `json:"selection,omitempty" validate:"omitempty,oneof=all selected"`
	ImageIDs           []int64 `json:"image_ids,omitempty"`
}

// Selected reports whether the run is restricted to an explicit image list
func (o ProcessingOptions) Selected() bool {
	return o.Selection == SelectionSelected
}

// BatchConfig holds the tunable pacing of a bulk run
type BatchConfig struct {
	BatchSize    int `json:"batch_size" validate:"gte=1"`
	BatchDelayMS int `json:"batch_delay_ms" validate:"gte=0"`
}

// DefaultBatchConfig returns the pacing used when settings carry none
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:    DefaultBatchSize,
		BatchDelayMS: DefaultBatchDelayMS,
	}
}

// Languages lists the alt text languages offered to the operator, keyed by code
var Languages = map[string]string{
	"ar": "Arabic",
	"cs": "Czech",
	"da": "Danish",
	"de": "German",
	"el": "Greek",
	"en": "English",
	"es": "Spanish",
	"fi": "Finnish",
	"fr": "French",
	"he": "Hebrew",
	"hi": "Hindi",
	"hu": "Hungarian",
	"id": "Indonesian",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"nl": "Dutch",
	"no": "Norwegian",
	"pl": "Polish",
	"pt": "Portuguese",
	"ro": "Romanian",
	"ru": "Russian",
	"sv": "Swedish",
	"th": "Thai",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

// LanguageSupported reports whether code is in Languages
func LanguageSupported(code string) bool {
	_, ok := Languages[code]
	return ok
}

// LanguageCodes returns the supported codes in sorted order
func LanguageCodes() []string {
	codes := make([]string, 0, len(Languages))
	for code := range Languages {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
