// Package artisan assembles and runs AI image generation requests.
package artisan

import (
	"fmt"
	"strings"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// Reference is an image the model should take into account. Exactly one of
// Data (base64) and ImageID is set.
type Reference struct {
	Kind     string `json:"kind"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	ImageID  int64  `json:"image_id,omitempty"`
}

// Selection is what the operator picked in the generation modal
type Selection struct {
	Prompt        string      `json:"prompt"`
	Title         string      `json:"title,omitempty"`
	AspectRatio   string      `json:"aspect_ratio,omitempty"`
	Resolution    string      `json:"resolution,omitempty"`
	Style         string      `json:"style,omitempty"`
	Optimize      bool        `json:"optimize"`
	OutputFormat  string      `json:"output_format,omitempty"`
	Quality       int         `json:"quality,omitempty"`
	Grounding     bool        `json:"grounding"`
	References    []Reference `json:"references,omitempty"`
	SourceImageID int64       `json:"source_image_id,omitempty"`
}

// Defaults fill the choices the operator left empty
type Defaults struct {
	AspectRatio string
	Style       string
}

// Output is the optimize & convert step
type Output struct {
	Format  string `json:"format"`
	Quality int    `json:"quality"`
}

// GenerationRequest is the payload handed to the generator
type GenerationRequest struct {
	Prompt        string            `json:"prompt"`
	Title         string            `json:"title,omitempty"`
	AspectRatio   string            `json:"aspect_ratio"`
	Resolution    string            `json:"resolution"`
	Dimensions    models.Dimensions `json:"dimensions"`
	Style         string            `json:"style"`
	Output        *Output           `json:"output,omitempty"`
	Grounding     bool              `json:"grounding"`
	References    []Reference       `json:"references,omitempty"`
	SourceImageID int64             `json:"source_image_id,omitempty"`
}

// Assemble validates sel against the option tables and builds the request.
// Output format and quality are only kept when Optimize is on.
func Assemble(sel Selection, def Defaults) (GenerationRequest, error) {
	const op = "artisan.assemble"

	prompt := strings.TrimSpace(sel.Prompt)
	if prompt == "" {
		return GenerationRequest{}, apperrors.Validation(op, "prompt is required")
	}

	ratio := pick(sel.AspectRatio, def.AspectRatio, models.DefaultAspectRatio)
	if !models.AspectRatioSupported(ratio) {
		return GenerationRequest{}, apperrors.Validation(op, "aspect_ratio %q is not supported", ratio)
	}
	resolution := pick(strings.ToUpper(sel.Resolution), models.DefaultResolution)
	dims, ok := models.DimensionsFor(ratio, resolution)
	if !ok {
		return GenerationRequest{}, apperrors.Validation(op, "resolution %q is not supported", sel.Resolution)
	}
	style := pick(sel.Style, def.Style, models.DefaultStyle)
	if !models.StyleSupported(style) {
		return GenerationRequest{}, apperrors.Validation(op, "style %q is not supported", style)
	}

	if err := checkReferences(sel.References); err != nil {
		return GenerationRequest{}, err
	}

	req := GenerationRequest{
		Prompt:        prompt,
		Title:         strings.TrimSpace(sel.Title),
		AspectRatio:   ratio,
		Resolution:    resolution,
		Dimensions:    dims,
		Style:         style,
		Grounding:     sel.Grounding,
		References:    sel.References,
		SourceImageID: sel.SourceImageID,
	}

	if sel.Optimize {
		format := pick(strings.ToLower(sel.OutputFormat), models.DefaultFormat)
		if format == "jpg" {
			format = models.FormatJPEG
		}
		if !models.FormatSupported(format) {
			return GenerationRequest{}, apperrors.Validation(op, "output_format %q is not supported", sel.OutputFormat)
		}
		quality := sel.Quality
		if quality == 0 {
			quality = models.DefaultQuality
		}
		if quality < 1 || quality > 100 {
			return GenerationRequest{}, apperrors.Validation(op, "quality must be between 1 and 100")
		}
		req.Output = &Output{Format: format, Quality: quality}
	}

	return req, nil
}

func checkReferences(refs []Reference) error {
	const op = "artisan.references"

	if len(refs) > models.MaxReferences {
		return apperrors.Validation(op, "at most %d reference images are allowed", models.MaxReferences)
	}
	var objects, humans int
	for i, ref := range refs {
		switch ref.Kind {
		case models.ReferenceObject:
			objects++
		case models.ReferenceHuman:
			humans++
		case models.ReferenceStyle:
		default:
			return apperrors.Validation(op, "reference %d: kind must be %s, %s or %s", i+1, models.ReferenceObject, models.ReferenceHuman, models.ReferenceStyle)
		}
		if (ref.Data == "") == (ref.ImageID == 0) {
			return apperrors.Validation(op, "reference %d: exactly one of data and image_id is required", i+1)
		}
	}
	if objects > models.MaxObjectReferences {
		return apperrors.Validation(op, "at most %d object references are allowed", models.MaxObjectReferences)
	}
	if humans > models.MaxHumanReferences {
		return apperrors.Validation(op, "at most %d human references are allowed", models.MaxHumanReferences)
	}
	return nil
}

func pick(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// promptText renders the instruction sent to the model
func promptText(req GenerationRequest) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	fmt.Fprintf(&b, "\n\nStyle: %s.", models.Styles[req.Style])
	fmt.Fprintf(&b, "\nTarget size: %dx%d pixels (%s).", req.Dimensions.Width, req.Dimensions.Height, req.AspectRatio)
	if req.SourceImageID != 0 {
		b.WriteString("\nEdit the first attached image according to the instructions.")
	}
	if len(req.References) > 0 {
		b.WriteString("\nUse the attached reference images for objects, people and visual style.")
	}
	return b.String()
}
