// Package describer turns image bytes into alt text using an external vision model.
package describer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// ErrServiceUnavailable marks failures of the AI service itself (quota,
// credits, auth to the provider, outage). They fail the whole batch instead
// of a single image.
var ErrServiceUnavailable = errors.New("alt text service unavailable")

// ErrEmptyDescription is returned when the model answered with no usable text
var ErrEmptyDescription = errors.New("model returned an empty description")

// Image is an encoded image and its mime type
type Image struct {
	Data     []byte
	MimeType string
}

// Prompt carries the operator's wishes for one description
type Prompt struct {
	Language           string
	MaxLength          int
	CustomInstructions string
	Title              string
}

// Describer describes an image with a specific model
type Describer interface {
	// Name returns the provider and model, e.g. "gemini/gemini-2.5-flash"
	Name() string

	// Describe returns normalized alt text for img
	Describe(ctx context.Context, img Image, p Prompt) (string, error)
}

// IsServiceFailure reports whether err came from the AI service rather than the image
func IsServiceFailure(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// isTransportFailure reports whether the request never got an answer from the
// provider: connection refused, DNS, TLS or a timeout
func isTransportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func serviceFailure(err error) error {
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}

// BuildPrompt renders the instruction sent with every image
func BuildPrompt(p Prompt) string {
	language := models.Languages[p.Language]
	if language == "" {
		language = models.Languages[models.DefaultLanguage]
	}
	maxLength := p.MaxLength
	if maxLength <= 0 {
		maxLength = models.DefaultMaxLength
	}

	var b strings.Builder
	b.WriteString("Write alt text for this image for people using a screen reader. ")
	fmt.Fprintf(&b, "Write it in %s. ", language)
	fmt.Fprintf(&b, "Use at most %d characters. ", maxLength)
	b.WriteString("Describe what matters for understanding the image in context. ")
	b.WriteString(`Do not start with "Image of" or "Picture of". Return only the alt text, without quotes.`)
	if title := strings.TrimSpace(p.Title); title != "" {
		fmt.Fprintf(&b, "\nThe file title is %q.", title)
	}
	if extra := strings.TrimSpace(p.CustomInstructions); extra != "" {
		b.WriteString("\nAdditional instructions: ")
		b.WriteString(extra)
	}
	return b.String()
}

var redundantPrefixes = []string{
	"alt text:",
	"alt:",
	"an image of ",
	"image of ",
	"a picture of ",
	"picture of ",
	"a photo of ",
	"photo of ",
}

// Normalize cleans up model output: whitespace is collapsed, wrapping quotes
// and redundant prefixes are dropped and the text is cut to maxLength runes
// at a word boundary.
func Normalize(text string, maxLength int) string {
	text = strings.Join(strings.Fields(text), " ")
	text = strings.Trim(text, "\"'“”‘’`")
	text = strings.TrimSpace(text)

	for _, prefix := range redundantPrefixes {
		if len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix) {
			text = strings.TrimSpace(text[len(prefix):])
			text = upperFirst(text)
			break
		}
	}

	if maxLength > 0 && utf8.RuneCountInString(text) > maxLength {
		text = truncate(text, maxLength)
	}
	return text
}

func truncate(text string, maxLength int) string {
	runes := []rune(text)
	cut := runes[:maxLength]
	// keep whole words unless the first word alone is too long
	if !unicode.IsSpace(runes[maxLength]) {
		if i := lastSpace(cut); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimRight(string(cut), " ,;:-")
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return -1
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
