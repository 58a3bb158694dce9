package describer

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/gemini"
)

// contentGenerator is the part of gemini.Client the describer needs
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini describes images with a Gemini vision model
type Gemini struct {
	client contentGenerator
	model  string
	log    logrus.FieldLogger
}

func NewGemini(client *gemini.Client, model string, log logrus.FieldLogger) *Gemini {
	return &Gemini{client: client, model: model, log: log}
}

func (g *Gemini) Name() string {
	return "gemini/" + g.model
}

func (g *Gemini) Describe(ctx context.Context, img Image, p Prompt) (string, error) {
	content := &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromText(BuildPrompt(p)),
			genai.NewPartFromBytes(img.Data, img.MimeType),
		},
	}

	result, err := g.client.GenerateContent(ctx, g.model, []*genai.Content{content}, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.4),
	})
	if err != nil {
		if isGeminiServiceError(err) {
			return "", serviceFailure(err)
		}
		return "", err
	}

	text := Normalize(gemini.Text(result), p.MaxLength)
	if text == "" {
		return "", ErrEmptyDescription
	}
	return text, nil
}

func isGeminiServiceError(err error) bool {
	if errors.Is(err, gemini.ErrKeysExhausted) || isTransportFailure(err) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401, apiErr.Code == 403, apiErr.Code == 429, apiErr.Code >= 500:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{"permission_denied", "resource_exhausted", "quota", "billing", "unavailable", "api key not valid"} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
