// Package gemini wraps the Gemini API with rate-limit retries across a pool
// of API keys.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// ErrKeysExhausted is returned when every key stayed rate limited
var ErrKeysExhausted = errors.New("all Gemini API keys exhausted")

const (
	maxRetriesPerKey = 3
	retryDelay       = 2 * time.Second
)

type generateFunc func(ctx context.Context, key int, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Client sends GenerateContent requests, retrying 429s up to three times per
// key before moving on to the next key
type Client struct {
	keys     int
	generate generateFunc
	delay    time.Duration
	log      logrus.FieldLogger
}

// New builds one genai client per API key
func New(ctx context.Context, apiKeys []string, log logrus.FieldLogger) (*Client, error) {
	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("no API keys provided")
	}

	clients := make([]*genai.Client, 0, len(apiKeys))
	for i, key := range apiKeys {
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client for key #%d: %v", i+1, err)
		}
		clients = append(clients, c)
	}

	return &Client{
		keys: len(clients),
		generate: func(ctx context.Context, key int, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return clients[key].Models.GenerateContent(ctx, model, contents, config)
		},
		delay: retryDelay,
		log:   log,
	}, nil
}

// GenerateContent calls the model. Errors other than rate limits are returned
// immediately.
func (c *Client) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var lastErr error

	for key := 0; key < c.keys; key++ {
		log := c.log.WithFields(logrus.Fields{"key": key + 1, "model": model})

		for attempt := 1; attempt <= maxRetriesPerKey; attempt++ {
			result, err := c.generate(ctx, key, model, contents, config)
			if err == nil {
				return result, nil
			}
			lastErr = err

			if !IsRateLimit(err) {
				return nil, err
			}
			log.WithField("attempt", attempt).Warn("Gemini rate limit hit")

			if attempt < maxRetriesPerKey {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(c.delay):
				}
			}
		}

		log.Warn("Gemini key exhausted, trying next key")
	}

	return nil, fmt.Errorf("%w (%d keys, %d attempts each), last error: %v", ErrKeysExhausted, c.keys, maxRetriesPerKey, lastErr)
}

// IsRateLimit reports whether err is a 429 / quota error
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "resource_exhausted") ||
		strings.Contains(errStr, "rate limit")
}

// Text returns the concatenated text parts of the first candidate
func Text(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Text()
}

// InlineImage returns the first inline image of the response
func InlineImage(resp *genai.GenerateContentResponse) ([]byte, string, bool) {
	if resp == nil {
		return nil, "", false
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, part.InlineData.MIMEType, true
			}
		}
	}
	return nil, "", false
}
