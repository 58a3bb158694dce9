package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/logger"
)

type call struct {
	key int
}

func newFakeClient(keys int, results func(n int, key int) error) (*Client, *[]call) {
	var calls []call
	c := &Client{
		keys: keys,
		generate: func(_ context.Context, key int, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			calls = append(calls, call{key: key})
			if err := results(len(calls), key); err != nil {
				return nil, err
			}
			return &genai.GenerateContentResponse{}, nil
		},
		log: logger.Discard(),
	}
	return c, &calls
}

func TestGenerateContentSucceedsFirstTry(t *testing.T) {
	c, calls := newFakeClient(2, func(int, int) error { return nil })

	_, err := c.GenerateContent(context.Background(), "m", nil, nil)
	require.NoError(t, err)
	assert.Len(t, *calls, 1)
}

func TestGenerateContentRetriesRateLimitThenNextKey(t *testing.T) {
	c, calls := newFakeClient(2, func(n, key int) error {
		if key == 0 {
			return errors.New("Error 429, RESOURCE_EXHAUSTED")
		}
		return nil
	})

	_, err := c.GenerateContent(context.Background(), "m", nil, nil)
	require.NoError(t, err)
	require.Len(t, *calls, 4)
	assert.Equal(t, []call{{0}, {0}, {0}, {1}}, *calls)
}

func TestGenerateContentKeysExhausted(t *testing.T) {
	c, calls := newFakeClient(2, func(int, int) error { return errors.New("429 rate limit") })

	_, err := c.GenerateContent(context.Background(), "m", nil, nil)
	assert.ErrorIs(t, err, ErrKeysExhausted)
	assert.Len(t, *calls, 6)
}

func TestGenerateContentOtherErrorsAreNotRetried(t *testing.T) {
	boom := errors.New("invalid argument")
	c, calls := newFakeClient(3, func(int, int) error { return boom })

	_, err := c.GenerateContent(context.Background(), "m", nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, *calls, 1)
}

func TestIsRateLimit(t *testing.T) {
	assert.True(t, IsRateLimit(genai.APIError{Code: 429}))
	assert.True(t, IsRateLimit(errors.New("RESOURCE_EXHAUSTED")))
	assert.False(t, IsRateLimit(errors.New("permission denied")))
	assert.False(t, IsRateLimit(nil))
}

func TestInlineImage(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []*genai.Part{
				genai.NewPartFromText("here you go"),
				{InlineData: &genai.Blob{Data: []byte{1, 2, 3}, MIMEType: "image/png"}},
			}}},
		},
	}

	data, mime, ok := InlineImage(resp)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Equal(t, "image/png", mime)

	_, _, ok = InlineImage(nil)
	assert.False(t, ok)
}
