package describer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/gemini"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/logger"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"trims and collapses", "  A dog\n running   on sand ", 125, "A dog running on sand"},
		{"strips quotes", `"A red bicycle"`, 125, "A red bicycle"},
		{"drops image of", "Image of a lighthouse at dusk", 125, "A lighthouse at dusk"},
		{"drops alt text label", "Alt text: two cats sleeping", 125, "Two cats sleeping"},
		{"cuts at word boundary", "A small boat drifting on a calm lake", 20, "A small boat"},
		{"cut on space keeps word", "A small boat drifting", 12, "A small boat"},
		{"single long word is hard cut", "Supercalifragilistic", 5, "Super"},
		{"trailing punctuation dropped", "Bread, cheese, wine and olives", 14, "Bread, cheese"},
		{"no limit", "Anything goes here", 0, "Anything goes here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			if tt.max > 0 {
				assert.LessOrEqual(t, utf8.RuneCountInString(got), tt.max)
			}
		})
	}
}

func TestNormalizeCountsRunes(t *testing.T) {
	got := Normalize("Ein schöner Blick über die Dächer", 20)
	assert.Equal(t, "Ein schöner Blick", got)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(Prompt{Language: "de", MaxLength: 90, CustomInstructions: "Mention the brand.", Title: "hero-banner"})
	assert.Contains(t, p, "Write it in German.")
	assert.Contains(t, p, "at most 90 characters")
	assert.Contains(t, p, `"hero-banner"`)
	assert.True(t, strings.HasSuffix(p, "Additional instructions: Mention the brand."))

	p = BuildPrompt(Prompt{Language: "xx"})
	assert.Contains(t, p, "Write it in English.")
	assert.Contains(t, p, "at most 125 characters")
	assert.NotContains(t, p, "Additional instructions")
}

type fakeGenerator struct {
	resp *genai.GenerateContentResponse
	err  error
	got  []*genai.Content
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _ string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.got = contents
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(text)}}}},
	}
}

func TestGeminiDescribe(t *testing.T) {
	fake := &fakeGenerator{resp: textResponse(`"Image of a heron standing in shallow water"`)}
	g := &Gemini{client: fake, model: "gemini-2.5-flash", log: logger.Discard()}

	text, err := g.Describe(context.Background(), Image{Data: []byte{0xff, 0xd8}, MimeType: "image/jpeg"}, Prompt{Language: "en", MaxLength: 125})
	require.NoError(t, err)
	assert.Equal(t, "A heron standing in shallow water", text)
	require.Len(t, fake.got, 1)
	require.Len(t, fake.got[0].Parts, 2)
	assert.Equal(t, "image/jpeg", fake.got[0].Parts[1].InlineData.MIMEType)
	assert.Equal(t, "gemini/gemini-2.5-flash", g.Name())
}

func TestGeminiDescribeErrors(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeGenerator
		service bool
		empty   bool
	}{
		{"keys exhausted", &fakeGenerator{err: fmt.Errorf("%w: last", gemini.ErrKeysExhausted)}, true, false},
		{"permission denied", &fakeGenerator{err: genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}}, true, false},
		{"connection refused", &fakeGenerator{err: &url.Error{Op: "Post", URL: "https://generativelanguage.googleapis.com", Err: errors.New("connection refused")}}, true, false},
		{"deadline", &fakeGenerator{err: fmt.Errorf("generate: %w", context.DeadlineExceeded)}, true, false},
		{"bad image", &fakeGenerator{err: genai.APIError{Code: 400, Message: "Unable to process input image"}}, false, false},
		{"empty answer", &fakeGenerator{resp: textResponse("   ")}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Gemini{client: tt.fake, model: "m", log: logger.Discard()}
			_, err := g.Describe(context.Background(), Image{}, Prompt{MaxLength: 125})
			require.Error(t, err)
			assert.Equal(t, tt.service, IsServiceFailure(err))
			assert.Equal(t, tt.empty, errors.Is(err, ErrEmptyDescription))
		})
	}
}

type fakeChat struct {
	errs  []error
	text  string
	calls int
	req   openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	f.calls++
	if f.calls <= len(f.errs) {
		return openai.ChatCompletionResponse{}, f.errs[f.calls-1]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.text}}},
	}, nil
}

func TestOpenAIDescribeRetriesRateLimit(t *testing.T) {
	rateLimited := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}
	fake := &fakeChat{errs: []error{rateLimited, rateLimited}, text: "A kettle on a stove"}
	o := &OpenAI{client: fake, model: "gpt-4o-mini", log: logger.Discard()}

	text, err := o.Describe(context.Background(), Image{Data: []byte("png"), MimeType: "image/png"}, Prompt{Language: "en", MaxLength: 125})
	require.NoError(t, err)
	assert.Equal(t, "A kettle on a stove", text)
	assert.Equal(t, 3, fake.calls)

	parts := fake.req.Messages[0].MultiContent
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestOpenAIDescribeServiceFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		calls   int
		service bool
	}{
		{"rate limit persists", &openai.APIError{HTTPStatusCode: 429}, 3, true},
		{"quota", &openai.APIError{HTTPStatusCode: 429, Code: "insufficient_quota"}, 1, true},
		{"bad key", &openai.APIError{HTTPStatusCode: 401}, 1, true},
		{"outage", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("bad gateway")}, 1, true},
		{"connection refused", &url.Error{Op: "Post", URL: "http://127.0.0.1:1/v1/chat/completions", Err: errors.New("connection refused")}, 1, true},
		{"deadline", context.DeadlineExceeded, 1, true},
		{"no response status", &openai.RequestError{Err: errors.New("stream closed")}, 1, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, 1, false},
		{"undecodable answer", errors.New("invalid character '<' looking for beginning of value"), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeChat{errs: []error{tt.err, tt.err, tt.err}}
			o := &OpenAI{client: fake, model: "m", log: logger.Discard()}

			_, err := o.Describe(context.Background(), Image{}, Prompt{MaxLength: 125})
			require.Error(t, err)
			assert.Equal(t, tt.service, IsServiceFailure(err))
			assert.Equal(t, tt.calls, fake.calls)
		})
	}
}

func TestOpenAIDescribeUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/v1"
	srv.Close()

	o := NewOpenAI("sk-test", base, "gpt-4o-mini", logger.Discard())
	_, err := o.Describe(context.Background(), Image{Data: []byte("png"), MimeType: "image/png"}, Prompt{MaxLength: 125})
	require.Error(t, err)
	assert.True(t, IsServiceFailure(err))
}
