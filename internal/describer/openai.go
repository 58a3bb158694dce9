package describer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const openAIMaxAttempts = 3

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI describes images with an OpenAI-compatible chat completion API
type OpenAI struct {
	client chatCompleter
	model  string
	delay  time.Duration
	log    logrus.FieldLogger
}

func NewOpenAI(apiKey, baseURL, model string, log logrus.FieldLogger) *OpenAI {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		delay:  2 * time.Second,
		log:    log,
	}
}

func (o *OpenAI) Name() string {
	return "openai/" + o.model
}

func (o *OpenAI) Describe(ctx context.Context, img Image, p Prompt) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: BuildPrompt(p)},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailLow,
					}},
				},
			},
		},
		Temperature: 0.4,
	}

	var lastErr error
	for attempt := 1; attempt <= openAIMaxAttempts; attempt++ {
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", ErrEmptyDescription
			}
			text := Normalize(resp.Choices[0].Message.Content, p.MaxLength)
			if text == "" {
				return "", ErrEmptyDescription
			}
			return text, nil
		}
		lastErr = err

		if openAIStatus(err) != http.StatusTooManyRequests || isInsufficientQuota(err) {
			break
		}
		o.log.WithField("attempt", attempt).Warn("OpenAI rate limit hit")
		if attempt < openAIMaxAttempts {
			select {
			case <-ctx.Done():
				return "", classifyOpenAI(ctx.Err())
			case <-time.After(o.delay):
			}
		}
	}

	return "", classifyOpenAI(lastErr)
}

func classifyOpenAI(err error) error {
	if isOpenAIServiceError(err) {
		return serviceFailure(err)
	}
	return err
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isOpenAIError(err error) bool {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	return errors.As(err, &apiErr) || errors.As(err, &reqErr)
}

func isInsufficientQuota(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		return code == "insufficient_quota" || apiErr.Type == "insufficient_quota"
	}
	return false
}

func isOpenAIServiceError(err error) bool {
	if isTransportFailure(err) {
		return true
	}
	status := openAIStatus(err)
	switch {
	case status == 0 && isOpenAIError(err):
		// the client gave up before a response status was known
		return true
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		status == http.StatusPaymentRequired, status == http.StatusTooManyRequests,
		status >= 500:
		return true
	}
	return isInsufficientQuota(err)
}
