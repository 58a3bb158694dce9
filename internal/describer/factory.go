package describer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/config"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/gemini"
)

// FromConfig builds the describer selected by W3A11Y_DESCRIBER
func FromConfig(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (Describer, error) {
	switch cfg.DescriberProvider {
	case "gemini":
		client, err := gemini.New(ctx, cfg.GeminiAPIKeys, log)
		if err != nil {
			return nil, err
		}
		return NewGemini(client, cfg.GeminiModel, log), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai describer")
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, log), nil
	default:
		return nil, fmt.Errorf("unknown describer %q", cfg.DescriberProvider)
	}
}
