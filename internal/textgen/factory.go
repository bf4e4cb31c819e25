package textgen

import (
	"fmt"

	"github.com/irfan-workspace/kakistorychannel/internal/config"
)

// NewProvider constructs the configured text-generation provider.
// Called once at server startup.
func NewProvider(cfg config.TextGenConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI, cfg.Timeout), nil
	case "gemini":
		return NewGeminiProvider(cfg.Gemini, cfg.Timeout), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown text generation provider %q: must be one of openai, gemini, mock", cfg.Provider)
	}
}
