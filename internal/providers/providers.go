// Package providers selects concrete transcription and analysis
// back-ends from configuration.
package providers

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dyparkkk-lg/meeting-ai/internal/config"
	"github.com/dyparkkk-lg/meeting-ai/internal/providers/asr"
	"github.com/dyparkkk-lg/meeting-ai/internal/providers/llm"
)

// NewTranscriber builds the configured speech-transcription provider.
func NewTranscriber(cfg *config.Config, log *logrus.Logger) (asr.Transcriber, error) {
	switch cfg.ASRProvider {
	case "mock":
		return asr.NewFixture(), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("asr provider %q requires MEETINGAI_OPENAI_API_KEY", cfg.ASRProvider)
		}
		return asr.NewWhisper(cfg.OpenAIAPIKey, log), nil
	default:
		return nil, fmt.Errorf("unknown asr provider %q", cfg.ASRProvider)
	}
}

// NewAnalyzer builds the configured meeting-analysis provider.
func NewAnalyzer(cfg *config.Config, log *logrus.Logger) (llm.Analyzer, error) {
	switch cfg.LLMProvider {
	case "mock":
		return llm.NewFixture(), nil
	case "ollama":
		return llm.NewOllama(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.OllamaAPIKey, log), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
