package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/outreach-ai-platform/internal/config"
	"github.com/wolfman30/outreach-ai-platform/internal/generation"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// BuildLLMClient wires the primary provider and, when configured, a fallback
// used after the primary errors. The returned func closes provider clients.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (generation.LLMClient, func(), error) {
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	primary, closer, err := buildProvider(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		return nil, closeAll, err
	}
	if closer != nil {
		closers = append(closers, closer)
	}
	logger.Info("llm provider selected", "provider", cfg.LLMProvider)

	if cfg.LLMFallbackProvider == "" || cfg.LLMFallbackProvider == cfg.LLMProvider {
		return primary, closeAll, nil
	}
	fallback, closer, err := buildProvider(ctx, cfg.LLMFallbackProvider, cfg, awsCfg)
	if err != nil {
		logger.Warn("llm fallback disabled", "provider", cfg.LLMFallbackProvider, "error", err)
		return primary, closeAll, nil
	}
	if closer != nil {
		closers = append(closers, closer)
	}
	logger.Info("llm fallback enabled", "provider", cfg.LLMFallbackProvider)
	return generation.NewFallbackLLMClient(primary, fallback, logger), closeAll, nil
}

func buildProvider(ctx context.Context, provider string, cfg *appconfig.Config, awsCfg aws.Config) (generation.LLMClient, func(), error) {
	switch provider {
	case "bedrock":
		if cfg.BedrockModelID == "" {
			return nil, nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		return generation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil, nil
	case "gemini":
		client, err := generation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return client, func() { _ = client.Close() }, nil
	case "openai":
		client, err := generation.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModelID)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: openai client: %w", err)
		}
		return client, nil, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown LLM provider %q", provider)
	}
}
