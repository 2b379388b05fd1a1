package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/nemo-admissions/nemo-relay/internal/api"
	"github.com/nemo-admissions/nemo-relay/internal/handlers"
	"github.com/nemo-admissions/nemo-relay/internal/services"
	"gopkg.in/yaml.v3"
)

type runtimeConfig interface {
	runtime(ctx context.Context, systemPrompt string, logger *slog.Logger) (handlers.AgentRuntime, error)
}

// BaseRuntimeConfig contains the common fields for all runtime configurations.
type BaseRuntimeConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port           string        `yaml:"port"`
	LogFormat      string        `yaml:"logFormat"`
	LogLevel       string        `yaml:"logLevel"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	RateLimit      api.RateLimit `yaml:"rateLimit"`
	MaxBodyBytes   int64         `yaml:"maxBodyBytes"`
	SystemPrompt   string        `yaml:"systemPrompt"`
	Runtime        runtimeConfig `yaml:"runtime"`
}

type agentCoreConfig struct {
	BaseRuntimeConfig `yaml:",inline"`
	RuntimeARN        string `yaml:"runtimeArn"`
	Qualifier         string `yaml:"qualifier"`
	Region            string `yaml:"region"`
}

type ollamaConfig struct {
	BaseRuntimeConfig `yaml:",inline"`
	Host              string `yaml:"host"`
}

type openAIConfig struct {
	BaseRuntimeConfig `yaml:",inline"`
	APIKey            string                 `yaml:"apiKey"`
	BaseURL           string                 `yaml:"baseUrl"`
	Parameters        services.LLMParameters `yaml:"parameters"`
}

type openRouterConfig struct {
	BaseRuntimeConfig `yaml:",inline"`
	APIKey            string                 `yaml:"apiKey"`
	Parameters        services.LLMParameters `yaml:"parameters"`
}

type anthropicConfig struct {
	BaseRuntimeConfig `yaml:",inline"`
	APIKey            string `yaml:"apiKey"`
	MaxTokens         int    `yaml:"maxTokens"`
}

const (
	defaultPort     = "8080"
	providerDefault = "agentcore"
)

var errModelRequired = errors.New("model is required")

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port           string         `yaml:"port"`
		LogFormat      string         `yaml:"logFormat"`
		LogLevel       string         `yaml:"logLevel"`
		AllowedOrigins []string       `yaml:"allowedOrigins"`
		RateLimit      api.RateLimit  `yaml:"rateLimit"`
		MaxBodyBytes   int64          `yaml:"maxBodyBytes"`
		SystemPrompt   string         `yaml:"systemPrompt"`
		Runtime        map[string]any `yaml:"runtime"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.LogFormat = rawConfig.LogFormat
	c.LogLevel = rawConfig.LogLevel
	c.AllowedOrigins = rawConfig.AllowedOrigins
	c.RateLimit = rawConfig.RateLimit
	c.MaxBodyBytes = rawConfig.MaxBodyBytes
	c.SystemPrompt = rawConfig.SystemPrompt

	if rawConfig.Runtime == nil {
		c.Runtime = &agentCoreConfig{BaseRuntimeConfig: BaseRuntimeConfig{Provider: providerDefault}}
		return nil
	}

	provider, ok := rawConfig.Runtime["provider"].(string)
	if !ok {
		return fmt.Errorf("runtime provider is required")
	}

	runtimeRawYAML, err := yaml.Marshal(rawConfig.Runtime)
	if err != nil {
		return err
	}

	var rt runtimeConfig
	switch provider {
	case "agentcore":
		rt = &agentCoreConfig{}
	case "ollama":
		rt = &ollamaConfig{}
	case "openai":
		rt = &openAIConfig{}
	case "openrouter":
		rt = &openRouterConfig{}
	case "anthropic":
		rt = &anthropicConfig{}
	default:
		return fmt.Errorf("unknown runtime provider: %s", provider)
	}

	if err := yaml.Unmarshal(runtimeRawYAML, rt); err != nil {
		return err
	}

	c.Runtime = rt
	return nil
}

// loadConfig reads the YAML file at path, or starts from an empty configuration when path is empty, and
// fills unset values from the environment.
func loadConfig(path string) (config, error) {
	cfg := config{}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return config{}, fmt.Errorf("error opening config file: %w", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if cfg.Runtime == nil {
		cfg.Runtime = &agentCoreConfig{BaseRuntimeConfig: BaseRuntimeConfig{Provider: providerDefault}}
	}
	if cfg.Port == "" {
		cfg.Port = getEnv("PORT", defaultPort)
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = getEnv("LOG_FORMAT", "json")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	}
	if len(cfg.AllowedOrigins) == 0 {
		if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
			cfg.AllowedOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (a agentCoreConfig) runtime(ctx context.Context, _ string, logger *slog.Logger) (handlers.AgentRuntime, error) {
	arn := a.RuntimeARN
	if arn == "" {
		arn = os.Getenv("AGENT_RUNTIME_ARN")
	}
	if arn == "" {
		return nil, fmt.Errorf("AGENT_RUNTIME_ARN environment variable is required for the agentcore runtime")
	}
	qualifier := a.Qualifier
	if qualifier == "" {
		qualifier = getEnv("AGENT_QUALIFIER", services.DefaultQualifier)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if a.Region != "" {
		opts = append(opts, awsconfig.WithRegion(a.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	rt, err := services.NewAgentCore(bedrockagentcore.NewFromConfig(awsCfg), arn, qualifier, logger)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (o ollamaConfig) runtime(_ context.Context, systemPrompt string, logger *slog.Logger) (handlers.AgentRuntime, error) {
	if o.Model == "" {
		return nil, errModelRequired
	}

	host := o.Host
	if host == "" {
		host = getEnv("OLLAMA_HOST", "http://localhost:11434")
	}
	llm, err := services.NewOllama(host, o.Model, systemPrompt, nil)
	if err != nil {
		return nil, err
	}
	return services.NewLocalRuntime(llm, logger), nil
}

func (o openAIConfig) runtime(_ context.Context, systemPrompt string, logger *slog.Logger) (handlers.AgentRuntime, error) {
	if o.Model == "" {
		return nil, errModelRequired
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	llm := services.NewOpenAI(services.OpenAIOptions{
		APIKey:       apiKey,
		BaseURL:      o.BaseURL,
		Model:        o.Model,
		SystemPrompt: systemPrompt,
		Params:       o.Parameters,
	}, logger)
	return services.NewLocalRuntime(llm, logger), nil
}

func (o openRouterConfig) runtime(_ context.Context, systemPrompt string, logger *slog.Logger) (handlers.AgentRuntime, error) {
	if o.Model == "" {
		return nil, errModelRequired
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	llm := services.NewOpenAI(services.OpenAIOptions{
		APIKey:       apiKey,
		BaseURL:      services.OpenRouterBaseURL,
		Model:        o.Model,
		SystemPrompt: systemPrompt,
		Params:       o.Parameters,
	}, logger)
	return services.NewLocalRuntime(llm, logger), nil
}

func (a anthropicConfig) runtime(_ context.Context, systemPrompt string, logger *slog.Logger) (handlers.AgentRuntime, error) {
	if a.Model == "" {
		return nil, errModelRequired
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("maxTokens is required")
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	llm, err := services.NewAnthropic(apiKey, a.Model, systemPrompt, a.MaxTokens, logger)
	if err != nil {
		return nil, err
	}
	return services.NewLocalRuntime(llm, logger), nil
}
