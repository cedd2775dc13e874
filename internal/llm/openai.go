package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Message is a minimal chat message used by the core services.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// ProfileName selects a model configuration.
type ProfileName string

const (
	// ProfilePatient is the low-latency profile used for patient replies.
	ProfilePatient ProfileName = "patient"
	// ProfileEvaluator is the larger profile used for examiner feedback.
	ProfileEvaluator ProfileName = "evaluator"
)

// Profile is a model plus its sampling settings.
type Profile struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client sends one completion request over the full message history.
type Client interface {
	Complete(ctx context.Context, messages []Message, profile ProfileName) (string, error)
}

// Connector turns a user-supplied API key into a validated Client.
type Connector interface {
	Connect(ctx context.Context, apiKey string) (Client, error)
}

// Config describes the OpenAI-compatible endpoint and the named profiles.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Profiles map[ProfileName]Profile
}

// DefaultProfiles mirrors the Groq models the simulator was tuned on.
func DefaultProfiles() map[ProfileName]Profile {
	return map[ProfileName]Profile{
		ProfilePatient:   {Model: "llama3-8b-8192", Temperature: 0.7, MaxTokens: 200},
		ProfileEvaluator: {Model: "llama3-70b-8192", Temperature: 0.5, MaxTokens: 2048},
	}
}

// OpenAIClient calls an OpenAI-compatible chat completion API.  Each call is
// a single attempt; failures are returned as *ServiceError.
type OpenAIClient struct {
	client   *openai.Client
	profiles map[ProfileName]Profile
}

// NewOpenAIClient constructs a client for apiKey.  It does not contact the
// service; use Validate for that.
func NewOpenAIClient(cfg Config, apiKey string) *OpenAIClient {
	oc := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	profiles := cfg.Profiles
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(oc),
		profiles: profiles,
	}
}

// Complete sends the message history with the given profile and returns the
// assistant's reply.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, profile ProfileName) (string, error) {
	p, ok := c.profiles[profile]
	if !ok {
		return "", &ServiceError{Kind: KindOther, Message: "unknown model profile " + string(profile)}
	}

	// Convert to OpenAI message type
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != RoleSystem && role != RoleUser && role != RoleAssistant {
			// coerce anything unknown to user
			role = RoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.Model,
		Messages:    oaMsgs,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &ServiceError{Kind: KindOther, Message: "empty completion"}
	}
	return resp.Choices[0].Message.Content, nil
}

// Validate issues a tiny request with the patient profile to check the key.
func (c *OpenAIClient) Validate(ctx context.Context) error {
	p := c.profiles[ProfilePatient]
	_, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.Model,
		Messages:  []openai.ChatCompletionMessage{{Role: RoleUser, Content: "test"}},
		MaxTokens: 1,
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// OpenAIConnector builds and validates OpenAIClients from user keys.
type OpenAIConnector struct {
	cfg Config
}

// NewOpenAIConnector returns a connector for the configured endpoint.
func NewOpenAIConnector(cfg Config) *OpenAIConnector {
	return &OpenAIConnector{cfg: cfg}
}

// Connect validates apiKey with one round trip and returns the client.
func (c *OpenAIConnector) Connect(ctx context.Context, apiKey string) (Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, &ServiceError{Kind: KindUnauthorized, Message: "API key cannot be empty"}
	}
	client := NewOpenAIClient(c.cfg, apiKey)
	if err := client.Validate(ctx); err != nil {
		return nil, err
	}
	return client, nil
}
