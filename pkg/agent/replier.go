// Package agent answers aiReply nodes through an OpenAI-compatible chat model.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/craftable/ai/llm"
	"github.com/Abraxas-365/craftable/ai/providers/aiopenai"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/ptrx"
	"github.com/patrickmn/go-cache"
)

const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 512

	clientTTL = 30 * time.Minute
)

// ChatFunc sends one conversation to the provider using apiKey.
type ChatFunc func(ctx context.Context, apiKey string, messages []llm.Message, opts ...llm.Option) (*engine.LanguageModelResponse, error)

// Options sets provider defaults; nil pointers fall back to the package
// defaults.
type Options struct {
	Model       string
	Temperature *float32
	MaxTokens   *int
}

// Replier implements engine.LanguageModel.
type Replier struct {
	chat ChatFunc
	opts Options
}

var _ engine.LanguageModel = (*Replier)(nil)

// NewReplier: a nil chat uses OpenAI.
func NewReplier(chat ChatFunc, opts Options) *Replier {
	if chat == nil {
		chat = NewOpenAIChat()
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	return &Replier{chat: chat, opts: opts}
}

func (r *Replier) Reply(ctx context.Context, req engine.LanguageModelRequest) (*engine.LanguageModelResponse, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, errx.New("language model API key is required", errx.TypeValidation)
	}

	model := req.Model
	if model == "" {
		model = r.opts.Model
	}

	resp, err := r.chat(ctx, req.APIKey, BuildMessages(req.Instructions, req.UserMessage),
		llm.WithModel(model),
		llm.WithTemperature(ptrx.Float32ValueOr(r.opts.Temperature, DefaultTemperature)),
		llm.WithMaxTokens(ptrx.IntValueOr(r.opts.MaxTokens, DefaultMaxTokens)),
	)
	if err != nil {
		log.Printf("❌ LLM call with model %s failed: %v", model, err)
		return nil, errx.Wrap(err, "LLM call failed", errx.TypeExternal)
	}
	return resp, nil
}

// BuildMessages returns the system instructions followed by the user's
// message, when there is one.
func BuildMessages(instructions, userMessage string) []llm.Message {
	messages := []llm.Message{llm.NewSystemMessage(instructions)}
	if strings.TrimSpace(userMessage) != "" {
		messages = append(messages, llm.NewUserMessage(userMessage))
	}
	return messages
}

// ============================================================================
// OpenAI
// ============================================================================

// NewOpenAIChat returns a ChatFunc backed by craftable's OpenAI provider.
// Each flow node carries its own key, so one client is kept per key.
func NewOpenAIChat() ChatFunc {
	clients := cache.New(clientTTL, 2*clientTTL)

	return func(ctx context.Context, apiKey string, messages []llm.Message, opts ...llm.Option) (*engine.LanguageModelResponse, error) {
		key := keyFingerprint(apiKey)

		var client *llm.Client
		if c, ok := clients.Get(key); ok {
			client = c.(*llm.Client)
		} else {
			client = llm.NewClient(aiopenai.NewOpenAIProvider(apiKey))
			clients.SetDefault(key, client)
		}

		response, err := client.Chat(ctx, messages, opts...)
		if err != nil {
			return nil, err
		}

		return &engine.LanguageModelResponse{
			Content:          response.Message.Content,
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
		}, nil
	}
}

// raw keys never become cache keys
func keyFingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8])
}
