package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/craftable/ai/llm"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatCall struct {
	apiKey   string
	messages []llm.Message
	opts     int
}

func fakeChat(calls *[]chatCall, resp *engine.LanguageModelResponse, err error) ChatFunc {
	return func(ctx context.Context, apiKey string, messages []llm.Message, opts ...llm.Option) (*engine.LanguageModelResponse, error) {
		*calls = append(*calls, chatCall{apiKey: apiKey, messages: messages, opts: len(opts)})
		return resp, err
	}
}

func TestReplyPassesKeyAndMessages(t *testing.T) {
	var calls []chatCall
	r := NewReplier(fakeChat(&calls, &engine.LanguageModelResponse{Content: "hi!", PromptTokens: 3}, nil), Options{})

	resp, err := r.Reply(context.Background(), engine.LanguageModelRequest{
		APIKey:       "sk-1",
		Instructions: "Be brief",
		UserMessage:  "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "hi!", resp.Content)
	assert.Equal(t, 3, resp.PromptTokens)

	require.Len(t, calls, 1)
	assert.Equal(t, "sk-1", calls[0].apiKey)
	assert.Equal(t, 3, calls[0].opts)
	require.Len(t, calls[0].messages, 2)
	assert.Equal(t, "Be brief", calls[0].messages[0].Content)
	assert.Equal(t, "hello", calls[0].messages[1].Content)
}

func TestReplyRequiresKey(t *testing.T) {
	var calls []chatCall
	r := NewReplier(fakeChat(&calls, nil, nil), Options{})

	_, err := r.Reply(context.Background(), engine.LanguageModelRequest{Instructions: "x"})
	assert.True(t, errx.IsType(err, errx.TypeValidation))
	assert.Empty(t, calls)
}

func TestReplyWrapsProviderErrors(t *testing.T) {
	var calls []chatCall
	r := NewReplier(fakeChat(&calls, nil, errors.New("429 too many requests")), Options{Model: "gpt-4o"})

	_, err := r.Reply(context.Background(), engine.LanguageModelRequest{APIKey: "k", Instructions: "x"})
	assert.True(t, errx.IsType(err, errx.TypeExternal))
}

func TestBuildMessagesSkipsEmptyUserMessage(t *testing.T) {
	msgs := BuildMessages("Only instructions", "  ")
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
}

func TestKeyFingerprint(t *testing.T) {
	assert.Equal(t, keyFingerprint("a"), keyFingerprint("a"))
	assert.NotEqual(t, keyFingerprint("a"), keyFingerprint("b"))
	assert.NotContains(t, keyFingerprint("sk-secret"), "secret")
}
