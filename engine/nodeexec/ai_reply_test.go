package nodeexec

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIReplyExecutor(t *testing.T) {
	gw := enginetest.NewGateway()
	model := &enginetest.LanguageModel{Content: " Hello there! "}
	exec := NewAIReplyExecutor(model, gw, nil, "gpt-3.5-turbo")

	data := engine.AIReplyData{APIKey: "sk-1", Instructions: "Greet the customer", SendReply: true}
	out, err := exec.Execute(context.Background(), node("ai", data), newRun(map[string]any{"message": "hi"}))
	require.NoError(t, err)

	require.Len(t, model.Requests, 1)
	assert.Equal(t, engine.LanguageModelRequest{
		APIKey: "sk-1", Model: "gpt-3.5-turbo", Instructions: "Greet the customer", UserMessage: "hi",
	}, model.Requests[0])
	assert.Equal(t, []string{"Hello there!"}, gw.Texts())
	assert.Equal(t, "Hello there!", out.Output["ai_reply"])
}

func TestAIReplyExecutorWithoutSending(t *testing.T) {
	gw := enginetest.NewGateway()
	exec := NewAIReplyExecutor(&enginetest.LanguageModel{Content: "draft"}, gw, nil, "m")

	out, err := exec.Execute(context.Background(), node("ai", engine.AIReplyData{APIKey: "k", Instructions: "x", Model: "gpt-4o"}), newRun(nil))
	require.NoError(t, err)
	assert.Empty(t, gw.Sent)
	assert.Equal(t, "draft", out.Output["ai_reply"])
}

func TestAIReplyExecutorFailures(t *testing.T) {
	tests := []struct {
		name  string
		model engine.LanguageModel
		data  engine.AIReplyData
		kind  engine.ErrorKind
	}{
		{"no api key", &enginetest.LanguageModel{Content: "x"}, engine.AIReplyData{Instructions: "x"}, engine.KindMissingCredentials},
		{"no provider", nil, engine.AIReplyData{APIKey: "k", Instructions: "x"}, engine.KindMissingCredentials},
		{"no instructions", &enginetest.LanguageModel{Content: "x"}, engine.AIReplyData{APIKey: "k"}, engine.KindMissingField},
		{"provider error", &enginetest.LanguageModel{Err: errors.New("429")}, engine.AIReplyData{APIKey: "k", Instructions: "x"}, engine.KindProviderError},
		{"empty reply", &enginetest.LanguageModel{Content: "  "}, engine.AIReplyData{APIKey: "k", Instructions: "x"}, engine.KindProviderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := NewAIReplyExecutor(tt.model, enginetest.NewGateway(), nil, "m")
			_, err := exec.Execute(context.Background(), node("ai", tt.data), newRun(nil))
			require.Error(t, err)
			assert.Equal(t, tt.kind, engine.KindOf(err))
		})
	}
}
