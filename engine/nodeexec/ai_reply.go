package nodeexec

import (
	"context"
	"log"
	"strings"

	"github.com/Abraxas-365/chatflow/engine"
)

// AIReplyExecutor asks the language model for a reply to the dialog and,
// unless the node opts out, sends it.
type AIReplyExecutor struct {
	model        engine.LanguageModel
	messenger    engine.Messenger
	expr         engine.ExpressionEvaluator
	defaultModel string
}

var _ engine.NodeExecutor = (*AIReplyExecutor)(nil)

// NewAIReplyExecutor: a nil model means no provider is configured and every
// aiReply node fails with MissingCredentials.
func NewAIReplyExecutor(
	model engine.LanguageModel,
	messenger engine.Messenger,
	expr engine.ExpressionEvaluator,
	defaultModel string,
) *AIReplyExecutor {
	return &AIReplyExecutor{model: model, messenger: messenger, expr: expr, defaultModel: defaultModel}
}

func (e *AIReplyExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeAIReply
}

func (e *AIReplyExecutor) Execute(ctx context.Context, node engine.Node, run *engine.RunContext) (*engine.NodeOutcome, error) {
	data, ok := node.Data.(engine.AIReplyData)
	if !ok {
		return nil, dataMismatch(node)
	}

	apiKey, err := render(ctx, e.expr, "apiKey", data.APIKey, run)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, engine.ErrMissingCredentials("apiKey")
	}
	if e.model == nil {
		return nil, engine.ErrMissingCredentials("language model provider")
	}

	instructions, err := render(ctx, e.expr, "instructions", data.Instructions, run)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(instructions) == "" {
		return nil, engine.ErrMissingField("instructions")
	}

	model := data.Model
	if model == "" {
		model = e.defaultModel
	}

	userMessage := run.GetString("reply")
	if userMessage == "" {
		userMessage = run.GetString("message")
	}

	resp, err := e.model.Reply(ctx, engine.LanguageModelRequest{
		APIKey:       apiKey,
		Model:        model,
		Instructions: instructions,
		UserMessage:  userMessage,
	})
	if err != nil {
		return nil, asNodeError(err, func(err error) *engine.NodeError {
			return engine.ErrProvider("language_model", err)
		})
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, engine.ErrProvider("language_model", nil)
	}

	if data.SendReply {
		if err := send(ctx, e.messenger, run, content); err != nil {
			return nil, err
		}
	}

	log.Printf("🤖 AI reply node %s produced %d chars (tokens: %d/%d)",
		node.ID, len(content), resp.PromptTokens, resp.CompletionTokens)

	return &engine.NodeOutcome{Output: map[string]any{"ai_reply": content}}, nil
}
