package nodeexec

import (
	"context"
	"log"
	"strings"

	"github.com/Abraxas-365/chatflow/engine"
)

// MessageExecutor sends message and question nodes as plain text.
type MessageExecutor struct {
	messenger engine.Messenger
	expr      engine.ExpressionEvaluator
}

var _ engine.NodeExecutor = (*MessageExecutor)(nil)

func NewMessageExecutor(messenger engine.Messenger, expr engine.ExpressionEvaluator) *MessageExecutor {
	return &MessageExecutor{messenger: messenger, expr: expr}
}

func (e *MessageExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeMessage || nodeType == engine.NodeTypeQuestion
}

func (e *MessageExecutor) Execute(ctx context.Context, node engine.Node, run *engine.RunContext) (*engine.NodeOutcome, error) {
	var text string
	switch data := node.Data.(type) {
	case engine.MessageData:
		content, err := render(ctx, e.expr, "content", data.Content, run)
		if err != nil {
			return nil, err
		}
		text = content
	case engine.QuestionData:
		question, err := render(ctx, e.expr, "question", data.Question, run)
		if err != nil {
			return nil, err
		}
		text = FormatQuestion(question, data.Options)
	default:
		return nil, dataMismatch(node)
	}

	if strings.TrimSpace(text) == "" {
		return nil, engine.ErrMissingField("content")
	}
	if err := send(ctx, e.messenger, run, text); err != nil {
		return nil, err
	}

	log.Printf("💬 Sent %s node %s to dialog %s", node.Type, node.ID, run.DialogID)
	return engine.Success(), nil
}

// FormatQuestion renders a question followed by one "- option" line per option.
func FormatQuestion(question string, options []string) string {
	if len(options) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString(question)
	for _, opt := range options {
		b.WriteString("\n- ")
		b.WriteString(opt)
	}
	return b.String()
}

func send(ctx context.Context, messenger engine.Messenger, run *engine.RunContext, text string) error {
	if run.DialogID.IsEmpty() {
		return engine.ErrMissingField("dialog_id")
	}
	if messenger == nil {
		return engine.ErrGateway(nil)
	}
	if err := messenger.SendMessage(ctx, run.DialogID, text); err != nil {
		return asNodeError(err, engine.ErrGateway)
	}
	return nil
}
