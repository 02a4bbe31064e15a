package nodeexec

import (
	"context"

	"github.com/Abraxas-365/chatflow/engine"
)

// MediaExecutor shares a media file as a link in the dialog.
type MediaExecutor struct {
	messenger engine.Messenger
	resolver  engine.MediaResolver
	expr      engine.ExpressionEvaluator
}

var _ engine.NodeExecutor = (*MediaExecutor)(nil)

// NewMediaExecutor: resolver may be nil, URLs are then sent as authored.
func NewMediaExecutor(messenger engine.Messenger, resolver engine.MediaResolver, expr engine.ExpressionEvaluator) *MediaExecutor {
	return &MediaExecutor{messenger: messenger, resolver: resolver, expr: expr}
}

func (e *MediaExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeMedia
}

func (e *MediaExecutor) Execute(ctx context.Context, node engine.Node, run *engine.RunContext) (*engine.NodeOutcome, error) {
	data, ok := node.Data.(engine.MediaData)
	if !ok {
		return nil, dataMismatch(node)
	}

	url, err := render(ctx, e.expr, "url", data.URL, run)
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, engine.ErrMissingField("url")
	}

	if e.resolver != nil {
		resolved, err := e.resolver.Resolve(ctx, url)
		if err != nil {
			return nil, asNodeError(err, func(err error) *engine.NodeError {
				return engine.ErrProvider("media", err)
			})
		}
		url = resolved
	}

	caption, err := render(ctx, e.expr, "caption", data.Caption, run)
	if err != nil {
		return nil, err
	}

	text := url
	if caption != "" {
		text = caption + "\n" + url
	}
	if err := send(ctx, e.messenger, run, text); err != nil {
		return nil, err
	}

	return &engine.NodeOutcome{Output: map[string]any{"last_media_url": url}}, nil
}
