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

type mapResolver struct {
	urls map[string]string
	err  error
}

func (r *mapResolver) Resolve(ctx context.Context, ref string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if u, ok := r.urls[ref]; ok {
		return u, nil
	}
	return ref, nil
}

func TestMediaExecutor(t *testing.T) {
	gw := enginetest.NewGateway()
	resolver := &mapResolver{urls: map[string]string{"s3://m/a.png": "https://signed/a.png"}}
	exec := NewMediaExecutor(gw, resolver, engine.NewCelEvaluator())

	out, err := exec.Execute(context.Background(),
		node("1", engine.MediaData{URL: "s3://m/{{file}}", Caption: "For {{name}}"}),
		newRun(map[string]any{"file": "a.png", "name": "Ana"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"For Ana\nhttps://signed/a.png"}, gw.Texts())
	assert.Equal(t, "https://signed/a.png", out.Output["last_media_url"])
}

func TestMediaExecutorWithoutResolver(t *testing.T) {
	gw := enginetest.NewGateway()
	exec := NewMediaExecutor(gw, nil, engine.NewCelEvaluator())

	_, err := exec.Execute(context.Background(), node("1", engine.MediaData{URL: "https://cdn/x.jpg"}), newRun(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/x.jpg"}, gw.Texts())

	out, err := exec.Execute(context.Background(), node("2", engine.MediaData{URL: "https://cdn/x.png", Caption: "Menu"}), newRun(nil))
	require.NoError(t, err)
	assert.Equal(t, "Menu\nhttps://cdn/x.png", gw.Texts()[1])
	assert.Equal(t, "https://cdn/x.png", out.Output["last_media_url"])
}

func TestMediaExecutorFailures(t *testing.T) {
	tests := []struct {
		name     string
		data     engine.MediaData
		resolver engine.MediaResolver
		kind     engine.ErrorKind
	}{
		{"missing url", engine.MediaData{Caption: "x"}, nil, engine.KindMissingField},
		{"resolver error", engine.MediaData{URL: "s3://b/k"}, &mapResolver{err: errors.New("denied")}, engine.KindProviderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := enginetest.NewGateway()
			exec := NewMediaExecutor(gw, tt.resolver, engine.NewCelEvaluator())

			_, err := exec.Execute(context.Background(), node("1", tt.data), newRun(nil))
			assert.Equal(t, tt.kind, engine.KindOf(err))
			assert.Empty(t, gw.Sent)
		})
	}
}
