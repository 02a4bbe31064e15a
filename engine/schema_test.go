package engine

import (
	"errors"
	"testing"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowValidator(t *testing.T) {
	v, err := NewFlowValidator()
	require.NoError(t, err)

	g, err := v.Validate([]byte(editorFlow))
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 5)

	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "   "},
		{"not json", "{nodes"},
		{"missing nodes", `{"edges": []}`},
		{"node without type", `{"nodes": [{"id": "1"}]}`},
		{"edge without target", `{"nodes": [{"id": "1", "type": "message"}], "edges": [{"source": "1"}]}`},
		{"ambiguous entry", `{"nodes": [{"id": "1", "type": "message"}, {"id": "2", "type": "message"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errx.IsType(err, errx.TypeValidation))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindMissingEntityID, KindOf(ErrMissingEntityID("lead")))

	wrapped := errors.Join(errors.New("ctx"), ErrMalformedPayload("headers", errors.New("bad")))
	assert.Equal(t, KindMalformedPayload, KindOf(wrapped))
}
