package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const editorFlow = `{
  "nodes": [
    {"id": "1", "type": "message", "data": {"content": "Hi"}, "position": {"x": 0, "y": 0}},
    {"id": "2", "type": "condition", "data": {"conditionType": "cadastro", "field": "EMAIL"}},
    {"id": "3", "type": "chatgpt", "data": {"apiKey": "k", "instructions": "be nice"}},
    {"id": "4", "type": "updateCRM", "data": {"entity_id": 42, "field": "TITLE", "value": "x"}},
    {"id": "5", "type": "interval", "data": {"duration": 600}}
  ],
  "edges": [
    {"id": "e1-2", "source": "1", "target": "2"},
    {"id": "e2-3", "source": "2", "target": "3", "sourceHandle": "true"},
    {"id": "e2-4", "source": "2", "target": "4", "sourceHandle": "false"},
    {"id": "e4-5", "source": "4", "target": "5", "sourceHandle": null}
  ]
}`

func TestParseFlowGraph(t *testing.T) {
	g, err := ParseFlowGraph("7", []byte(editorFlow))
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	entry, err := g.EntryPoint()
	require.NoError(t, err)
	assert.Equal(t, "1", entry)

	n, ok := g.Node("3")
	require.True(t, ok)
	assert.Equal(t, NodeTypeAIReply, n.Type)
	ai := n.Data.(AIReplyData)
	assert.Equal(t, "k", ai.APIKey)
	assert.True(t, ai.SendReply)

	crm, _ := g.Node("4")
	upd := crm.Data.(UpdateCRMData)
	assert.Equal(t, "lead", upd.Entity)
	assert.Equal(t, "42", upd.EntityID)

	interval, _ := g.Node("5")
	assert.Equal(t, "600", interval.Data.(IntervalData).Duration)

	assert.Equal(t, "3", g.NextByHandle("2", "true"))
	assert.Equal(t, "4", g.NextByHandle("2", "false"))
	assert.Equal(t, "", g.NextByHandle("2", "maybe"))
	assert.Equal(t, "5", g.Next("4"))
	assert.Equal(t, "", g.Next("5"))
	assert.True(t, g.HasBranches("2"))
	assert.False(t, g.HasBranches("1"))
}

func TestParseFlowGraphHandleAlias(t *testing.T) {
	doc := `{"nodes":[{"id":1,"type":"condition","data":{}},{"id":2,"type":"message","data":{}}],
	         "edges":[{"source":1,"target":2,"handle":"true"}]}`
	g, err := ParseFlowGraph("1", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "2", g.NextByHandle("1", "true"))
}

func TestParseFlowGraphInvalidJSON(t *testing.T) {
	_, err := ParseFlowGraph("1", []byte(`{"nodes": [`))
	require.Error(t, err)
}

func TestUnknownNodeTypeDecodes(t *testing.T) {
	g, err := ParseFlowGraph("1", []byte(`{"nodes":[{"id":"a","type":"transfer","data":{"queue":"x"}}]}`))
	require.NoError(t, err)
	n, _ := g.Node("a")
	assert.False(t, n.Type.IsValid())
	assert.IsType(t, UnknownData{}, n.Data)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no nodes", `{"nodes":[]}`},
		{"duplicate ids", `{"nodes":[{"id":"a","type":"message"},{"id":"a","type":"message"}]}`},
		{"dangling edge", `{"nodes":[{"id":"a","type":"message"}],"edges":[{"source":"a","target":"b"}]}`},
		{"two roots", `{"nodes":[{"id":"a","type":"message"},{"id":"b","type":"message"}]}`},
		{"no root", `{"nodes":[{"id":"a","type":"message"},{"id":"b","type":"message"}],
		  "edges":[{"source":"a","target":"b"},{"source":"b","target":"a"}]}`},
		{"two start marks", `{"nodes":[{"id":"a","type":"message","start":true},{"id":"b","type":"message","start":true}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ParseFlowGraph("1", []byte(tt.doc))
			require.NoError(t, err)
			assert.Error(t, g.Validate())
		})
	}
}

func TestEntryPointPrefersStartMark(t *testing.T) {
	doc := `{"nodes":[{"id":"a","type":"message"},{"id":"b","type":"message","start":true}],
	         "edges":[{"source":"a","target":"b"},{"source":"b","target":"a"}]}`
	g, err := ParseFlowGraph("1", []byte(doc))
	require.NoError(t, err)

	entry, err := g.EntryPoint()
	require.NoError(t, err)
	assert.Equal(t, "b", entry)
}

func TestDecodeNodeData(t *testing.T) {
	q := DecodeNodeData(NodeTypeQuestion, []byte(`{"question":"Pick","options":["A"," ","B"]}`)).(QuestionData)
	assert.Equal(t, []string{"A", "B"}, q.Options)

	api := DecodeNodeData(NodeTypeAPI, []byte(`{"url":"http://x","headers":{"X-A":"1"},"body":"{\"a\":1}"}`)).(APIData)
	assert.Equal(t, "GET", api.Method)
	assert.JSONEq(t, `{"X-A":"1"}`, api.Headers)
	assert.Equal(t, `{"a":1}`, api.Body)

	rec := DecodeNodeData(NodeTypeCreateRecord, []byte(`{"fields":"{\"TITLE\":\"t\"}"}`)).(CreateRecordData)
	assert.Equal(t, "lead", rec.Entity)

	ai := DecodeNodeData(NodeTypeAIReply, []byte(`{"sendReply":false}`)).(AIReplyData)
	assert.False(t, ai.SendReply)
}

func TestNodeMarshalKeepsAuthoredData(t *testing.T) {
	g, err := ParseFlowGraph("1", []byte(`{"nodes":[{"id":"a","type":"message","data":{"content":"hi","color":"red"}}]}`))
	require.NoError(t, err)

	out, err := json.Marshal(g.Nodes[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","type":"message","data":{"content":"hi","color":"red"}}`, string(out))
}
