package engine

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// NodeData is the typed payload of a node. Exactly one variant exists per
// NodeType; unknown types decode to UnknownData.
type NodeData interface {
	NodeType() NodeType
}

type MessageData struct {
	Content string `json:"content"`
}

type QuestionData struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type MediaData struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// ConditionData: ConditionType is "cadastro" (field presence) or "valor"
// (value comparison).
type ConditionData struct {
	ConditionType string `json:"conditionType"`
	Field         string `json:"field,omitempty"`
	Comparison    string `json:"comparison,omitempty"`
	Entity        string `json:"entity,omitempty"`
	EntityID      string `json:"entity_id,omitempty"`
}

// APIData keeps Headers, Body and Extract as the JSON text the editor stores.
type APIData struct {
	Method         string `json:"method"`
	URL            string `json:"url"`
	Headers        string `json:"headers,omitempty"`
	Body           string `json:"body,omitempty"`
	Variable       string `json:"variable,omitempty"`
	Extract        string `json:"extract,omitempty"`
	TimeoutSeconds int    `json:"timeout,omitempty"`
	Retries        int    `json:"retries,omitempty"`
}

type UpdateCRMData struct {
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id"`
	Field    string `json:"field"`
	Value    string `json:"value"`
}

// CreateRecordData.Fields is JSON text.
type CreateRecordData struct {
	Entity string `json:"entity"`
	Stage  string `json:"stage,omitempty"`
	Fields string `json:"fields"`
}

// IntervalData.Duration is the authored value in seconds, possibly empty.
type IntervalData struct {
	Duration string `json:"duration"`
}

type AIReplyData struct {
	APIKey       string `json:"apiKey"`
	Instructions string `json:"instructions"`
	Model        string `json:"model,omitempty"`
	SendReply    bool   `json:"sendReply"`
}

type EndData struct{}

type UnknownData struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

func (MessageData) NodeType() NodeType      { return NodeTypeMessage }
func (QuestionData) NodeType() NodeType     { return NodeTypeQuestion }
func (MediaData) NodeType() NodeType        { return NodeTypeMedia }
func (ConditionData) NodeType() NodeType    { return NodeTypeCondition }
func (APIData) NodeType() NodeType          { return NodeTypeAPI }
func (UpdateCRMData) NodeType() NodeType    { return NodeTypeUpdateCRM }
func (CreateRecordData) NodeType() NodeType { return NodeTypeCreateRecord }
func (IntervalData) NodeType() NodeType     { return NodeTypeInterval }
func (AIReplyData) NodeType() NodeType      { return NodeTypeAIReply }
func (EndData) NodeType() NodeType          { return NodeTypeEnd }
func (u UnknownData) NodeType() NodeType    { return NodeType(u.Type) }

const DefaultCRMEntity = "lead"

// DecodeNodeData turns the authored data object into its typed variant.
// Decoding never fails: missing fields stay empty and executors report them.
func DecodeNodeData(t NodeType, raw []byte) NodeData {
	d := gjson.ParseBytes(raw)

	switch t {
	case NodeTypeMessage:
		return MessageData{Content: d.Get("content").String()}

	case NodeTypeQuestion:
		q := QuestionData{Question: d.Get("question").String()}
		for _, opt := range d.Get("options").Array() {
			if s := strings.TrimSpace(opt.String()); s != "" {
				q.Options = append(q.Options, s)
			}
		}
		return q

	case NodeTypeMedia:
		return MediaData{
			URL:     strings.TrimSpace(d.Get("url").String()),
			Caption: d.Get("caption").String(),
		}

	case NodeTypeCondition:
		return ConditionData{
			ConditionType: d.Get("conditionType").String(),
			Field:         d.Get("field").String(),
			Comparison:    d.Get("comparison").String(),
			Entity:        d.Get("entity").String(),
			EntityID:      firstString(d, "entity_id", "entityId"),
		}

	case NodeTypeAPI:
		return APIData{
			Method:         strings.ToUpper(orDefault(d.Get("method").String(), "GET")),
			URL:            strings.TrimSpace(d.Get("url").String()),
			Headers:        jsonText(d.Get("headers")),
			Body:           jsonText(d.Get("body")),
			Variable:       d.Get("variable").String(),
			Extract:        jsonText(d.Get("extract")),
			TimeoutSeconds: int(d.Get("timeout").Int()),
			Retries:        int(d.Get("retries").Int()),
		}

	case NodeTypeUpdateCRM:
		return UpdateCRMData{
			Entity:   orDefault(d.Get("entity").String(), DefaultCRMEntity),
			EntityID: strings.TrimSpace(firstString(d, "entity_id", "entityId")),
			Field:    d.Get("field").String(),
			Value:    d.Get("value").String(),
		}

	case NodeTypeCreateRecord:
		return CreateRecordData{
			Entity: orDefault(d.Get("entity").String(), DefaultCRMEntity),
			Stage:  d.Get("stage").String(),
			Fields: jsonText(d.Get("fields")),
		}

	case NodeTypeInterval:
		return IntervalData{Duration: strings.TrimSpace(d.Get("duration").String())}

	case NodeTypeAIReply:
		send := d.Get("sendReply")
		return AIReplyData{
			APIKey:       d.Get("apiKey").String(),
			Instructions: d.Get("instructions").String(),
			Model:        d.Get("model").String(),
			SendReply:    !send.Exists() || send.Bool(),
		}

	case NodeTypeEnd:
		return EndData{}

	default:
		return UnknownData{Type: string(t), Raw: json.RawMessage(raw)}
	}
}

// jsonText keeps the editor convention of JSON encoded as text. Objects or
// arrays authored inline are accepted and kept as their raw JSON.
func jsonText(r gjson.Result) string {
	if !r.Exists() || r.Type == gjson.Null {
		return ""
	}
	if r.IsObject() || r.IsArray() {
		return r.Raw
	}
	return strings.TrimSpace(r.String())
}

func firstString(d gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := d.Get(p); v.Exists() && v.Type != gjson.Null {
			return v.String()
		}
	}
	return ""
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
