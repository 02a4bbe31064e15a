// Package webhookrouter turns inbound Bitrix24 events into run triggers.
package webhookrouter

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/tidwall/gjson"
)

const (
	EventBotMessage       = "ONIMBOTMESSAGEADD"
	EventConnectorMessage = "ONIMCONNECTORMESSAGEADD"

	crmEventPrefix = "ONCRM"
	crmEventSuffix = "UPDATE"
)

var crmEntities = map[string]string{
	"LEAD":    "lead",
	"DEAL":    "deal",
	"CONTACT": "contact",
	"COMPANY": "company",
}

// Router classifies webhook payloads. It holds no state besides the optional
// application token, so one Router serves every request.
type Router struct {
	applicationToken string
}

// NewRouter: when applicationToken is non-empty, payloads must carry the same
// auth.application_token.
func NewRouter(applicationToken string) *Router {
	return &Router{applicationToken: applicationToken}
}

// Route returns the trigger for payload, or nil when the event is not one that
// starts a run.
func (r *Router) Route(payload []byte) *engine.RunTrigger {
	if !gjson.ValidBytes(payload) {
		log.Printf("⚠️  Ignoring malformed webhook payload (%d bytes)", len(payload))
		return nil
	}
	doc := gjson.ParseBytes(payload)

	if !r.authorized(doc) {
		log.Printf("🚫 Ignoring webhook with wrong application token")
		return nil
	}

	event := strings.ToUpper(strings.TrimSpace(doc.Get("event").String()))

	switch {
	case event == EventBotMessage || event == EventConnectorMessage:
		return inboundMessage(event, doc)
	case strings.HasPrefix(event, crmEventPrefix) && strings.HasSuffix(event, crmEventSuffix):
		return recordUpdated(event, doc)
	default:
		log.Printf("ℹ️  Ignoring webhook event %q", event)
		return nil
	}
}

func (r *Router) authorized(doc gjson.Result) bool {
	if r.applicationToken == "" {
		return true
	}
	got := doc.Get("auth.application_token").String()
	return subtle.ConstantTimeCompare([]byte(got), []byte(r.applicationToken)) == 1
}

func inboundMessage(event string, doc gjson.Result) *engine.RunTrigger {
	dialogID := firstString(doc, "dialog_id", "data.PARAMS.DIALOG_ID")
	if dialogID == "" {
		log.Printf("⚠️  %s without dialog id", event)
		return nil
	}

	return &engine.RunTrigger{
		Kind:     engine.TriggerInboundMessage,
		Event:    event,
		DialogID: kernel.DialogID(dialogID),
		Message:  firstString(doc, "message", "data.PARAMS.MESSAGE"),
	}
}

func recordUpdated(event string, doc gjson.Result) *engine.RunTrigger {
	name := strings.TrimSuffix(strings.TrimPrefix(event, crmEventPrefix), crmEventSuffix)
	entity, ok := crmEntities[name]
	if !ok {
		log.Printf("ℹ️  Ignoring CRM event %q", event)
		return nil
	}

	entityID := firstString(doc, "data.FIELDS.ID", "entity_id")
	if entityID == "" {
		log.Printf("⚠️  %s without record id", event)
		return nil
	}

	trigger := &engine.RunTrigger{
		Kind:     engine.TriggerRecordUpdated,
		Event:    event,
		Entity:   entity,
		EntityID: entityID,
		DialogID: kernel.DialogID(firstString(doc, "dialog_id")),
	}
	if fields, ok := doc.Get("data.FIELDS").Value().(map[string]any); ok {
		trigger.Fields = fields
	}
	return trigger
}

// firstString returns the first non-empty value among paths. Numbers are
// returned in their JSON text form.
func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := doc.Get(p)
		if !v.Exists() {
			continue
		}
		s := strings.TrimSpace(v.String())
		if s != "" {
			return s
		}
	}
	return ""
}
