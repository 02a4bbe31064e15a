// Package bitrix talks to a Bitrix24 portal through an inbound webhook URL:
// open-lines bot messages and CRM records.
package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Abraxas-365/chatflow/channels"
	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/logx"
	"github.com/tidwall/gjson"
)

const (
	methodBotMessage  = "imbot.message.add"
	methodUserMessage = "im.message.add"

	DefaultTimeout = 10 * time.Second
)

var entityRegex = regexp.MustCompile(`^[a-z][a-z_]*$`)

// Client is the Bitrix24 gateway adapter.
type Client struct {
	webhookURL string
	botID      string
	httpClient *http.Client
}

var _ engine.Gateway = (*Client)(nil)

func NewClient(cfg config.BitrixConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		webhookURL: strings.TrimRight(cfg.WebhookURL, "/"),
		botID:      cfg.BotID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ============================================================================
// Messaging
// ============================================================================

// SendMessage posts text to a dialog, as the bot when a bot id is configured.
func (c *Client) SendMessage(ctx context.Context, dialogID kernel.DialogID, text string) error {
	if dialogID.IsEmpty() {
		return channels.ErrInvalidRecipient()
	}

	method := methodUserMessage
	params := map[string]any{
		"DIALOG_ID": dialogID.String(),
		"MESSAGE":   text,
	}
	if c.botID != "" {
		method = methodBotMessage
		params["BOT_ID"] = c.botID
	}

	if _, err := c.call(ctx, method, params); err != nil {
		log.Printf("❌ Bitrix message to %s failed: %v", dialogID, err)
		return err
	}

	log.Printf("📤 Bitrix message sent to %s", dialogID)
	return nil
}

// ============================================================================
// CRM
// ============================================================================

func (c *Client) UpdateRecord(ctx context.Context, entity, id string, fields map[string]any) error {
	if !entityRegex.MatchString(entity) {
		return channels.ErrInvalidEntity().WithDetail("entity", entity)
	}

	result, err := c.call(ctx, "crm."+entity+".update", map[string]any{
		"id":     id,
		"fields": fields,
	})
	if err != nil {
		return err
	}
	if result.Type == gjson.False {
		return channels.ErrProviderAPIError().
			WithDetail("method", "crm."+entity+".update").
			WithDetail("reason", "update was not applied")
	}
	return nil
}

// CreateRecord returns the whole response; "result" holds the new id.
func (c *Client) CreateRecord(ctx context.Context, entity string, fields map[string]any) (map[string]any, error) {
	if !entityRegex.MatchString(entity) {
		return nil, channels.ErrInvalidEntity().WithDetail("entity", entity)
	}

	result, err := c.call(ctx, "crm."+entity+".add", map[string]any{"fields": fields})
	if err != nil {
		return nil, err
	}

	return map[string]any{"result": result.Value()}, nil
}

func (c *Client) GetRecord(ctx context.Context, entity, id string) (map[string]any, error) {
	if !entityRegex.MatchString(entity) {
		return nil, channels.ErrInvalidEntity().WithDetail("entity", entity)
	}

	result, err := c.call(ctx, "crm."+entity+".get", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}

	record, ok := result.Value().(map[string]any)
	if !ok {
		return nil, channels.ErrRecordNotFound().
			WithDetail("entity", entity).
			WithDetail("id", id)
	}
	return record, nil
}

// ============================================================================
// Transport
// ============================================================================

// call invokes a REST method and returns its "result" member.
func (c *Client) call(ctx context.Context, method string, params map[string]any) (gjson.Result, error) {
	if c.webhookURL == "" {
		return gjson.Result{}, channels.ErrProviderNotConfigured().WithDetail("provider", "bitrix")
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to marshal %s params: %w", method, err)
	}

	url := fmt.Sprintf("%s/%s.json", c.webhookURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, channels.ErrProviderAPIError().
			WithDetail("method", method).
			WithDetail("cause", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, channels.ErrProviderAPIError().
			WithDetail("method", method).
			WithDetail("cause", err.Error())
	}

	if apiErr := parseError(method, resp.StatusCode, body); apiErr != nil {
		logx.Error("Bitrix %s failed with status %d: %s", method, resp.StatusCode, string(body))
		return gjson.Result{}, apiErr
	}

	return gjson.GetBytes(body, "result"), nil
}

// parseError maps a Bitrix error body ({"error": "...", "error_description":
// "..."}) or a non-2xx status onto a channel error.
func parseError(method string, status int, body []byte) error {
	code := gjson.GetBytes(body, "error").String()
	description := gjson.GetBytes(body, "error_description").String()

	if code == "" && status >= 200 && status < 300 {
		if !gjson.ValidBytes(body) {
			return channels.ErrProviderAPIError().
				WithDetail("method", method).
				WithDetail("reason", "response is not JSON")
		}
		return nil
	}

	var e = channels.ErrProviderAPIError()
	switch {
	case status == http.StatusTooManyRequests || code == "QUERY_LIMIT_EXCEEDED":
		e = channels.ErrProviderRateLimited()
	case status == http.StatusUnauthorized || code == "expired_token" ||
		code == "invalid_token" || code == "INVALID_CREDENTIALS" || code == "NO_AUTH_FOUND":
		e = channels.ErrProviderAuthFailed()
	case code == "NOT_FOUND":
		e = channels.ErrRecordNotFound()
	}

	e = e.WithDetail("method", method).WithDetail("status", status)
	if code != "" {
		e = e.WithDetail("error", code)
	}
	if description != "" {
		e = e.WithDetail("description", description)
	}
	return e
}
