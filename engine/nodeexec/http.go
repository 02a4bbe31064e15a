package nodeexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/itchyny/gojq"
)

const (
	maxAPIResponseBytes = 1 << 20
	maxAPIRetries       = 3
)

// APIExecutor issues the HTTP call of an api node and stores the response in
// the run variables.
type APIExecutor struct {
	httpClient     *http.Client
	expr           engine.ExpressionEvaluator
	defaultTimeout time.Duration
}

var _ engine.NodeExecutor = (*APIExecutor)(nil)

func NewAPIExecutor(httpClient *http.Client, expr engine.ExpressionEvaluator, defaultTimeout time.Duration) *APIExecutor {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &APIExecutor{httpClient: httpClient, expr: expr, defaultTimeout: defaultTimeout}
}

func (e *APIExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeAPI
}

func (e *APIExecutor) Execute(ctx context.Context, node engine.Node, run *engine.RunContext) (*engine.NodeOutcome, error) {
	data, ok := node.Data.(engine.APIData)
	if !ok {
		return nil, dataMismatch(node)
	}

	// JSON text is validated before any template is touched.
	headers, err := parseJSONObject("headers", data.Headers)
	if err != nil {
		return nil, err
	}
	var body any
	if data.Body != "" {
		if err := json.Unmarshal([]byte(data.Body), &body); err != nil {
			return nil, engine.ErrMalformedPayload("body", err)
		}
	}
	var extract map[string]string
	if data.Extract != "" {
		if err := json.Unmarshal([]byte(data.Extract), &extract); err != nil {
			return nil, engine.ErrMalformedPayload("extract", err)
		}
	}

	url, err := render(ctx, e.expr, "url", data.URL, run)
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, engine.ErrMissingField("url")
	}

	renderedHeaders, err := renderValue(ctx, e.expr, "headers", headers, run)
	if err != nil {
		return nil, err
	}
	renderedBody, err := renderValue(ctx, e.expr, "body", body, run)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if renderedBody != nil {
		payload, err = json.Marshal(renderedBody)
		if err != nil {
			return nil, engine.ErrMalformedPayload("body", err)
		}
	}

	timeout := e.defaultTimeout
	if data.TimeoutSeconds > 0 {
		timeout = time.Duration(data.TimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Printf("🌐 API node %s: %s %s", node.ID, data.Method, url)

	resp, err := e.doWithRetry(reqCtx, data.Method, url, renderedHeaders, payload, max(0, min(data.Retries, maxAPIRetries)))
	if err != nil {
		return nil, engine.ErrProvider("api", err)
	}

	result := map[string]any{
		"status_code": resp.statusCode,
		"body":        string(resp.body),
	}
	var parsed any
	if len(resp.body) > 0 && json.Unmarshal(resp.body, &parsed) == nil {
		result["json"] = parsed
	}

	if resp.statusCode < 200 || resp.statusCode >= 300 {
		return nil, engine.ErrProvider("api", fmt.Errorf("%s %s returned status %d: %s",
			data.Method, url, resp.statusCode, truncate(string(resp.body), 200)))
	}

	variable := data.Variable
	if variable == "" {
		variable = node.ID
	}
	output := map[string]any{
		variable:       result,
		"api_response": result,
	}

	for name, query := range extract {
		value, err := runJQ(ctx, query, parsed)
		if err != nil {
			return nil, engine.ErrMalformedPayload("extract."+name, err)
		}
		output[name] = value
	}

	log.Printf("✅ API node %s: status %d", node.ID, resp.statusCode)
	return &engine.NodeOutcome{Output: output}, nil
}

type apiResponse struct {
	statusCode int
	body       []byte
}

// doWithRetry retries transport errors and 5xx responses with a linear backoff.
func (e *APIExecutor) doWithRetry(
	ctx context.Context,
	method, url string,
	headers any,
	payload []byte,
	retries int,
) (*apiResponse, error) {
	retries = max(retries, 0)
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			log.Printf("   🔄 Retry attempt %d/%d", attempt, retries)
			if err := sleepContext(ctx, time.Duration(attempt)*time.Second); err != nil {
				return nil, err
			}
		}

		resp, err := e.do(ctx, method, url, headers, payload)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.statusCode < 500 || attempt == retries {
			return resp, nil
		}
	}
	return nil, lastErr
}

func (e *APIExecutor) do(ctx context.Context, method, url string, headers any, payload []byte) (*apiResponse, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if h, ok := headers.(map[string]any); ok {
		for key, value := range h {
			req.Header.Set(key, engine.Stringify(value))
		}
	}
	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &apiResponse{statusCode: resp.StatusCode, body: bodyBytes}, nil
}

// runJQ returns the first value the query yields, nil when it yields none.
func runJQ(ctx context.Context, query string, input any) (any, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, err
	}
	code, err := gojq.Compile(parsed, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, input)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := v.(error); isErr {
		return nil, err
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
