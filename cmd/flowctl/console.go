package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
)

// consoleGateway prints messages and keeps CRM records in memory so flows
// can be tried without a portal.
type consoleGateway struct {
	out io.Writer

	mu      sync.Mutex
	records map[string]map[string]any
	nextID  int
}

var _ engine.Gateway = (*consoleGateway)(nil)

func newConsoleGateway(out io.Writer) *consoleGateway {
	return &consoleGateway{out: out, records: make(map[string]map[string]any)}
}

func (g *consoleGateway) SendMessage(ctx context.Context, dialogID kernel.DialogID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	fmt.Fprintf(g.out, "💬 [%s] %s\n", dialogID, text)
	return nil
}

func (g *consoleGateway) UpdateRecord(ctx context.Context, entity, id string, fields map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := entity + ":" + id
	record, ok := g.records[key]
	if !ok {
		record = map[string]any{"ID": id}
		g.records[key] = record
	}
	for k, v := range fields {
		record[k] = v
	}
	fmt.Fprintf(g.out, "📝 %s %s updated: %s\n", entity, id, compact(fields))
	return nil
}

func (g *consoleGateway) CreateRecord(ctx context.Context, entity string, fields map[string]any) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	id := strconv.Itoa(g.nextID)
	record := map[string]any{"ID": id}
	for k, v := range fields {
		record[k] = v
	}
	g.records[entity+":"+id] = record

	fmt.Fprintf(g.out, "➕ %s %s created: %s\n", entity, id, compact(fields))
	return map[string]any{"result": g.nextID}, nil
}

func (g *consoleGateway) GetRecord(ctx context.Context, entity, id string) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	record, ok := g.records[entity+":"+id]
	if !ok {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out, nil
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
