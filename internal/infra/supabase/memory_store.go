package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/speedauto/speedauto-assistant-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
)

// memoryTable is the append-only session memory table.
const memoryTable = "memory"

var _ port.MemoryStore = (*Client)(nil)

type supabaseMemoryRow struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// InsertMemory appends a memory row.
func (c *Client) InsertMemory(ctx context.Context, row port.MemoryRow) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertMemory")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", row.SessionID), attribute.String("memory.key", row.Key))

	payload := map[string]any{
		"session_id": row.SessionID,
		"key":        row.Key,
		"value":      row.Value,
	}
	if len(row.Embedding) > 0 {
		payload["embedding"] = row.Embedding
	}

	return c.runOnce(ctx, "supabase/memory", func() error {
		_, err := c.doPost(ctx, memoryTable, payload)
		return err
	})
}

// LatestMemory returns the newest row for (sessionID, key), or nil.
func (c *Client) LatestMemory(ctx context.Context, sessionID, key string) (*port.MemoryRow, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LatestMemory")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.String("memory.key", key))

	path := newQuery(memoryTable).
		selectCols("id,session_id,key,value").
		eq("session_id", sessionID).
		eq("key", key).
		order("id.desc").
		limit(1).
		String()

	var rows []supabaseMemoryRow
	err := c.run(ctx, "supabase/memory", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows = nil
		if len(body) == 0 {
			return nil
		}
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	r := rows[0]
	return &port.MemoryRow{
		ID:        r.ID,
		SessionID: r.SessionID,
		Key:       r.Key,
		Value:     r.Value,
	}, nil
}

type supabaseEmbeddedRow struct {
	supabaseMemoryRow
	Embedding json.RawMessage `json:"embedding"`
}

// ListEmbeddedMemory returns the session rows that carry an embedding,
// newest first.
func (c *Client) ListEmbeddedMemory(ctx context.Context, sessionID string, limit int) ([]port.MemoryRow, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListEmbeddedMemory")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	path := newQuery(memoryTable).
		selectCols("id,session_id,key,value,embedding").
		eq("session_id", sessionID).
		notNull("embedding").
		order("id.desc").
		limit(limit).
		String()

	var rows []supabaseEmbeddedRow
	err := c.run(ctx, "supabase/memory", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows = nil
		if len(body) == 0 {
			return nil
		}
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return nil, err
	}

	out := make([]port.MemoryRow, 0, len(rows))
	for _, r := range rows {
		emb, err := decodeEmbedding(r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("memory row %d: %w", r.ID, err)
		}
		out = append(out, port.MemoryRow{
			ID:        r.ID,
			SessionID: r.SessionID,
			Key:       r.Key,
			Value:     r.Value,
			Embedding: emb,
		})
	}
	return out, nil
}

// decodeEmbedding aceita as duas formas que o PostgREST devolve: array JSON
// (coluna real[]) ou a string de texto do pgvector ("[0.1,0.2]").
func decodeEmbedding(raw json.RawMessage) ([]float32, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		raw = json.RawMessage(text)
	}
	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return v, nil
}
