package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/speedauto/speedauto-assistant-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
)

var _ port.MemoryStore = (*Store)(nil)

// InsertMemory appends a row to the memory table.
func (s *Store) InsertMemory(ctx context.Context, row port.MemoryRow) error {
	ctx, span := tracer.Start(ctx, "Postgres.InsertMemory")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", row.SessionID), attribute.String("memory.key", row.Key))

	const q = `INSERT INTO memory (session_id, key, value, embedding) VALUES ($1, $2, $3, $4)`
	return s.run(ctx, "postgres/memory", false, func() error {
		_, err := s.db.ExecContext(ctx, q, row.SessionID, row.Key, row.Value, vectorLiteral(row.Embedding))
		return err
	})
}

// LatestMemory returns the newest row for (sessionID, key), or nil.
func (s *Store) LatestMemory(ctx context.Context, sessionID, key string) (*port.MemoryRow, error) {
	ctx, span := tracer.Start(ctx, "Postgres.LatestMemory")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.String("memory.key", key))

	q, args := newSelect("id, session_id, key, value", "memory").
		eq("session_id", sessionID).
		eq("key", key).
		orderBy("id DESC").
		limitTo(1).
		build()

	var row *port.MemoryRow
	err := s.run(ctx, "postgres/memory", true, func() error {
		var r port.MemoryRow
		err := s.db.QueryRowContext(ctx, q, args...).Scan(&r.ID, &r.SessionID, &r.Key, &r.Value)
		if errors.Is(err, sql.ErrNoRows) {
			row = nil
			return nil
		}
		if err != nil {
			return err
		}
		row = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ListEmbeddedMemory returns the session rows that carry an embedding,
// newest first.
func (s *Store) ListEmbeddedMemory(ctx context.Context, sessionID string, limit int) ([]port.MemoryRow, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListEmbeddedMemory")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	q, args := newSelect("id, session_id, key, value, embedding::text", "memory").
		eq("session_id", sessionID).
		notNull("embedding").
		orderBy("id DESC").
		limitTo(limit).
		build()

	var out []port.MemoryRow
	var vectors []string
	err := s.run(ctx, "postgres/memory", true, func() error {
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out, vectors = nil, nil
		for rows.Next() {
			var r port.MemoryRow
			var emb string
			if err := rows.Scan(&r.ID, &r.SessionID, &r.Key, &r.Value, &emb); err != nil {
				return err
			}
			out = append(out, r)
			vectors = append(vectors, emb)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Embedding, err = parseVector(vectors[i]); err != nil {
			return nil, fmt.Errorf("memory row %d: %w", out[i].ID, err)
		}
	}
	return out, nil
}
