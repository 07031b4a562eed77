package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ============================================================
// HTTP helpers for POST and PATCH
// ============================================================

func (c *Client) doPost(ctx context.Context, table string, data map[string]any) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, table, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: POST request failed",
			zap.String("table", table),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: POST non-2xx",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, &StatusError{Method: http.MethodPost, Path: table, Status: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("supabase: POST OK", zap.String("table", table), zap.Int("status", resp.StatusCode))
	return body, nil
}

func (c *Client) doPatch(ctx context.Context, path string, data map[string]any) error {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPatch, path, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: PATCH request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := readBody(resp)
		c.logger.Warn("supabase: PATCH non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return &StatusError{Method: http.MethodPatch, Path: path, Status: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("supabase: PATCH OK", zap.String("path", path))
	return nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// insertedID extracts the id of the first row of a return=representation body.
func insertedID(body []byte) (int64, error) {
	var rows []struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("decode inserted row: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("insert returned no rows")
	}
	return rows[0].ID.Int64()
}

// ============================================================
// PostgREST query builder
// ============================================================

// query accumulates PostgREST filters for a table path.
type query struct {
	table  string
	values url.Values
}

func newQuery(table string) *query {
	return &query{table: table, values: url.Values{}}
}

func (q *query) selectCols(cols string) *query {
	q.values.Set("select", cols)
	return q
}

// eq adds column=eq.value when value is not empty.
func (q *query) eq(col, value string) *query {
	if value != "" {
		q.values.Add(col, "eq."+value)
	}
	return q
}

// ilike adds a case-insensitive substring filter when value is not empty.
func (q *query) ilike(col, value string) *query {
	if value != "" {
		q.values.Add(col, "ilike.*"+escapeLike(value)+"*")
	}
	return q
}

// notNull adds column=not.is.null.
func (q *query) notNull(col string) *query {
	q.values.Add(col, "not.is.null")
	return q
}

func (q *query) order(expr string) *query {
	q.values.Set("order", expr)
	return q
}

func (q *query) limit(n int) *query {
	if n > 0 {
		q.values.Set("limit", strconv.Itoa(n))
	}
	return q
}

func (q *query) String() string {
	if len(q.values) == 0 {
		return q.table
	}
	return q.table + "?" + q.values.Encode()
}

// escapeLike neutralises the PostgREST pattern wildcards and the
// characters that would break the filter syntax.
func escapeLike(s string) string {
	r := strings.NewReplacer("*", "", "%", "", ",", " ", "(", " ", ")", " ")
	return strings.TrimSpace(r.Replace(s))
}
