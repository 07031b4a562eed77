package postgres

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// selectBuilder assembles a parameterised SELECT with optional filters.
type selectBuilder struct {
	cols  string
	table string
	where []string
	args  []any
	order string
	limit int
}

func newSelect(cols, table string) *selectBuilder {
	return &selectBuilder{cols: cols, table: table}
}

func (b *selectBuilder) next() string {
	return "$" + strconv.Itoa(len(b.args))
}

// eq adds "col = $n" when value is not empty.
func (b *selectBuilder) eq(col, value string) *selectBuilder {
	if value == "" {
		return b
	}
	b.args = append(b.args, value)
	b.where = append(b.where, fmt.Sprintf("%s = %s", col, b.next()))
	return b
}

// ilike adds a case-insensitive substring match when value is not empty.
func (b *selectBuilder) ilike(col, value string) *selectBuilder {
	if value == "" {
		return b
	}
	b.args = append(b.args, "%"+escapeLike(value)+"%")
	b.where = append(b.where, fmt.Sprintf(`%s ILIKE %s`, col, b.next()))
	return b
}

func (b *selectBuilder) notNull(col string) *selectBuilder {
	b.where = append(b.where, col+" IS NOT NULL")
	return b
}

func (b *selectBuilder) orderBy(expr string) *selectBuilder {
	b.order = expr
	return b
}

func (b *selectBuilder) limitTo(n int) *selectBuilder {
	b.limit = n
	return b
}

func (b *selectBuilder) build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(b.cols)
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if b.order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.order)
	}
	args := b.args
	if b.limit > 0 {
		args = append(args, b.limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	return sb.String(), args
}

// escapeLike escapes the LIKE metacharacters so user text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

// vectorLiteral renders an embedding in pgvector text form: [0.1,0.2,...].
func vectorLiteral(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVector reads the pgvector text form back into a slice.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("parse vector %q: %w", s, err)
	}
	return v, nil
}
