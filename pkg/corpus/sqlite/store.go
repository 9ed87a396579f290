// Package sqlite implements the workflow corpus on SQLite. Similarity is
// computed exactly in Go over all stored vectors, which is adequate for
// corpora of a few thousand records.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/xrsl/solvx/pkg/corpus"
	"github.com/xrsl/solvx/pkg/workflow"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    domain TEXT NOT NULL,
    sub_domain TEXT NOT NULL DEFAULT 'general',
    source_book TEXT NOT NULL DEFAULT '',
    task_summary TEXT NOT NULL,
    full_prompt TEXT NOT NULL,
    key_questions TEXT NOT NULL DEFAULT '[]',
    problem_patterns TEXT NOT NULL DEFAULT '[]',
    synergy_triggers TEXT NOT NULL DEFAULT '[]',
    complexity TEXT NOT NULL DEFAULT 'medium',
    estimated_duration_min INTEGER,
    embedding BLOB,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_workflows_domain ON workflows(domain);
CREATE INDEX IF NOT EXISTS idx_workflows_name_domain ON workflows(name, domain);
`

const columns = `id, name, domain, sub_domain, source_book, task_summary, full_prompt,
    key_questions, problem_patterns, synergy_triggers, complexity, estimated_duration_min`

// Store is a SQLite-backed corpus.
type Store struct {
	db *sqlx.DB
}

var _ corpus.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	memory := path == ":memory:"
	dsn := path
	if !memory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create corpus dir: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// each connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type row struct {
	ID                   string        `db:"id"`
	Name                 string        `db:"name"`
	Domain               string        `db:"domain"`
	SubDomain            string        `db:"sub_domain"`
	SourceBook           string        `db:"source_book"`
	TaskSummary          string        `db:"task_summary"`
	FullPrompt           string        `db:"full_prompt"`
	KeyQuestions         string        `db:"key_questions"`
	ProblemPatterns      string        `db:"problem_patterns"`
	SynergyTriggers      string        `db:"synergy_triggers"`
	Complexity           string        `db:"complexity"`
	EstimatedDurationMin sql.NullInt64 `db:"estimated_duration_min"`
	Embedding            []byte        `db:"embedding"`
}

func toRow(r workflow.Record) (row, error) {
	out := row{
		ID:          r.ID,
		Name:        r.Name,
		Domain:      string(r.Domain),
		SubDomain:   r.SubDomain,
		SourceBook:  r.SourceBook,
		TaskSummary: r.TaskSummary,
		FullPrompt:  r.FullPrompt,
		Complexity:  string(r.Complexity),
		Embedding:   encodeVector(r.Embedding),
	}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.SubDomain == "" {
		out.SubDomain = "general"
	}
	if out.Complexity == "" {
		out.Complexity = string(workflow.Medium)
	}
	if r.EstimatedDurationMin != nil {
		out.EstimatedDurationMin = sql.NullInt64{Int64: int64(*r.EstimatedDurationMin), Valid: true}
	}

	var err error
	if out.KeyQuestions, err = encodeList(r.KeyQuestions); err != nil {
		return row{}, err
	}
	if out.ProblemPatterns, err = encodeList(r.ProblemPatterns); err != nil {
		return row{}, err
	}
	if out.SynergyTriggers, err = encodeList(r.SynergyTriggers); err != nil {
		return row{}, err
	}
	return out, nil
}

func (r row) record() (workflow.Record, error) {
	rec := workflow.Record{
		ID:          r.ID,
		Name:        r.Name,
		Domain:      workflow.Domain(r.Domain),
		SubDomain:   r.SubDomain,
		SourceBook:  r.SourceBook,
		TaskSummary: r.TaskSummary,
		FullPrompt:  r.FullPrompt,
		Complexity:  workflow.Complexity(r.Complexity),
		Embedding:   decodeVector(r.Embedding),
	}
	if r.EstimatedDurationMin.Valid {
		d := int(r.EstimatedDurationMin.Int64)
		rec.EstimatedDurationMin = &d
	}
	if err := json.Unmarshal([]byte(r.KeyQuestions), &rec.KeyQuestions); err != nil {
		return rec, fmt.Errorf("record %s: key_questions: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.ProblemPatterns), &rec.ProblemPatterns); err != nil {
		return rec, fmt.Errorf("record %s: problem_patterns: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.SynergyTriggers), &rec.SynergyTriggers); err != nil {
		return rec, fmt.Errorf("record %s: synergy_triggers: %w", r.ID, err)
	}
	return rec, nil
}

func encodeList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

// encodeVector stores float32s little-endian; nil stays NULL.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func (s *Store) Insert(ctx context.Context, records []workflow.Record) (corpus.InsertResult, error) {
	failed := corpus.InsertResult{Failed: len(records)}
	if len(records) == 0 {
		return corpus.InsertResult{}, nil
	}
	if err := corpus.ValidateRecords(records); err != nil {
		return failed, err
	}

	rows := make([]row, len(records))
	for i, r := range records {
		var err error
		if rows[i], err = toRow(r); err != nil {
			return failed, err
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return failed, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO workflows (`+columns+`, embedding)
        VALUES (:id, :name, :domain, :sub_domain, :source_book, :task_summary, :full_prompt,
            :key_questions, :problem_patterns, :synergy_triggers, :complexity, :estimated_duration_min, :embedding)`)
	if err != nil {
		return failed, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(rows))
	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, r); err != nil {
			return failed, fmt.Errorf("failed to insert %q: %w", r.Name, err)
		}
		ids[i] = r.ID
	}

	if err := tx.Commit(); err != nil {
		return failed, fmt.Errorf("failed to commit: %w", err)
	}
	return corpus.InsertResult{Inserted: len(rows), IDs: ids}, nil
}

func (s *Store) Search(ctx context.Context, p corpus.SearchParams) ([]corpus.Result, error) {
	if err := corpus.ValidateVector(p.Vector); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		return []corpus.Result{}, nil
	}

	query := `SELECT ` + columns + `, embedding FROM workflows WHERE embedding IS NOT NULL`
	var args []any
	if len(p.Domains) > 0 {
		q, a, err := sqlx.In(query+` AND domain IN (?)`, corpus.DomainStrings(p.Domains))
		if err != nil {
			return nil, err
		}
		query, args = s.db.Rebind(q), a
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	results := []corpus.Result{}
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		sim, ok := corpus.Cosine(p.Vector, rec.Embedding)
		if !ok || sim <= p.Threshold {
			continue
		}
		rec.Embedding = nil
		results = append(results, corpus.Result{Record: rec, Similarity: sim})
	}
	return corpus.Rank(results, p.Limit), nil
}

func (s *Store) Exists(ctx context.Context, key workflow.Key) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM workflows WHERE name = ? AND domain = ?`, key.Name, string(key.Domain))
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Keys(ctx context.Context) (map[workflow.Key]bool, error) {
	var rows []struct {
		Name   string `db:"name"`
		Domain string `db:"domain"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT name, domain FROM workflows`); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	keys := make(map[workflow.Key]bool, len(rows))
	for _, r := range rows {
		keys[workflow.Key{Name: r.Name, Domain: workflow.Domain(r.Domain)}] = true
	}
	return keys, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workflows`); err != nil {
		return fmt.Errorf("failed to clear workflows: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM workflows`); err != nil {
		return 0, fmt.Errorf("failed to count workflows: %w", err)
	}
	return n, nil
}

func (s *Store) CountEmbedded(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM workflows WHERE embedding IS NOT NULL`); err != nil {
		return 0, fmt.Errorf("failed to count embedded workflows: %w", err)
	}
	return n, nil
}

func (s *Store) CountByDomain(ctx context.Context) (map[workflow.Domain]int, error) {
	var rows []struct {
		Domain string `db:"domain"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT domain, COUNT(*) AS n FROM workflows GROUP BY domain`); err != nil {
		return nil, fmt.Errorf("failed to count by domain: %w", err)
	}
	out := make(map[workflow.Domain]int, len(rows))
	for _, r := range rows {
		out[workflow.Domain(r.Domain)] = r.N
	}
	return out, nil
}

func (s *Store) Sample(ctx context.Context) (*corpus.Sample, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT `+columns+`, embedding FROM workflows ORDER BY created_at, id LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sample workflow: %w", err)
	}
	rec, err := r.record()
	if err != nil {
		return nil, err
	}
	sample := &corpus.Sample{Record: rec, Dimensions: len(rec.Embedding)}
	sample.Record.Embedding = nil
	return sample, nil
}
