// Package postgres implements the workflow corpus on PostgreSQL with the
// pgvector extension. Search goes through the match_workflows SQL function
// created by Migrate.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xrsl/solvx/pkg/corpus"
	"github.com/xrsl/solvx/pkg/workflow"
)

//go:embed schema.sql
var schema string

// Store is a pgvector-backed corpus.
type Store struct {
	db *pgxpool.Pool
}

var _ corpus.Store = (*Store)(nil)

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres corpus requires a DSN (set DATABASE_URL or corpus.dsn)")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. Call Migrate before use on a fresh database.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// Migrate creates the extension, table, indexes and search function.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

const insertSQL = `INSERT INTO workflows (id, name, domain, sub_domain, source_book, task_summary,
    full_prompt, key_questions, problem_patterns, synergy_triggers, complexity,
    estimated_duration_min, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::vector)`

func (s *Store) Insert(ctx context.Context, records []workflow.Record) (corpus.InsertResult, error) {
	failed := corpus.InsertResult{Failed: len(records)}
	if len(records) == 0 {
		return corpus.InsertResult{}, nil
	}
	if err := corpus.ValidateRecords(records); err != nil {
		return failed, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return failed, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	ids := make([]string, len(records))
	for i, r := range records {
		id := uuid.New()
		if r.ID != "" {
			if parsed, err := uuid.Parse(r.ID); err == nil {
				id = parsed
			}
		}
		ids[i] = id.String()

		var vec any
		if r.Embedding != nil {
			vec = pgvector.NewVector(r.Embedding)
		}
		subDomain := r.SubDomain
		if subDomain == "" {
			subDomain = "general"
		}
		complexity := r.Complexity
		if complexity == "" {
			complexity = workflow.Medium
		}
		batch.Queue(insertSQL,
			id, r.Name, string(r.Domain), subDomain, r.SourceBook, r.TaskSummary, r.FullPrompt,
			nonNil(r.KeyQuestions), nonNil(r.ProblemPatterns), nonNil(corpus.DomainStrings(r.SynergyTriggers)),
			string(complexity), r.EstimatedDurationMin, vec,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return failed, fmt.Errorf("failed to insert batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return failed, fmt.Errorf("failed to commit: %w", err)
	}
	return corpus.InsertResult{Inserted: len(records), IDs: ids}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Store) Search(ctx context.Context, p corpus.SearchParams) ([]corpus.Result, error) {
	if err := corpus.ValidateVector(p.Vector); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		return []corpus.Result{}, nil
	}

	rows, err := s.db.Query(ctx, `SELECT id, name, domain, sub_domain, source_book, task_summary,
            full_prompt, key_questions, problem_patterns, synergy_triggers, complexity,
            estimated_duration_min, similarity
        FROM match_workflows($1::vector, $2, $3, $4)`,
		pgvector.NewVector(p.Vector), p.Threshold, p.Limit, corpus.DomainStrings(p.Domains))
	if err != nil {
		return nil, fmt.Errorf("match_workflows failed: %w", err)
	}
	defer rows.Close()

	results := []corpus.Result{}
	for rows.Next() {
		var (
			r          workflow.Record
			domain     string
			complexity string
			synergy    []string
			duration   *int32
			similarity float64
		)
		if err := rows.Scan(&r.ID, &r.Name, &domain, &r.SubDomain, &r.SourceBook, &r.TaskSummary,
			&r.FullPrompt, &r.KeyQuestions, &r.ProblemPatterns, &synergy, &complexity,
			&duration, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		r.Domain = workflow.Domain(domain)
		r.Complexity = workflow.Complexity(complexity)
		r.SynergyTriggers = toDomains(synergy)
		if duration != nil {
			d := int(*duration)
			r.EstimatedDurationMin = &d
		}
		results = append(results, corpus.Result{Record: r, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The function already orders; Rank keeps tie-breaking identical to sqlite.
	return corpus.Rank(results, p.Limit), nil
}

func toDomains(ss []string) []workflow.Domain {
	out := make([]workflow.Domain, len(ss))
	for i, s := range ss {
		out[i] = workflow.Domain(s)
	}
	return out
}

func (s *Store) Exists(ctx context.Context, key workflow.Key) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM workflows WHERE name = $1 AND domain = $2)`,
		key.Name, string(key.Domain)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return exists, nil
}

func (s *Store) Keys(ctx context.Context) (map[workflow.Key]bool, error) {
	rows, err := s.db.Query(ctx, `SELECT name, domain FROM workflows`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[workflow.Key]bool)
	for rows.Next() {
		var name, domain string
		if err := rows.Scan(&name, &domain); err != nil {
			return nil, err
		}
		keys[workflow.Key{Name: name, Domain: workflow.Domain(domain)}] = true
	}
	return keys, rows.Err()
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM workflows`); err != nil {
		return fmt.Errorf("failed to clear workflows: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM workflows`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count workflows: %w", err)
	}
	return n, nil
}

func (s *Store) CountEmbedded(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM workflows WHERE embedding IS NOT NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count embedded workflows: %w", err)
	}
	return n, nil
}

func (s *Store) CountByDomain(ctx context.Context) (map[workflow.Domain]int, error) {
	rows, err := s.db.Query(ctx, `SELECT domain, COUNT(*) FROM workflows GROUP BY domain`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by domain: %w", err)
	}
	defer rows.Close()

	out := make(map[workflow.Domain]int)
	for rows.Next() {
		var domain string
		var n int
		if err := rows.Scan(&domain, &n); err != nil {
			return nil, err
		}
		out[workflow.Domain(domain)] = n
	}
	return out, rows.Err()
}

func (s *Store) Sample(ctx context.Context) (*corpus.Sample, error) {
	var (
		r          workflow.Record
		domain     string
		complexity string
		synergy    []string
		dims       int
	)
	err := s.db.QueryRow(ctx, `SELECT id::text, name, domain, sub_domain, source_book, task_summary,
            full_prompt, key_questions, problem_patterns, synergy_triggers, complexity,
            COALESCE(vector_dims(embedding), 0)
        FROM workflows ORDER BY created_at, id LIMIT 1`).
		Scan(&r.ID, &r.Name, &domain, &r.SubDomain, &r.SourceBook, &r.TaskSummary, &r.FullPrompt,
			&r.KeyQuestions, &r.ProblemPatterns, &synergy, &complexity, &dims)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sample workflow: %w", err)
	}
	r.Domain = workflow.Domain(domain)
	r.Complexity = workflow.Complexity(complexity)
	r.SynergyTriggers = toDomains(synergy)
	return &corpus.Sample{Record: r, Dimensions: dims}, nil
}
