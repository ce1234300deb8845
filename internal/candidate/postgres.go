package candidate

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricesearch/rice-letor/internal/index"
	"github.com/ricesearch/rice-letor/internal/query"
)

// PostgresProvider runs full-text retrieval against a PostgreSQL table
// with columns (doc_id TEXT, body TEXT, tsv TSVECTOR).
type PostgresProvider struct {
	pool           *pgxpool.Pool
	table          string
	minShouldMatch int
}

// NewPostgresProvider connects to databaseURL and checks the connection.
func NewPostgresProvider(ctx context.Context, databaseURL, collection string, minShouldMatchPct int) (*PostgresProvider, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresProvider{
		pool:           pool,
		table:          TableName(collection),
		minShouldMatch: minShouldMatchPct,
	}, nil
}

// TableName maps a collection name to a safe table name.
func TableName(collection string) string {
	if collection == "" {
		collection = index.DefaultCollection
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, collection)
	if name[0] >= '0' && name[0] <= '9' {
		name = "col_" + name
	}
	return "letor_" + strings.ToLower(name)
}

// SchemaSQL returns the DDL for the documents table and its search index.
func SchemaSQL(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			doc_id TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', body)) STORED
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tsv ON %s USING GIN(tsv)`, table, table),
	}
}

// searchSQL ranks documents matching any term, requiring at least $3 distinct terms.
func searchSQL(table string) string {
	return fmt.Sprintf(`
		SELECT doc_id, ts_rank_cd(tsv, q) AS score, count(*) OVER () AS total
		FROM %s, websearch_to_tsquery('english', $1) q
		WHERE tsv @@ q
		  AND (SELECT count(*) FROM unnest($2::text[]) t WHERE tsv @@ plainto_tsquery('english', t)) >= $3
		ORDER BY score DESC, doc_id
		LIMIT $4
	`, table)
}

// Name returns the provider type.
func (p *PostgresProvider) Name() string { return "postgres" }

// Shared reports true: the connection pool is safe for concurrent use.
func (p *PostgresProvider) Shared() bool { return true }

// Close closes the connection pool.
func (p *PostgresProvider) Close() error {
	p.pool.Close()
	return nil
}

// Candidates runs the full-text query built from the query text.
func (p *PostgresProvider) Candidates(ctx context.Context, _ int, fields query.Fields, maxQty int) (*Set, error) {
	terms := query.UniqueTerms(fields.Text(query.FieldText))
	if len(terms) == 0 || maxQty <= 0 {
		return &Set{}, nil
	}
	minMatch := max(index.MinShouldMatch(len(terms), p.minShouldMatch), 1)

	rows, err := p.pool.Query(ctx, searchSQL(p.table), strings.Join(terms, " or "), terms, minMatch, maxQty)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	defer rows.Close()

	set := &Set{}
	for rows.Next() {
		var e Entry
		var score float32
		var total int64
		if err := rows.Scan(&e.DocID, &score, &total); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		e.Score = float64(score)
		set.Entries = append(set.Entries, e)
		set.NumFound = int(total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return set, nil
}

// EnsureSchema creates the documents table if needed.
func (p *PostgresProvider) EnsureSchema(ctx context.Context) error {
	for _, stmt := range SchemaSQL(p.table) {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// AddDocuments bulk-loads documents into the table.
func (p *PostgresProvider) AddDocuments(ctx context.Context, docs []*index.Document) error {
	rows := make([][]any, len(docs))
	for i, d := range docs {
		rows[i] = []any{d.ID, d.Text}
	}
	_, err := p.pool.CopyFrom(ctx, pgx.Identifier{p.table}, []string{"doc_id", "body"}, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copying %d documents: %w", len(docs), err)
	}
	return nil
}
