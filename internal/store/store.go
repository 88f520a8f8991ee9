package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PhraseRow is one persisted phrase count, as loaded for trie bootstrap.
type PhraseRow struct {
	Phrase      string
	Count       int64
	LastUpdated time.Time
}

// Store wraps a Postgres connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres at dsn and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: applying schema: %w", err)
	}
	var newest int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&newest); err != nil {
		return fmt.Errorf("store: reading schema version: %w", err)
	}
	if newest > SchemaVersion {
		return fmt.Errorf("store: database schema version %d is newer than supported version %d", newest, SchemaVersion)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`,
		SchemaVersion)
	if err != nil {
		return fmt.Errorf("store: recording schema version: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// PageSize is the default row count per loadPage call during bootstrap.
const PageSize = 5000

// LoadAll streams every non-filtered phrase row to fn, page by page, so a
// rebuild or cold-start load never holds the entire table in one query
// result set.
func (s *Store) LoadAll(ctx context.Context, fn func([]PhraseRow) error) error {
	var lastPhrase string
	for {
		rows, err := s.loadPage(ctx, lastPhrase)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := fn(rows); err != nil {
			return err
		}
		lastPhrase = rows[len(rows)-1].Phrase
		if len(rows) < PageSize {
			return nil
		}
	}
}

func (s *Store) loadPage(ctx context.Context, after string) ([]PhraseRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.phrase, p.count, p.last_updated
		FROM phrase p
		LEFT JOIN filtered_phrase f ON f.phrase = p.phrase
		WHERE f.phrase IS NULL AND p.phrase > $1
		ORDER BY p.phrase
		LIMIT $2`, after, PageSize)
	if err != nil {
		return nil, fmt.Errorf("store: loading page: %w", err)
	}
	defer rows.Close()

	var out []PhraseRow
	for rows.Next() {
		var r PhraseRow
		if err := rows.Scan(&r.Phrase, &r.Count, &r.LastUpdated); err != nil {
			return nil, fmt.Errorf("store: scanning row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Upsert writes an absolute count for phrase, used by admin add-phrase and
// cmd/dictimport's bulk import.
func (s *Store) Upsert(ctx context.Context, phrase string, count int64, lastUpdated time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phrase (phrase, count, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (phrase) DO UPDATE SET count = EXCLUDED.count, last_updated = EXCLUDED.last_updated`,
		phrase, count, lastUpdated)
	if err != nil {
		return fmt.Errorf("store: upserting phrase: %w", err)
	}
	return nil
}

// Increment applies a delta to phrase's stored count, creating the row if
// missing, mirroring trie.Index.Increment's auto-create semantics.
func (s *Store) Increment(ctx context.Context, phrase string, delta int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phrase (phrase, count, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (phrase) DO UPDATE SET count = phrase.count + EXCLUDED.count, last_updated = EXCLUDED.last_updated`,
		phrase, delta, now)
	if err != nil {
		return fmt.Errorf("store: incrementing phrase: %w", err)
	}
	return nil
}

// IncrementBatch applies a batch of (phrase, delta) pairs in a single
// transaction, the shape internal/ingest's Sink interface needs.
func (s *Store) IncrementBatch(ctx context.Context, phrases []string, deltas []int64, now time.Time) error {
	if len(phrases) != len(deltas) {
		return fmt.Errorf("store: phrases/deltas length mismatch: %d != %d", len(phrases), len(deltas))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning batch transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO phrase (phrase, count, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (phrase) DO UPDATE SET count = phrase.count + EXCLUDED.count, last_updated = EXCLUDED.last_updated`)
	if err != nil {
		return fmt.Errorf("store: preparing batch statement: %w", err)
	}
	defer stmt.Close()

	for i, phrase := range phrases {
		if _, err := stmt.ExecContext(ctx, phrase, deltas[i], now); err != nil {
			return fmt.Errorf("store: batch increment of %q: %w", phrase, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing batch: %w", err)
	}
	return nil
}

// Remove deletes a phrase's stored row entirely.
func (s *Store) Remove(ctx context.Context, phrase string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM phrase WHERE phrase = $1`, phrase)
	if err != nil {
		return fmt.Errorf("store: removing phrase: %w", err)
	}
	return nil
}

// FilterPhrase adds phrase to the moderation blocklist.
func (s *Store) FilterPhrase(ctx context.Context, phrase, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO filtered_phrase (phrase, reason) VALUES ($1, $2)
		ON CONFLICT (phrase) DO UPDATE SET reason = EXCLUDED.reason`,
		phrase, reason)
	if err != nil {
		return fmt.Errorf("store: filtering phrase: %w", err)
	}
	return nil
}

// UnfilterPhrase removes phrase from the moderation blocklist.
func (s *Store) UnfilterPhrase(ctx context.Context, phrase string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM filtered_phrase WHERE phrase = $1`, phrase)
	if err != nil {
		return fmt.Errorf("store: unfiltering phrase: %w", err)
	}
	return nil
}

// ListFiltered returns every currently blocklisted phrase.
func (s *Store) ListFiltered(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT phrase FROM filtered_phrase ORDER BY phrase`)
	if err != nil {
		return nil, fmt.Errorf("store: listing filtered phrases: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("store: scanning filtered phrase: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
