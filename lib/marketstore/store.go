// Package marketstore persists processed market batches in sqlite.
// Each row is a full batch of normalized items plus its collection
// metadata, keyed `{sourceTag}_{site}_{timestamp}`.
package marketstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mazen160/go-random"

	"marketsuite-backend/lib/normalize"

	_ "modernc.org/sqlite"
)

const Schema = `
create table if not exists market_batch (
    key          text primary key,
    source_tag   text not null,
    site         text not null,
    run_id       text not null,
    collected_at integer not null,
    data         text not null
);
create index if not exists market_batch_site_time on market_batch (site, collected_at);
`

var ErrNotFound = fmt.Errorf("marketstore: batch not found")

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// Open opens (and creates, if needed) the store at the given sqlite
// path. ":memory:" works for tests.
func Open(path string) (Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	_, err = database.Exec(Schema)
	if err != nil {
		database.Close()
		return Store{}, err
	}
	return NewStore(database), nil
}

func (s Store) Close() error { return s.db.Close() }

type Batch struct {
	SourceTag   string           `json:"source_tag"`
	Site        string           `json:"site"`
	RunID       string           `json:"run_id"`
	CollectedAt time.Time        `json:"collected_at"`
	Items       []normalize.Item `json:"items"`
}

// Key is the row key of the batch, `{sourceTag}_{site}_{timestamp}`
// with the timestamp in unix milliseconds.
func (b Batch) Key() string {
	return fmt.Sprintf("%s_%s_%d", b.SourceTag, b.Site, b.CollectedAt.UnixMilli())
}

// Push stores a batch, overwriting an existing row with the same key.
// A missing run id is filled in with a fresh random one.
func (s Store) Push(ctx context.Context, batch Batch) (string, error) {
	if batch.RunID == "" {
		id, err := random.String(8)
		if err != nil {
			return "", fmt.Errorf("marketstore: generate run id: %w", err)
		}
		batch.RunID = id
	}
	if batch.CollectedAt.IsZero() {
		batch.CollectedAt = time.Now()
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("marketstore: marshal batch: %w", err)
	}

	key := batch.Key()
	_, err = s.db.ExecContext(ctx, `
		insert into market_batch (key, source_tag, site, run_id, collected_at, data)
		values (?, ?, ?, ?, ?, ?)
		on conflict (key) do update set
			source_tag = excluded.source_tag,
			run_id = excluded.run_id,
			data = excluded.data
	`, key, batch.SourceTag, batch.Site, batch.RunID, batch.CollectedAt.UnixMilli(), string(data))
	if err != nil {
		return "", fmt.Errorf("marketstore: push %s: %w", key, err)
	}
	return key, nil
}

func scanBatch(row *sql.Row) (Batch, error) {
	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return Batch{}, ErrNotFound
	}
	if err != nil {
		return Batch{}, err
	}
	var batch Batch
	err = json.Unmarshal([]byte(data), &batch)
	if err != nil {
		return Batch{}, fmt.Errorf("marketstore: unmarshal batch: %w", err)
	}
	return batch, nil
}

// Get fetches a batch by its exact key.
func (s Store) Get(ctx context.Context, key string) (Batch, error) {
	row := s.db.QueryRowContext(ctx, `select data from market_batch where key = ?`, key)
	return scanBatch(row)
}

// Latest returns the most recently collected batch for a site.
func (s Store) Latest(ctx context.Context, site string) (Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		select data from market_batch
		where site = ?
		order by collected_at desc
		limit 1
	`, site)
	return scanBatch(row)
}

// Keys lists batch keys for a site, newest first.
func (s Store) Keys(ctx context.Context, site string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select key from market_batch
		where site = ?
		order by collected_at desc
		limit ?
	`, site, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
