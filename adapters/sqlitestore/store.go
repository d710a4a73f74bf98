package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/flowscribe/flowscribe"
)

type KVStore struct {
	db *sql.DB
}

func NewKVStore(db *sql.DB) *KVStore {
	return &KVStore{db: db}
}

var _ flowscribe.KVStore = (*KVStore)(nil)

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv_entries WHERE key = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, flowscribe.ErrKeyNotFound
	} else if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM kv_entries WHERE key = ?", key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return flowscribe.ErrKeyNotFound
	}
	return nil
}

type BlobStore struct {
	db *sql.DB
}

func NewBlobStore(db *sql.DB) *BlobStore {
	return &BlobStore{db: db}
}

var _ flowscribe.BlobStore = (*BlobStore)(nil)

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT blob FROM blob_entries WHERE key = ?", key,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, flowscribe.ErrBlobNotFound
	} else if err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *BlobStore) Put(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blob_entries (key, blob)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET blob = excluded.blob`,
		key, blob,
	)
	return err
}

func (s *BlobStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM blob_entries WHERE key = ?", key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return flowscribe.ErrBlobNotFound
	}
	return nil
}

// DeletePrefix backs the flow deletion cascade: one statement removes every
// screenshot blob recorded under the flow id.
func (s *BlobStore) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM blob_entries WHERE key LIKE ? || '%'", prefix,
	)
	return err
}
