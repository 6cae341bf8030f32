package pubcover

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eringen/pubcover/publish"
)

const assetColumns = `id, hash, content_type, meta, size, updated_at`

// GetAsset returns the metadata of a stored cover.
func (s *Store) GetAsset(ctx context.Context, id string) (Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	return a, err
}

// AssetData returns a stored cover together with its bytes.
func (s *Store) AssetData(ctx context.Context, id string) (Asset, []byte, error) {
	var data []byte
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+`, data FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, nil, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Asset{}, nil, err
	}
	return a, data, nil
}

// PutAsset stores data at id, replacing any previous cover.
func (s *Store) PutAsset(ctx context.Context, id string, data []byte, meta publish.Metadata) error {
	if meta == nil {
		meta = publish.Metadata{}
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	contentType := meta[publish.MetaContentType]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO assets (id, hash, content_type, meta, data, size, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    hash = excluded.hash,
    content_type = excluded.content_type,
    meta = excluded.meta,
    data = excluded.data,
    size = excluded.size,
    updated_at = excluded.updated_at`,
		id, meta.Hash(), contentType, string(encoded), data, len(data),
		time.Now().UTC().Format(dbTimeLayout))
	return err
}

// ListAssets returns every stored cover, most recently updated first.
func (s *Store) ListAssets(ctx context.Context) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner, extra ...any) (Asset, error) {
	var a Asset
	var meta, updated string
	dest := append([]any{&a.ID, &a.Hash, &a.ContentType, &meta, &a.Size, &updated}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Asset{}, err
	}
	a.Metadata = publish.Metadata{}
	if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
		return Asset{}, fmt.Errorf("decode metadata of %s: %w", a.ID, err)
	}
	t, err := time.Parse(dbTimeLayout, updated)
	if err != nil {
		return Asset{}, fmt.Errorf("parse updated_at of %s: %w", a.ID, err)
	}
	a.UpdatedAt = t
	return a, nil
}

// AssetStore exposes the assets table as a publish.Store, so a batch can
// publish straight into a local database.
func (s *Store) AssetStore() publish.Store {
	return assetStore{s: s}
}

type assetStore struct {
	s *Store
}

func (a assetStore) Get(ctx context.Context, id string) (publish.Record, error) {
	asset, err := a.s.GetAsset(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return publish.Record{}, fmt.Errorf("asset %s: %w", id, publish.ErrNotFound)
	}
	if err != nil {
		return publish.Record{}, err
	}
	return publish.Record{
		ID:        asset.ID,
		Metadata:  asset.Metadata,
		Size:      asset.Size,
		UpdatedAt: asset.UpdatedAt,
	}, nil
}

func (a assetStore) Put(ctx context.Context, id string, data []byte, meta publish.Metadata) error {
	return a.s.PutAsset(ctx, id, data, meta)
}
