package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vbonduro/adpost/internal/domain"
)

type AdPhotoStore struct {
	db *sql.DB
}

func NewAdPhotoStore(db *sql.DB) *AdPhotoStore {
	return &AdPhotoStore{db: db}
}

func (s *AdPhotoStore) Create(ctx context.Context, adID int64, position int, storageKey, mimeType string, size int64) (*domain.AdPhoto, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ad_photos (ad_id, position, storage_key, mime_type, size) VALUES (?, ?, ?, ?, ?)
	`, adID, position, storageKey, mimeType, size)
	if err != nil {
		return nil, fmt.Errorf("failed to create ad photo: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	photo := &domain.AdPhoto{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, ad_id, position, storage_key, mime_type, size, created_at FROM ad_photos WHERE id = ?
	`, id).Scan(&photo.ID, &photo.AdID, &photo.Position, &photo.StorageKey, &photo.MimeType, &photo.Size, &photo.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get ad photo: %w", err)
	}
	return photo, nil
}

// ListByAdID returns the ad's photos in display order, cover first.
func (s *AdPhotoStore) ListByAdID(ctx context.Context, adID int64) ([]*domain.AdPhoto, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ad_id, position, storage_key, mime_type, size, created_at FROM ad_photos
		WHERE ad_id = ? ORDER BY position ASC
	`, adID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ad photos: %w", err)
	}
	defer rows.Close()

	var photos []*domain.AdPhoto
	for rows.Next() {
		p := &domain.AdPhoto{}
		if err := rows.Scan(&p.ID, &p.AdID, &p.Position, &p.StorageKey, &p.MimeType, &p.Size, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ad photo: %w", err)
		}
		photos = append(photos, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ad photos: %w", err)
	}

	return photos, nil
}

func (s *AdPhotoStore) GetByPosition(ctx context.Context, adID int64, position int) (*domain.AdPhoto, error) {
	p := &domain.AdPhoto{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ad_id, position, storage_key, mime_type, size, created_at FROM ad_photos
		WHERE ad_id = ? AND position = ?
	`, adID, position).Scan(&p.ID, &p.AdID, &p.Position, &p.StorageKey, &p.MimeType, &p.Size, &p.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ad photo: %w", err)
	}
	return p, nil
}
