package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vbonduro/adpost/internal/domain"
)

const adColumns = `id, property_type, bhk, bathrooms, furnishing, project_status, listed_by,
	super_built_up_area, carpet_area, maintenance, total_floors, floor_no, car_parking,
	facing, project_name, title, description, price, state, mobile_number, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAd(row scanner) (*domain.Ad, error) {
	ad := &domain.Ad{}
	err := row.Scan(
		&ad.ID, &ad.PropertyType, &ad.BHK, &ad.Bathrooms, &ad.Furnishing, &ad.ProjectStatus, &ad.ListedBy,
		&ad.SuperBuiltUpArea, &ad.CarpetArea, &ad.Maintenance, &ad.TotalFloors, &ad.FloorNo, &ad.CarParking,
		&ad.Facing, &ad.ProjectName, &ad.Title, &ad.Description, &ad.Price, &ad.State, &ad.MobileNumber, &ad.CreatedAt,
	)
	return ad, err
}

type AdStore struct {
	db *sql.DB
}

func NewAdStore(db *sql.DB) *AdStore {
	return &AdStore{db: db}
}

// Create inserts ad and returns the stored row. ad.ID and ad.CreatedAt are
// ignored.
func (s *AdStore) Create(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ads (
			property_type, bhk, bathrooms, furnishing, project_status, listed_by,
			super_built_up_area, carpet_area, maintenance, total_floors, floor_no, car_parking,
			facing, project_name, title, description, price, state, mobile_number
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ad.PropertyType, ad.BHK, ad.Bathrooms, ad.Furnishing, ad.ProjectStatus, ad.ListedBy,
		ad.SuperBuiltUpArea, ad.CarpetArea, ad.Maintenance, ad.TotalFloors, ad.FloorNo, ad.CarParking,
		ad.Facing, ad.ProjectName, ad.Title, ad.Description, ad.Price, ad.State, ad.MobileNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ad: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *AdStore) GetByID(ctx context.Context, id int64) (*domain.Ad, error) {
	ad, err := scanAd(s.db.QueryRowContext(ctx, `SELECT `+adColumns+` FROM ads WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ad: %w", err)
	}
	return ad, nil
}

// List returns the most recent ads first, at most limit of them.
func (s *AdStore) List(ctx context.Context, limit int) ([]*domain.Ad, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+adColumns+` FROM ads ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ads: %w", err)
	}
	defer rows.Close()

	var ads []*domain.Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ad: %w", err)
		}
		ads = append(ads, ad)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ads: %w", err)
	}

	return ads, nil
}

// Delete removes the ad and, through the foreign key, its photo rows.
func (s *AdStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ad: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("ad not found")
	}

	return nil
}
