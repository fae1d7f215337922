package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/webagency/internal/model"
)

const serviceColumns = `id, name, description, price, original_price, duration,
	spots_remaining, spots_total, add_ons, features, category, industries, created_at, updated_at`

func scanService(row pgx.Row) (*model.Service, error) {
	var s model.Service
	var addOns, features, industries []byte

	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Price, &s.OriginalPrice, &s.Duration,
		&s.SpotsRemaining, &s.SpotsTotal, &addOns, &features, &s.Category, &industries,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(addOns, &s.AddOns); err != nil {
		return nil, fmt.Errorf("decode add_ons: %w", err)
	}
	if err := json.Unmarshal(features, &s.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := json.Unmarshal(industries, &s.Industries); err != nil {
		return nil, fmt.Errorf("decode industries: %w", err)
	}

	return &s, nil
}

// ListServices возвращает каталог услуг. Пустые category и industry не фильтруют.
func (r *PostgresRepository) ListServices(ctx context.Context, category, industry string) ([]model.Service, error) {
	var res []model.Service

	err := r.withRetry(ctx, func() error {
		res = nil

		rows, err := r.pool.Query(ctx,
			`SELECT `+serviceColumns+`
			 FROM services
			 WHERE ($1 = '' OR category = $1)
			   AND ($2 = '' OR industries ? $2)
			 ORDER BY price, name`,
			category, industry,
		)
		if err != nil {
			return fmt.Errorf("select services: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanService(rows)
			if err != nil {
				return fmt.Errorf("scan service: %w", err)
			}
			res = append(res, *s)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})

	return res, err
}

// GetService возвращает услугу по идентификатору.
func (r *PostgresRepository) GetService(ctx context.Context, id string) (*model.Service, error) {
	var s *model.Service

	err := r.withRetry(ctx, func() error {
		var err error
		s, err = scanService(r.pool.QueryRow(ctx,
			`SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}

	return s, nil
}

// UpsertService создаёт или обновляет услугу каталога.
func (r *PostgresRepository) UpsertService(ctx context.Context, s model.Service) error {
	addOns, err := json.Marshal(nonNilAddOns(s.AddOns))
	if err != nil {
		return fmt.Errorf("encode add_ons: %w", err)
	}
	features, err := json.Marshal(nonNilStrings(s.Features))
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	industries, err := json.Marshal(nonNilStrings(s.Industries))
	if err != nil {
		return fmt.Errorf("encode industries: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO services (id, name, description, price, original_price, duration,
		                       spots_remaining, spots_total, add_ons, features, category, industries)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		     name = EXCLUDED.name,
		     description = EXCLUDED.description,
		     price = EXCLUDED.price,
		     original_price = EXCLUDED.original_price,
		     duration = EXCLUDED.duration,
		     spots_remaining = EXCLUDED.spots_remaining,
		     spots_total = EXCLUDED.spots_total,
		     add_ons = EXCLUDED.add_ons,
		     features = EXCLUDED.features,
		     category = EXCLUDED.category,
		     industries = EXCLUDED.industries,
		     updated_at = now()`,
		s.ID, s.Name, s.Description, s.Price, s.OriginalPrice, s.Duration,
		s.SpotsRemaining, s.SpotsTotal, addOns, features, s.Category, industries,
	)
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	return nil
}

func nonNilAddOns(v []model.AddOn) []model.AddOn {
	if v == nil {
		return []model.AddOn{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
