package profiles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileColumns = `id, user_id, full_name, COALESCE(phone, ''), COALESCE(avatar_url, ''), COALESCE(bio, ''), created_at, updated_at`

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.Phone, &p.AvatarURL, &p.Bio, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetByUserID returns the profile owned by userID.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

// Create inserts the profile for userID. An existing row is left untouched.
func (r *Repository) Create(ctx context.Context, userID, fullName, phone string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, full_name, phone)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (user_id) DO NOTHING`, userID, fullName, phone)
	return err
}

// Update writes every editable column in one statement.
func (r *Repository) Update(ctx context.Context, userID string, in UpdateInput) (Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `
		UPDATE profiles
		SET full_name = $2, phone = NULLIF($3, ''), bio = NULLIF($4, ''), updated_at = NOW()
		WHERE user_id = $1
		RETURNING `+profileColumns, userID, in.FullName, in.Phone, in.Bio))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

// List returns every profile, newest first.
func (r *Repository) List(ctx context.Context) ([]Profile, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
