package repository

import (
	"context"

	"github.com/google/uuid"
)

const userColumns = `id, external_id, email, first_name, last_name, display_name, image_url, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.ExternalID,
		&i.Email,
		&i.FirstName,
		&i.LastName,
		&i.DisplayName,
		&i.ImageUrl,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertUserFull = `-- name: UpsertUserFull :one
INSERT INTO users (external_id, email, first_name, last_name, display_name, image_url)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (external_id) DO UPDATE SET
    email        = EXCLUDED.email,
    first_name   = EXCLUDED.first_name,
    last_name    = EXCLUDED.last_name,
    display_name = EXCLUDED.display_name,
    image_url    = EXCLUDED.image_url,
    updated_at   = NOW()
RETURNING ` + userColumns

type UpsertUserFullParams struct {
	ExternalID  string `json:"external_id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
	ImageUrl    string `json:"image_url"`
}

func (q *Queries) UpsertUserFull(ctx context.Context, arg UpsertUserFullParams) (User, error) {
	row := q.db.QueryRowContext(ctx, upsertUserFull,
		arg.ExternalID,
		arg.Email,
		arg.FirstName,
		arg.LastName,
		arg.DisplayName,
		arg.ImageUrl,
	)
	return scanUser(row)
}

const upsertUserPartial = `-- name: UpsertUserPartial :one
INSERT INTO users (external_id, email, display_name)
VALUES ($1, $2, $2)
ON CONFLICT (external_id) DO UPDATE SET
    email      = EXCLUDED.email,
    updated_at = NOW()
RETURNING ` + userColumns

type UpsertUserPartialParams struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
}

func (q *Queries) UpsertUserPartial(ctx context.Context, arg UpsertUserPartialParams) (User, error) {
	row := q.db.QueryRowContext(ctx, upsertUserPartial, arg.ExternalID, arg.Email)
	return scanUser(row)
}

// The no-op update makes RETURNING yield the existing row on conflict.
const createUserMinimal = `-- name: CreateUserMinimal :one
INSERT INTO users (external_id, email)
VALUES ($1, $2)
ON CONFLICT (external_id) DO UPDATE SET
    email = CASE WHEN users.email = '' THEN EXCLUDED.email ELSE users.email END
RETURNING ` + userColumns

type CreateUserMinimalParams struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
}

func (q *Queries) CreateUserMinimal(ctx context.Context, arg CreateUserMinimalParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUserMinimal, arg.ExternalID, arg.Email)
	return scanUser(row)
}

const getUserByExternalID = `-- name: GetUserByExternalID :one
SELECT ` + userColumns + ` FROM users WHERE external_id = $1`

func (q *Queries) GetUserByExternalID(ctx context.Context, externalID string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByExternalID, externalID)
	return scanUser(row)
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	return scanUser(row)
}
