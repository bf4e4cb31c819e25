// Package models contains shared data models used across the codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the caller identity. Every project, job, and API key belongs
// to a user.
type User struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Email     string    `db:"email"      json:"email"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Project is the container scenes are generated into. Project CRUD itself is
// ordinary glue; here it only matters for ownership checks.
type Project struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	UserID    uuid.UUID `db:"user_id"    json:"user_id"`
	Title     string    `db:"title"      json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
