package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

type Project struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Title   string `json:"title"`
	Shared  bool   `json:"shared"`
}

type ProjectStore struct{ db *sql.DB }

func NewProjectStore(db *sql.DB) *ProjectStore {
	return &ProjectStore{db: db}
}

func (s *ProjectStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS projects (
			id VARCHAR(64) PRIMARY KEY,
			owner_id VARCHAR(64) NOT NULL,
			title VARCHAR(255) NOT NULL,
			shared BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

func (s *ProjectStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, shared FROM projects WHERE id = ?`,
		projectID,
	).Scan(&p.ID, &p.OwnerID, &p.Title, &p.Shared)
	// sql.ErrNoRows passes through for callers to map
	return p, err
}

func (s *ProjectStore) CreateProject(ctx context.Context, ownerID, title string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, title) VALUES (?, ?, ?)`,
		id,
		ownerID,
		title,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}
