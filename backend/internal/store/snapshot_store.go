package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS project_snapshots (
			project_id VARCHAR(64) NOT NULL,
			version BIGINT UNSIGNED NOT NULL,
			content MEDIUMTEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (project_id, version)
		)`)
	return err
}

func (s *SnapshotStore) SaveProjectSnapshot(ctx context.Context, projectID string, version uint64, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_snapshots (project_id, version, content)
		VALUES (?, ?, ?)`,
		projectID,
		version,
		content,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		// 1062: a snapshot for this version already exists, nothing to do
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}

func (s *SnapshotStore) LatestProjectSnapshot(ctx context.Context, projectID string) (string, uint64, error) {
	var (
		content string
		version uint64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT content, version FROM project_snapshots
		WHERE project_id = ?
		ORDER BY version DESC
		LIMIT 1`,
		projectID,
	).Scan(&content, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return content, version, nil
}
