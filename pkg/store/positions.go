package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

// PositionStore provides database operations for position samples.
type PositionStore interface {
	Add(pos *models.Position) error
	// Last returns the most recent position for a node, or nil when the
	// node has no stored fix.
	Last(nodeID string) (*models.Position, error)
}

type sqlitePositionStore struct {
	db *sqlx.DB
}

func (s *sqlitePositionStore) Add(pos *models.Position) error {
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now().UTC()
	}
	if pos.Source == "" {
		pos.Source = "unknown"
	}
	_, err := s.db.NamedExec(`
		INSERT INTO positions (
			node_id, timestamp, latitude, longitude, altitude,
			speed, heading, accuracy, source
		) VALUES (
			:node_id, :timestamp, :latitude, :longitude, :altitude,
			:speed, :heading, :accuracy, :source
		);`, pos)
	return err
}

func (s *sqlitePositionStore) Last(nodeID string) (*models.Position, error) {
	var pos models.Position
	err := s.db.Get(&pos, `
		SELECT node_id, timestamp, latitude, longitude, altitude,
		       speed, heading, accuracy, source
		FROM positions
		WHERE node_id = ?
		ORDER BY timestamp DESC
		LIMIT 1;`, nodeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}
