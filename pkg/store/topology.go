package store

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

// TopologyStore derives the network topology view from message history.
type TopologyStore interface {
	// View aggregates message links over the trailing window and pairs
	// them with node-level counts. The result is computed per query and
	// never persisted.
	View(window time.Duration) (*models.TopologyView, error)
}

type sqliteTopologyStore struct {
	db *sqlx.DB
}

func (s *sqliteTopologyStore) View(window time.Duration) (*models.TopologyView, error) {
	cutoff := time.Now().UTC().Add(-window)

	links := []models.TopologyLink{}
	err := s.db.Select(&links, `
		SELECT
			from_node_id,
			to_node_id,
			COUNT(*) AS message_count,
			AVG(hops_away) AS avg_hops,
			AVG(snr) AS avg_snr,
			MAX(timestamp) AS last_communication
		FROM messages
		WHERE timestamp > ?
		GROUP BY from_node_id, to_node_id
		HAVING COUNT(*) > 0
		ORDER BY message_count DESC;`, cutoff)
	if err != nil {
		return nil, err
	}

	activeCutoff := time.Now().UTC().Add(-time.Hour)
	var view models.TopologyView
	err = s.db.QueryRowx(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN last_heard > ? THEN 1 END),
			COUNT(CASE WHEN is_router THEN 1 END),
			AVG(hops_away)
		FROM nodes;`, activeCutoff).
		Scan(&view.TotalNodes, &view.ActiveNodes, &view.RouterNodes, &view.AvgHops)
	if err != nil {
		return nil, err
	}

	view.Links = links
	return &view, nil
}
