package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

// latestTelemetryJoin picks each node's most recent telemetry sample.
const latestTelemetryJoin = `
	LEFT JOIN (
		SELECT node_id, battery_level, voltage, temperature, humidity,
		       pressure, gas_resistance, iaq, snr, rssi
		FROM telemetry
		WHERE timestamp = (
			SELECT MAX(timestamp) FROM telemetry t2
			WHERE t2.node_id = telemetry.node_id
		)
	) t ON n.node_id = t.node_id`

// latestPositionJoin picks each node's most recent position sample.
const latestPositionJoin = `
	LEFT JOIN (
		SELECT node_id, latitude, longitude, altitude, speed, heading
		FROM positions
		WHERE timestamp = (
			SELECT MAX(timestamp) FROM positions p2
			WHERE p2.node_id = positions.node_id
		)
	) p ON n.node_id = p.node_id`

const selectNodesWithLatest = `
	SELECT n.*,
	       t.battery_level, t.voltage, t.temperature, t.humidity,
	       t.pressure, t.gas_resistance, t.iaq, t.snr, t.rssi,
	       p.latitude, p.longitude, p.altitude, p.speed, p.heading
	FROM nodes n` + latestTelemetryJoin + latestPositionJoin

// NodeStore provides database operations for mesh nodes.
type NodeStore interface {
	// Upsert creates or updates a node row and reports whether the node
	// is new. Newness is decided by row existence inside the same
	// transaction, before the write.
	Upsert(node *models.Node) (isNew bool, err error)
	Get(nodeID string) (*models.Node, error)
	GetAll() ([]*models.ActiveNode, error)
	GetActive(window time.Duration) ([]*models.ActiveNode, error)
	FindByName(query string) (*models.Node, error)
	DisplayName(nodeID string) (string, error)
}

type sqliteNodeStore struct {
	db *sqlx.DB
}

func (s *sqliteNodeStore) Upsert(node *models.Node) (bool, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.Get(&exists, "SELECT EXISTS(SELECT 1 FROM nodes WHERE node_id = ?)", node.NodeID); err != nil {
		return false, err
	}

	now := time.Now().UTC()
	node.LastSeen = now
	if node.LongName == "" {
		node.LongName = "Unknown"
	}

	if exists {
		_, err = tx.NamedExec(`
			UPDATE nodes SET
				node_num = :node_num,
				long_name = :long_name,
				short_name = :short_name,
				macaddr = :macaddr,
				hw_model = :hw_model,
				firmware_version = :firmware_version,
				last_seen = :last_seen,
				last_heard = :last_heard,
				hops_away = :hops_away,
				is_router = :is_router,
				is_client = :is_client
			WHERE node_id = :node_id;`, node)
	} else {
		node.FirstSeen = now
		_, err = tx.NamedExec(`
			INSERT INTO nodes (
				node_id, node_num, long_name, short_name, macaddr, hw_model,
				firmware_version, first_seen, last_seen, last_heard,
				hops_away, is_router, is_client
			) VALUES (
				:node_id, :node_num, :long_name, :short_name, :macaddr, :hw_model,
				:firmware_version, :first_seen, :last_seen, :last_heard,
				:hops_away, :is_router, :is_client
			);`, node)
	}
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *sqliteNodeStore) Get(nodeID string) (*models.Node, error) {
	var node models.Node
	err := s.db.Get(&node, "SELECT * FROM nodes WHERE node_id = ?", nodeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *sqliteNodeStore) GetAll() ([]*models.ActiveNode, error) {
	nodes := []*models.ActiveNode{}
	err := s.db.Select(&nodes, selectNodesWithLatest+" ORDER BY n.last_heard DESC;")
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (s *sqliteNodeStore) GetActive(window time.Duration) ([]*models.ActiveNode, error) {
	cutoff := time.Now().UTC().Add(-window)
	nodes := []*models.ActiveNode{}
	err := s.db.Select(&nodes,
		selectNodesWithLatest+" WHERE n.last_heard > ? ORDER BY n.last_heard DESC;", cutoff)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// FindByName resolves a node by fuzzy name match: exact long or short
// name first, then substring matches ranked exact long > long prefix >
// exact short > short prefix > any, most recently heard winning ties.
func (s *sqliteNodeStore) FindByName(query string) (*models.Node, error) {
	var node models.Node
	err := s.db.Get(&node,
		"SELECT * FROM nodes WHERE long_name = ? OR short_name = ? LIMIT 1", query, query)
	if err == nil {
		return &node, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	contains := "%" + query + "%"
	prefix := query + "%"
	err = s.db.Get(&node, `
		SELECT * FROM nodes WHERE long_name LIKE ? OR short_name LIKE ?
		ORDER BY
			CASE
				WHEN long_name = ? THEN 1
				WHEN long_name LIKE ? THEN 2
				WHEN short_name = ? THEN 3
				WHEN short_name LIKE ? THEN 4
				ELSE 5
			END,
			last_heard DESC
		LIMIT 1;`, contains, contains, query, prefix, query, prefix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// DisplayName returns long name, then short name, then the raw id.
// An unknown node resolves to its id, not an error.
func (s *sqliteNodeStore) DisplayName(nodeID string) (string, error) {
	var name string
	err := s.db.Get(&name, `
		SELECT CASE
			WHEN long_name IS NOT NULL AND TRIM(long_name) <> '' THEN long_name
			WHEN short_name IS NOT NULL AND TRIM(short_name) <> '' THEN short_name
			ELSE node_id
		END
		FROM nodes WHERE node_id = ?;`, nodeID)
	if err == sql.ErrNoRows {
		return nodeID, nil
	}
	if err != nil {
		return nodeID, err
	}
	return name, nil
}
