package store

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

// MessageStore provides database operations for relayed messages.
type MessageStore interface {
	Add(msg *models.Message) error
	Stats(window time.Duration) (*models.MessageStats, error)
	// To returns the most recent messages addressed to a node, newest
	// first. Input to route reconstruction.
	To(nodeID string, limit int) ([]*models.Message, error)
}

type sqliteMessageStore struct {
	db *sqlx.DB
}

func (s *sqliteMessageStore) Add(msg *models.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	_, err := s.db.NamedExec(`
		INSERT INTO messages (
			from_node_id, to_node_id, timestamp, message_text, port_num,
			payload, hops_away, snr, rssi
		) VALUES (
			:from_node_id, :to_node_id, :timestamp, :message_text, :port_num,
			:payload, :hops_away, :snr, :rssi
		);`, msg)
	return err
}

func (s *sqliteMessageStore) Stats(window time.Duration) (*models.MessageStats, error) {
	cutoff := time.Now().UTC().Add(-window)

	var stats models.MessageStats
	err := s.db.Get(&stats, `
		SELECT
			COUNT(*) AS total_messages,
			COUNT(DISTINCT from_node_id) AS unique_senders,
			COUNT(DISTINCT to_node_id) AS unique_recipients,
			AVG(hops_away) AS avg_hops,
			AVG(snr) AS avg_snr,
			AVG(rssi) AS avg_rssi
		FROM messages
		WHERE timestamp > ?;`, cutoff)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Queryx(`
		SELECT strftime('%H', timestamp) AS hour, COUNT(*) AS message_count
		FROM messages
		WHERE timestamp > ?
		GROUP BY strftime('%H', timestamp)
		ORDER BY hour;`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats.HourlyDistribution = map[string]int{}
	for rows.Next() {
		var hour string
		var count int
		if err := rows.Scan(&hour, &count); err != nil {
			return nil, err
		}
		stats.HourlyDistribution[hour] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *sqliteMessageStore) To(nodeID string, limit int) ([]*models.Message, error) {
	msgs := []*models.Message{}
	err := s.db.Select(&msgs, `
		SELECT * FROM messages
		WHERE to_node_id = ?
		ORDER BY timestamp DESC
		LIMIT ?;`, nodeID, limit)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}
