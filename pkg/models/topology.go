package models

import (
	"database/sql"
	"time"
)

// TopologyLink is one (from, to) pair aggregated from message history.
type TopologyLink struct {
	FromNode          string          `db:"from_node_id"`
	ToNode            string          `db:"to_node_id"`
	MessageCount      int             `db:"message_count"`
	AvgHops           sql.NullFloat64 `db:"avg_hops"`
	AvgSNR            sql.NullFloat64 `db:"avg_snr"`
	LastCommunication time.Time       `db:"last_communication"`
}

// TopologyView is a derived, time-windowed summary of which nodes have
// exchanged messages. It is computed per query and never persisted.
type TopologyView struct {
	Links       []TopologyLink
	TotalNodes  int
	ActiveNodes int
	RouterNodes int
	AvgHops     sql.NullFloat64
}

// RouteHop is one step in a reconstructed path toward a target node.
type RouteHop struct {
	NodeID   string
	NodeName string
	HopsAway int
	SNR      *float64
	RSSI     *float64
}
