package models

import (
	"database/sql"
	"time"
)

// BroadcastID is the destination sentinel for channel-wide messages.
const BroadcastID = "^all"

// Message is one relayed text or traceroute observation. Messages are
// the sole input to topology reconstruction.
type Message struct {
	ID          int64          `db:"id"`
	FromNodeID  string         `db:"from_node_id"`
	ToNodeID    string         `db:"to_node_id"`
	Timestamp   time.Time      `db:"timestamp"`
	MessageText string         `db:"message_text"`
	PortNum     string         `db:"port_num"`
	Payload     string         `db:"payload"`
	HopsAway    int            `db:"hops_away"`
	SNR         sql.NullFloat64 `db:"snr"`
	RSSI        sql.NullFloat64 `db:"rssi"`
}

// MessageStats aggregates message traffic over a trailing window.
type MessageStats struct {
	TotalMessages    int             `db:"total_messages"`
	UniqueSenders    int             `db:"unique_senders"`
	UniqueRecipients int             `db:"unique_recipients"`
	AvgHops          sql.NullFloat64 `db:"avg_hops"`
	AvgSNR           sql.NullFloat64 `db:"avg_snr"`
	AvgRSSI          sql.NullFloat64 `db:"avg_rssi"`
	// HourlyDistribution maps the two-digit hour ("00".."23") to the
	// number of messages observed in that hour of day.
	HourlyDistribution map[string]int
}
