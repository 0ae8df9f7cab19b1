package models

import (
	"database/sql"
	"time"
)

// Node represents one addressable radio endpoint in the mesh.
type Node struct {
	// NodeID is the stable string address (e.g. "!da639050"), primary key.
	NodeID string `db:"node_id"`
	// NodeNum is the numeric alias of the address. May be absent for nodes
	// only ever seen by their string id.
	NodeNum sql.NullInt64 `db:"node_num"`
	LongName        string `db:"long_name"`
	ShortName       string `db:"short_name"`
	MacAddr         string `db:"macaddr"`
	HwModel         string `db:"hw_model"`
	FirmwareVersion string `db:"firmware_version"`
	// FirstSeen is set once when the node row is created and never updated.
	FirstSeen time.Time `db:"first_seen"`
	// LastSeen is bumped on every sighting of the node.
	LastSeen time.Time `db:"last_seen"`
	// LastHeard is the radio-reported last-activity timestamp. It may lag
	// LastSeen since the radio only learns of activity it overhears.
	LastHeard sql.NullTime `db:"last_heard"`
	HopsAway  int          `db:"hops_away"`
	IsRouter  bool         `db:"is_router"`
	IsClient  bool         `db:"is_client"`
}

// DisplayName returns the best human-friendly name for the node:
// long name, then short name, then the raw id.
func (n *Node) DisplayName() string {
	if n.LongName != "" {
		return n.LongName
	}
	if n.ShortName != "" {
		return n.ShortName
	}
	return n.NodeID
}

// ActiveNode is a node joined with its latest telemetry and position
// samples, as returned by the active-node and all-node queries.
type ActiveNode struct {
	Node
	BatteryLevel  sql.NullFloat64 `db:"battery_level"`
	Voltage       sql.NullFloat64 `db:"voltage"`
	Temperature   sql.NullFloat64 `db:"temperature"`
	Humidity      sql.NullFloat64 `db:"humidity"`
	Pressure      sql.NullFloat64 `db:"pressure"`
	GasResistance sql.NullFloat64 `db:"gas_resistance"`
	IAQ           sql.NullFloat64 `db:"iaq"`
	SNR           sql.NullFloat64 `db:"snr"`
	RSSI          sql.NullFloat64 `db:"rssi"`
	Latitude      sql.NullFloat64 `db:"latitude"`
	Longitude     sql.NullFloat64 `db:"longitude"`
	Altitude      sql.NullFloat64 `db:"altitude"`
	Speed         sql.NullFloat64 `db:"speed"`
	Heading       sql.NullFloat64 `db:"heading"`
}
