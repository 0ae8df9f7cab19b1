package models

import "time"

// PositionSourceMesh tags position samples that arrived over the radio.
const PositionSourceMesh = "meshtastic"

// Position is one append-only position sample for a node. A (0,0)
// coordinate pair is treated as an invalid fix and is never stored.
type Position struct {
	NodeID    string    `db:"node_id"`
	Timestamp time.Time `db:"timestamp"`
	Latitude  float64   `db:"latitude"`
	Longitude float64   `db:"longitude"`
	Altitude  float64   `db:"altitude"`
	Speed     float64   `db:"speed"`
	Heading   float64   `db:"heading"`
	Accuracy  float64   `db:"accuracy"`
	Source    string    `db:"source"`
}
