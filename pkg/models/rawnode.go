package models

import "time"

// RawNode is one entry of the radio transport's node table, built from
// NODEINFO broadcasts and per-node metrics overheard on the mesh. The
// bridge's refresh pass folds these into the store.
type RawNode struct {
	ID              string
	Num             uint32
	LongName        string
	ShortName       string
	MacAddr         string
	HwModel         string
	FirmwareVersion string
	LastHeard       time.Time
	HopsAway        int
	IsRouter        bool
	IsClient        bool

	// Latest overheard link and sensor readings, when any.
	SNR          *float64
	RSSI         *float64
	BatteryLevel *float64
	Voltage      *float64

	// Latest overheard fix, when any.
	Latitude  *float64
	Longitude *float64
	Altitude  *float64
}
