package store

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

// TelemetryStore provides database operations for telemetry samples.
type TelemetryStore interface {
	// Add appends one sample. Empty field sets are rejected upstream;
	// the store does not re-validate.
	Add(nodeID string, fields *models.TelemetryFields) error
	Summary(window time.Duration) (*models.TelemetrySummary, error)
	History(nodeID string, window time.Duration, limit int) ([]*models.TelemetryRecord, error)
}

type sqliteTelemetryStore struct {
	db *sqlx.DB
}

type telemetryRow struct {
	NodeID    string    `db:"node_id"`
	Timestamp time.Time `db:"timestamp"`
	models.TelemetryFields
}

func (s *sqliteTelemetryStore) Add(nodeID string, fields *models.TelemetryFields) error {
	row := telemetryRow{
		NodeID:          nodeID,
		Timestamp:       time.Now().UTC(),
		TelemetryFields: *fields,
	}
	_, err := s.db.NamedExec(`
		INSERT INTO telemetry (
			node_id, timestamp,
			battery_level, voltage, channel_utilization, air_util_tx, uptime_seconds,
			temperature, humidity, pressure, gas_resistance, iaq,
			pm10, pm25, pm100,
			ch1_voltage, ch2_voltage, ch3_voltage,
			ch1_current, ch2_current, ch3_current,
			snr, rssi, frequency,
			latitude, longitude, altitude, speed, heading, accuracy
		) VALUES (
			:node_id, :timestamp,
			:battery_level, :voltage, :channel_utilization, :air_util_tx, :uptime_seconds,
			:temperature, :humidity, :pressure, :gas_resistance, :iaq,
			:pm10, :pm25, :pm100,
			:ch1_voltage, :ch2_voltage, :ch3_voltage,
			:ch1_current, :ch2_current, :ch3_current,
			:snr, :rssi, :frequency,
			:latitude, :longitude, :altitude, :speed, :heading, :accuracy
		);`, row)
	return err
}

// Summary aggregates telemetry across all nodes. On an empty store it
// returns zero counts and NULL averages.
func (s *sqliteTelemetryStore) Summary(window time.Duration) (*models.TelemetrySummary, error) {
	cutoff := time.Now().UTC().Add(-window)
	var summary models.TelemetrySummary
	err := s.db.Get(&summary, `
		SELECT
			COUNT(DISTINCT n.node_id) AS total_nodes,
			COUNT(DISTINCT CASE WHEN n.last_heard > ? THEN n.node_id END) AS active_nodes,
			AVG(t.battery_level) AS avg_battery,
			AVG(t.temperature) AS avg_temperature,
			AVG(t.humidity) AS avg_humidity,
			AVG(t.snr) AS avg_snr,
			AVG(t.rssi) AS avg_rssi
		FROM nodes n
		LEFT JOIN telemetry t ON n.node_id = t.node_id;`, cutoff)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *sqliteTelemetryStore) History(nodeID string, window time.Duration, limit int) ([]*models.TelemetryRecord, error) {
	cutoff := time.Now().UTC().Add(-window)
	records := []*models.TelemetryRecord{}
	err := s.db.Select(&records, `
		SELECT timestamp, battery_level, voltage, temperature, humidity,
		       pressure, iaq, snr, rssi
		FROM telemetry
		WHERE node_id = ? AND timestamp > ?
		ORDER BY timestamp DESC
		LIMIT ?;`, nodeID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return records, nil
}
