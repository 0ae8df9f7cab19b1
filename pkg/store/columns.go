package store

import (
	"log/slog"
	"regexp"

	"github.com/jmoiron/sqlx"
)

// telemetryColumns is the whitelist of sensor columns added after the
// base schema shipped. Schema evolution is additive only: missing
// columns are added, nothing is ever dropped or renamed.
var telemetryColumns = []struct {
	Name string
	Type string
}{
	{"channel_utilization", "REAL"},
	{"air_util_tx", "REAL"},
	{"uptime_seconds", "REAL"},
	{"pm10", "REAL"},
	{"pm25", "REAL"},
	{"pm100", "REAL"},
	{"ch1_voltage", "REAL"},
	{"ch2_voltage", "REAL"},
	{"ch3_voltage", "REAL"},
	{"ch1_current", "REAL"},
	{"ch2_current", "REAL"},
	{"ch3_current", "REAL"},
}

var safeIdentifier = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ensureTelemetryColumns adds any whitelisted column missing from the
// telemetry table. Identifiers are validated before being interpolated;
// ALTER TABLE does not take placeholders.
func ensureTelemetryColumns(db *sqlx.DB, log *slog.Logger) error {
	rows, err := db.Queryx("PRAGMA table_info(telemetry)")
	if err != nil {
		return err
	}
	defer rows.Close()

	existing := map[string]bool{}
	for rows.Next() {
		var col struct {
			CID       int     `db:"cid"`
			Name      string  `db:"name"`
			Type      string  `db:"type"`
			NotNull   int     `db:"notnull"`
			DfltValue *string `db:"dflt_value"`
			PK        int     `db:"pk"`
		}
		if err := rows.StructScan(&col); err != nil {
			return err
		}
		existing[col.Name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range telemetryColumns {
		if existing[col.Name] {
			continue
		}
		if !safeIdentifier.MatchString(col.Name) {
			log.Warn("skipping invalid column name", "column", col.Name)
			continue
		}
		if _, err := db.Exec("ALTER TABLE telemetry ADD COLUMN " + col.Name + " " + col.Type); err != nil {
			return err
		}
		log.Info("added telemetry column", "column", col.Name)
	}
	return nil
}
