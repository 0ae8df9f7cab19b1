package models

import (
	"database/sql"
	"reflect"
	"time"
)

// TelemetryFields is the open set of optional metrics carried by one
// telemetry sample. Nil fields were not present in the packet and are
// stored as NULL. At least one field must be non-nil before a sample is
// written; empty extractions are suppressed upstream.
type TelemetryFields struct {
	// Device metrics
	BatteryLevel       *float64 `db:"battery_level"`
	Voltage            *float64 `db:"voltage"`
	ChannelUtilization *float64 `db:"channel_utilization"`
	AirUtilTx          *float64 `db:"air_util_tx"`
	UptimeSeconds      *float64 `db:"uptime_seconds"`
	// Environment metrics
	Temperature   *float64 `db:"temperature"`
	Humidity      *float64 `db:"humidity"`
	Pressure      *float64 `db:"pressure"`
	GasResistance *float64 `db:"gas_resistance"`
	IAQ           *float64 `db:"iaq"`
	// Air quality metrics
	PM10  *float64 `db:"pm10"`
	PM25  *float64 `db:"pm25"`
	PM100 *float64 `db:"pm100"`
	// Power metrics
	Ch1Voltage *float64 `db:"ch1_voltage"`
	Ch2Voltage *float64 `db:"ch2_voltage"`
	Ch3Voltage *float64 `db:"ch3_voltage"`
	Ch1Current *float64 `db:"ch1_current"`
	Ch2Current *float64 `db:"ch2_current"`
	Ch3Current *float64 `db:"ch3_current"`
	// Radio metrics from the packet envelope
	SNR       *float64 `db:"snr"`
	RSSI      *float64 `db:"rssi"`
	Frequency *float64 `db:"frequency"`
	// Co-located position fix, when the radio reports one alongside metrics
	Latitude  *float64 `db:"latitude"`
	Longitude *float64 `db:"longitude"`
	Altitude  *float64 `db:"altitude"`
	Speed     *float64 `db:"speed"`
	Heading   *float64 `db:"heading"`
	Accuracy  *float64 `db:"accuracy"`
}

// IsEmpty reports whether no metric field is set.
func (t *TelemetryFields) IsEmpty() bool {
	return len(t.Keys()) == 0
}

// Keys returns the column names of the fields that are set, in struct
// declaration order. Used for the live monitor buffer.
func (t *TelemetryFields) Keys() []string {
	var keys []string
	v := reflect.ValueOf(*t)
	rt := v.Type()
	for i := 0; i < rt.NumField(); i++ {
		if v.Field(i).Kind() == reflect.Ptr && !v.Field(i).IsNil() {
			keys = append(keys, rt.Field(i).Tag.Get("db"))
		}
	}
	return keys
}

// TelemetryRecord is one historical telemetry sample as read back from
// storage.
type TelemetryRecord struct {
	Timestamp    time.Time       `db:"timestamp"`
	BatteryLevel sql.NullFloat64 `db:"battery_level"`
	Voltage      sql.NullFloat64 `db:"voltage"`
	Temperature  sql.NullFloat64 `db:"temperature"`
	Humidity     sql.NullFloat64 `db:"humidity"`
	Pressure     sql.NullFloat64 `db:"pressure"`
	IAQ          sql.NullFloat64 `db:"iaq"`
	SNR          sql.NullFloat64 `db:"snr"`
	RSSI         sql.NullFloat64 `db:"rssi"`
}

// TelemetrySummary aggregates telemetry over a trailing window.
// Averages are NULL when no samples exist.
type TelemetrySummary struct {
	TotalNodes     int             `db:"total_nodes"`
	ActiveNodes    int             `db:"active_nodes"`
	AvgBattery     sql.NullFloat64 `db:"avg_battery"`
	AvgTemperature sql.NullFloat64 `db:"avg_temperature"`
	AvgHumidity    sql.NullFloat64 `db:"avg_humidity"`
	AvgSNR         sql.NullFloat64 `db:"avg_snr"`
	AvgRSSI        sql.NullFloat64 `db:"avg_rssi"`
}
