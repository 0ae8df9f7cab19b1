package models

import "time"

// Port type tags, matching the application-layer port names used by the
// radio firmware.
const (
	PortTextMessage = "TEXT_MESSAGE_APP"
	PortTelemetry   = "TELEMETRY_APP"
	PortPosition    = "POSITION_APP"
	PortTraceroute  = "TRACEROUTE_APP"
	PortNodeInfo    = "NODEINFO_APP"
)

// UnknownSNR is the fixed-point sentinel for an unmeasured hop SNR in a
// route discovery response. Hops carrying it render without a quality
// figure.
const UnknownSNR = -128

// Packet is one decoded inbound radio packet as delivered by the
// transport. Decoded carries exactly one variant, keyed by Portnum.
type Packet struct {
	FromID    string
	ToID      string
	HopsAway  int
	SNR       *float64
	RSSI      *float64
	Frequency *float64
	RxTime    time.Time
	Decoded   Decoded
}

// Decoded is the tagged payload union of a packet.
type Decoded struct {
	Portnum        string
	Text           string
	Telemetry      *Telemetry
	Position       *PositionFix
	RouteDiscovery *RouteDiscovery
	User           *UserInfo
}

// Telemetry carries the nested metric groups of a TELEMETRY_APP packet.
// Any group may be absent.
type Telemetry struct {
	Device      *DeviceMetrics      `mapstructure:"deviceMetrics"`
	Environment *EnvironmentMetrics `mapstructure:"environmentMetrics"`
	AirQuality  *AirQualityMetrics  `mapstructure:"airQualityMetrics"`
	Power       *PowerMetrics       `mapstructure:"powerMetrics"`
}

type DeviceMetrics struct {
	BatteryLevel       *float64 `mapstructure:"batteryLevel"`
	Voltage            *float64 `mapstructure:"voltage"`
	ChannelUtilization *float64 `mapstructure:"channelUtilization"`
	AirUtilTx          *float64 `mapstructure:"airUtilTx"`
	UptimeSeconds      *float64 `mapstructure:"uptimeSeconds"`
}

type EnvironmentMetrics struct {
	Temperature        *float64 `mapstructure:"temperature"`
	RelativeHumidity   *float64 `mapstructure:"relativeHumidity"`
	BarometricPressure *float64 `mapstructure:"barometricPressure"`
	GasResistance      *float64 `mapstructure:"gasResistance"`
	IAQ                *float64 `mapstructure:"iaq"`
}

type AirQualityMetrics struct {
	PM10Environmental  *float64 `mapstructure:"pm10Environmental"`
	PM25Environmental  *float64 `mapstructure:"pm25Environmental"`
	PM100Environmental *float64 `mapstructure:"pm100Environmental"`
	AQI                *float64 `mapstructure:"aqi"`
}

type PowerMetrics struct {
	Ch1Voltage *float64 `mapstructure:"ch1Voltage"`
	Ch2Voltage *float64 `mapstructure:"ch2Voltage"`
	Ch3Voltage *float64 `mapstructure:"ch3Voltage"`
	Ch1Current *float64 `mapstructure:"ch1Current"`
	Ch2Current *float64 `mapstructure:"ch2Current"`
	Ch3Current *float64 `mapstructure:"ch3Current"`
}

// PositionFix carries a POSITION_APP payload. Coordinates are
// fixed-point integers, degrees x 1e7.
type PositionFix struct {
	LatitudeI     int32    `mapstructure:"latitude_i"`
	LongitudeI    int32    `mapstructure:"longitude_i"`
	Altitude      int32    `mapstructure:"altitude"`
	GroundSpeed   *float64 `mapstructure:"ground_speed"`
	GroundTrack   *float64 `mapstructure:"ground_track"`
	PrecisionBits *float64 `mapstructure:"precision_bits"`
}

// RouteDiscovery carries a TRACEROUTE_APP payload: hop numbers for the
// forward and return legs, with paired SNR lists in quarter-dB
// fixed-point (UnknownSNR when unmeasured).
type RouteDiscovery struct {
	Route      []uint32 `mapstructure:"route"`
	RouteBack  []uint32 `mapstructure:"route_back"`
	SNRTowards []int32  `mapstructure:"snr_towards"`
	SNRBack    []int32  `mapstructure:"snr_back"`
}

// UserInfo carries a NODEINFO_APP payload.
type UserInfo struct {
	ID        string `mapstructure:"id"`
	LongName  string `mapstructure:"longname"`
	ShortName string `mapstructure:"shortname"`
	HwModel   string `mapstructure:"hardware"`
	IsRouter  bool   `mapstructure:"-"`
}
