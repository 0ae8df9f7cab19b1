package bridge

import (
	"time"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

// Event is one item on the mesh-to-chat queue. The set of variants is
// closed; the renderer handles every one of them.
type Event interface {
	event()
}

// TextEvent is a text message overheard on the mesh, with the link
// quality the radio reported for it. SNR and RSSI are nil when the
// envelope carried no reading.
type TextEvent struct {
	FromID   string
	ToID     string
	Text     string
	HopsAway int
	SNR      *float64
	RSSI     *float64
	RxTime   time.Time
}

// MovementEvent is emitted when a node's new fix is further from its
// previous one than the movement threshold.
type MovementEvent struct {
	NodeID       string
	Distance     float64
	OldLatitude  float64
	OldLongitude float64
	Latitude     float64
	Longitude    float64
	Altitude     float64
}

// TracerouteHop is one step of a completed route discovery. SNR is in
// dB and nil when the hop reported no measurement.
type TracerouteHop struct {
	NodeNum uint32
	SNR     *float64
}

// TracerouteEvent is a completed route discovery between two nodes.
type TracerouteEvent struct {
	FromID  string
	ToID    string
	Forward []TracerouteHop
	Back    []TracerouteHop
}

// NewNodeEvent announces a node seen for the first time.
type NewNodeEvent struct {
	NodeID string
	Name   string
}

// TelemetrySummaryEvent carries the hourly mesh health report.
type TelemetrySummaryEvent struct {
	Hour    int
	Summary *models.TelemetrySummary
}

func (TextEvent) event()             {}
func (MovementEvent) event()         {}
func (TracerouteEvent) event()       {}
func (NewNodeEvent) event()          {}
func (TelemetrySummaryEvent) event() {}
