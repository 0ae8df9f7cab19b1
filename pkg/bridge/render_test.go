package bridge

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

type mapNames map[string]string

func (m mapNames) DisplayName(nodeID string) string {
	if name, ok := m[nodeID]; ok {
		return name
	}
	return nodeID
}

func testRenderer() *Renderer {
	return &Renderer{
		Channel: "mesh",
		Names: mapNames{
			"!00000001": "Alpha",
			"!00000002": "Bravo",
			"!00000003": "Charlie",
		},
	}
}

func TestRenderTextBroadcast(t *testing.T) {
	got := testRenderer().Render(TextEvent{
		FromID: "!00000001",
		ToID:   models.BroadcastID,
		Text:   "hello mesh",
	})
	if got != "Alpha -> #mesh (0 hops): hello mesh" {
		t.Errorf("Render() = %q", got)
	}
}

func TestRenderTextDirectWithLinkQuality(t *testing.T) {
	snr := 6.5
	rssi := -80.0
	got := testRenderer().Render(TextEvent{
		FromID:   "!00000001",
		ToID:     "!00000002",
		Text:     "hi",
		HopsAway: 2,
		SNR:      &snr,
		RSSI:     &rssi,
	})
	if got != "Alpha -> Bravo (2 hops, SNR 6.5dB, RSSI -80dBm): hi" {
		t.Errorf("Render() = %q", got)
	}
}

func TestRenderMovement(t *testing.T) {
	got := testRenderer().Render(MovementEvent{
		NodeID:       "!00000002",
		Distance:     152.4,
		OldLatitude:  45.0,
		OldLongitude: -122.0,
		Latitude:     45.12345,
		Longitude:    -122.54321,
		Altitude:     120,
	})
	want := "Bravo moved 152.4 m: 45.000000, -122.000000 -> 45.123450, -122.543210, alt 120m"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderMovementOmitsZeroAltitude(t *testing.T) {
	got := testRenderer().Render(MovementEvent{
		NodeID:    "!00000002",
		Distance:  152.4,
		Latitude:  45.12345,
		Longitude: -122.54321,
	})
	if strings.Contains(got, "alt") {
		t.Errorf("Render() = %q, zero altitude should be omitted", got)
	}
}

func TestRenderTraceroute(t *testing.T) {
	snr := 5.25
	got := testRenderer().Render(TracerouteEvent{
		FromID: "!00000001",
		ToID:   "!00000002",
		Forward: []TracerouteHop{
			{NodeNum: 3, SNR: &snr},
		},
	})
	want := "Traceroute Alpha -> Bravo: Alpha -> Charlie (5.25dB) -> Bravo"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderTracerouteUnknownSNR(t *testing.T) {
	got := testRenderer().Render(TracerouteEvent{
		FromID:  "!00000001",
		ToID:    models.BroadcastID,
		Forward: []TracerouteHop{{NodeNum: 3}},
	})
	if strings.Contains(got, "dB") {
		t.Errorf("Render() = %q, hop without SNR should carry no dB figure", got)
	}
	if !strings.Contains(got, "#mesh") {
		t.Errorf("Render() = %q, broadcast destination should show channel name", got)
	}
}

func TestRenderSummarySkipsNullAverages(t *testing.T) {
	got := testRenderer().Render(TelemetrySummaryEvent{
		Hour: 14,
		Summary: &models.TelemetrySummary{
			TotalNodes:  3,
			ActiveNodes: 1,
			AvgBattery:  sql.NullFloat64{Float64: 87, Valid: true},
		},
	})
	if !strings.Contains(got, "14:00") || !strings.Contains(got, "3 nodes") {
		t.Errorf("Render() = %q", got)
	}
	if !strings.Contains(got, "avg battery 87%") {
		t.Errorf("Render() = %q, want battery average", got)
	}
	if strings.Contains(got, "temp") || strings.Contains(got, "SNR") {
		t.Errorf("Render() = %q, null averages should be omitted", got)
	}
}
