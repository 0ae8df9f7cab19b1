package bridge

import (
	"fmt"
	"strings"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

// NameResolver maps node ids to display names. Unknown ids resolve to
// the raw id.
type NameResolver interface {
	DisplayName(nodeID string) string
}

// Renderer turns queue events into the plain text posted to the chat
// channel.
type Renderer struct {
	// Channel is the human name shown for broadcast destinations.
	Channel string
	Names   NameResolver
}

func (r *Renderer) Render(ev Event) string {
	switch e := ev.(type) {
	case TextEvent:
		return r.renderText(e)
	case MovementEvent:
		return r.renderMovement(e)
	case TracerouteEvent:
		return r.renderTraceroute(e)
	case NewNodeEvent:
		return fmt.Sprintf("New node on the mesh: %s (%s)", e.Name, e.NodeID)
	case TelemetrySummaryEvent:
		return r.renderSummary(e)
	default:
		return fmt.Sprintf("%v", ev)
	}
}

func (r *Renderer) renderText(e TextEvent) string {
	return fmt.Sprintf("%s -> %s (%s): %s",
		r.Names.DisplayName(e.FromID), r.destName(e.ToID), r.linkInfo(e), e.Text)
}

// linkInfo summarizes reception quality: hop count always, SNR and
// RSSI when the radio reported them.
func (r *Renderer) linkInfo(e TextEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d hops", e.HopsAway)
	if e.SNR != nil {
		fmt.Fprintf(&b, ", SNR %.1fdB", *e.SNR)
	}
	if e.RSSI != nil {
		fmt.Fprintf(&b, ", RSSI %.0fdBm", *e.RSSI)
	}
	return b.String()
}

func (r *Renderer) renderMovement(e MovementEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s moved %.1f m: %.6f, %.6f -> %.6f, %.6f",
		r.Names.DisplayName(e.NodeID), e.Distance,
		e.OldLatitude, e.OldLongitude, e.Latitude, e.Longitude)
	if e.Altitude != 0 {
		fmt.Fprintf(&b, ", alt %.0fm", e.Altitude)
	}
	return b.String()
}

// destName resolves a destination id, labeling broadcasts with the
// channel name.
func (r *Renderer) destName(id string) string {
	if id == "" || id == models.BroadcastID {
		return "#" + r.Channel
	}
	return r.Names.DisplayName(id)
}

func (r *Renderer) renderTraceroute(e TracerouteEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Traceroute %s -> %s: ",
		r.Names.DisplayName(e.FromID), r.destName(e.ToID))
	b.WriteString(r.renderHops(e.FromID, e.ToID, e.Forward))
	if len(e.Back) > 0 {
		b.WriteString("; back: ")
		b.WriteString(r.renderHops(e.ToID, e.FromID, e.Back))
	}
	return b.String()
}

// renderHops draws one leg of a route, endpoints included. Hop SNRs
// annotate the link into each hop.
func (r *Renderer) renderHops(startID, endID string, hops []TracerouteHop) string {
	parts := []string{r.destName(startID)}
	for _, hop := range hops {
		parts = append(parts, r.hopLabel(NodeNumToID(hop.NodeNum), hop.SNR))
	}
	parts = append(parts, r.destName(endID))
	return strings.Join(parts, " -> ")
}

func (r *Renderer) hopLabel(nodeID string, snr *float64) string {
	name := r.Names.DisplayName(nodeID)
	if snr == nil {
		return name
	}
	return fmt.Sprintf("%s (%.2fdB)", name, *snr)
}

func (r *Renderer) renderSummary(e TelemetrySummaryEvent) string {
	s := e.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "Mesh report %02d:00 - %d nodes, %d active", e.Hour, s.TotalNodes, s.ActiveNodes)
	if s.AvgBattery.Valid {
		fmt.Fprintf(&b, ", avg battery %.0f%%", s.AvgBattery.Float64)
	}
	if s.AvgTemperature.Valid {
		fmt.Fprintf(&b, ", avg temp %.1fC", s.AvgTemperature.Float64)
	}
	if s.AvgHumidity.Valid {
		fmt.Fprintf(&b, ", avg humidity %.0f%%", s.AvgHumidity.Float64)
	}
	if s.AvgSNR.Valid {
		fmt.Fprintf(&b, ", avg SNR %.1fdB", s.AvgSNR.Float64)
	}
	if s.AvgRSSI.Valid {
		fmt.Fprintf(&b, ", avg RSSI %.0fdBm", s.AvgRSSI.Float64)
	}
	return b.String()
}

// NodeNumToID converts a numeric node address to its canonical string
// form, e.g. 0xda639050 -> "!da639050".
func NodeNumToID(num uint32) string {
	return fmt.Sprintf("!%08x", num)
}
