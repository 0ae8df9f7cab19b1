package bridge

import (
	"database/sql"
	"log/slog"
	"strings"

	"github.com/kabili207/mesh-discord-bridge/pkg/geo"
	"github.com/kabili207/mesh-discord-bridge/pkg/models"
	"github.com/kabili207/mesh-discord-bridge/pkg/store"
)

// Processor handles decoded inbound packets: it persists what each
// packet carries and enqueues the chat-facing events it gives rise to.
// Queue overflow and store errors are logged and never propagate to the
// transport; a bad packet must not stall the radio loop.
type Processor struct {
	nodes     store.NodeStore
	telemetry store.TelemetryStore
	positions store.PositionStore
	messages  store.MessageStore

	names      NameResolver
	meshToChat *Queue[Event]
	chatToMesh *Queue[OutboundMessage]
	monitor    *Monitor

	// movementThreshold is in meters; a fix must be strictly further
	// than this from the previous one to count as movement.
	movementThreshold float64

	log *slog.Logger
}

type ProcessorOptions struct {
	Stores            *store.Stores
	Names             NameResolver
	MeshToChat        *Queue[Event]
	ChatToMesh        *Queue[OutboundMessage]
	Monitor           *Monitor
	MovementThreshold float64
	Logger            *slog.Logger
}

func NewProcessor(opts ProcessorOptions) *Processor {
	return &Processor{
		nodes:             opts.Stores.Nodes,
		telemetry:         opts.Stores.Telemetry,
		positions:         opts.Stores.Positions,
		messages:          opts.Stores.Messages,
		names:             opts.Names,
		meshToChat:        opts.MeshToChat,
		chatToMesh:        opts.ChatToMesh,
		monitor:           opts.Monitor,
		movementThreshold: opts.MovementThreshold,
		log:               opts.Logger,
	}
}

func (p *Processor) HandlePacket(pkt *models.Packet) {
	if pkt == nil || pkt.FromID == "" {
		p.log.Debug("dropping packet without sender")
		return
	}

	switch pkt.Decoded.Portnum {
	case models.PortTextMessage:
		p.handleText(pkt)
	case models.PortTelemetry:
		p.handleTelemetry(pkt)
	case models.PortPosition:
		p.handlePosition(pkt)
	case models.PortTraceroute:
		p.handleTraceroute(pkt)
	case models.PortNodeInfo:
		p.handleNodeInfo(pkt)
	default:
		p.log.Debug("ignoring packet", "port", pkt.Decoded.Portnum, "from", pkt.FromID)
	}
}

func (p *Processor) handleText(pkt *models.Packet) {
	text := pkt.Decoded.Text
	if text == "" {
		return
	}

	p.storeMessage(pkt, text, "")

	// A ping gets a pong queued back to the mesh; the text itself is
	// still relayed to chat like any other message.
	if strings.EqualFold(strings.TrimSpace(text), "ping") {
		pong := "Pong! - - > " + p.names.DisplayName(pkt.FromID)
		if err := p.chatToMesh.Push(OutboundMessage{Text: pong}); err != nil {
			p.log.Warn("dropping pong reply", "from", pkt.FromID, "error", err)
		} else {
			p.monitor.Record(DirectionChatToMesh, pkt.FromID, pong)
		}
	}

	p.emit(TextEvent{
		FromID:   pkt.FromID,
		ToID:     pkt.ToID,
		Text:     text,
		HopsAway: pkt.HopsAway,
		SNR:      pkt.SNR,
		RSSI:     pkt.RSSI,
		RxTime:   pkt.RxTime,
	})
	p.monitor.RecordPacket(DirectionMeshToChat, pkt.FromID, text,
		pkt.HopsAway, pkt.SNR, pkt.RSSI)
}

func (p *Processor) handleTelemetry(pkt *models.Packet) {
	tel := pkt.Decoded.Telemetry
	if tel == nil {
		return
	}

	fields := extractTelemetry(tel, pkt)
	if fields.IsEmpty() {
		p.log.Debug("telemetry packet carried no metrics", "from", pkt.FromID)
		return
	}

	if err := p.telemetry.Add(pkt.FromID, fields); err != nil {
		p.log.Error("storing telemetry", "from", pkt.FromID, "error", err)
		return
	}
	p.monitor.Record(DirectionMeshToChat, pkt.FromID,
		"telemetry: "+strings.Join(fields.Keys(), ", "))
}

func (p *Processor) handlePosition(pkt *models.Packet) {
	fix := pkt.Decoded.Position
	if fix == nil {
		return
	}

	lat := float64(fix.LatitudeI) / 1e7
	lon := float64(fix.LongitudeI) / 1e7
	if lat == 0 && lon == 0 {
		p.log.Debug("dropping zero position fix", "from", pkt.FromID)
		return
	}

	prev, err := p.positions.Last(pkt.FromID)
	if err != nil {
		p.log.Error("reading last position", "from", pkt.FromID, "error", err)
	}

	pos := &models.Position{
		NodeID:    pkt.FromID,
		Latitude:  lat,
		Longitude: lon,
		Altitude:  float64(fix.Altitude),
		Speed:     floatOrZero(fix.GroundSpeed),
		Heading:   floatOrZero(fix.GroundTrack),
		Accuracy:  floatOrZero(fix.PrecisionBits),
		Source:    models.PositionSourceMesh,
	}
	if err := p.positions.Add(pos); err != nil {
		p.log.Error("storing position", "from", pkt.FromID, "error", err)
		return
	}

	if prev != nil {
		dist, moved := geo.Moved(prev.Latitude, prev.Longitude, lat, lon, p.movementThreshold)
		if moved {
			p.emit(MovementEvent{
				NodeID:       pkt.FromID,
				Distance:     dist,
				OldLatitude:  prev.Latitude,
				OldLongitude: prev.Longitude,
				Latitude:     lat,
				Longitude:    lon,
				Altitude:     pos.Altitude,
			})
		}
	}
	p.monitor.Record(DirectionMeshToChat, pkt.FromID, "position update")
}

func (p *Processor) handleTraceroute(pkt *models.Packet) {
	rd := pkt.Decoded.RouteDiscovery
	if rd == nil {
		return
	}

	ev := TracerouteEvent{
		FromID:  pkt.FromID,
		ToID:    pkt.ToID,
		Forward: tracerouteHops(rd.Route, rd.SNRTowards),
		Back:    tracerouteHops(rd.RouteBack, rd.SNRBack),
	}

	p.storeMessage(pkt, "", routePayload(rd.Route))
	p.emit(ev)
	p.monitor.Record(DirectionMeshToChat, pkt.FromID, "traceroute")
}

func (p *Processor) handleNodeInfo(pkt *models.Packet) {
	user := pkt.Decoded.User
	if user == nil {
		return
	}

	nodeID := user.ID
	if nodeID == "" {
		nodeID = pkt.FromID
	}
	node := &models.Node{
		NodeID:    nodeID,
		LongName:  user.LongName,
		ShortName: user.ShortName,
		HwModel:   user.HwModel,
		IsRouter:  user.IsRouter,
		IsClient:  !user.IsRouter,
		HopsAway:  pkt.HopsAway,
		LastHeard: sql.NullTime{Time: pkt.RxTime, Valid: !pkt.RxTime.IsZero()},
	}
	isNew, err := p.nodes.Upsert(node)
	if err != nil {
		p.log.Error("upserting node info", "node_id", nodeID, "error", err)
		return
	}
	if isNew {
		p.emit(NewNodeEvent{NodeID: nodeID, Name: node.DisplayName()})
	}
}

func (p *Processor) storeMessage(pkt *models.Packet, text, payload string) {
	toID := pkt.ToID
	if toID == "" {
		toID = models.BroadcastID
	}
	msg := &models.Message{
		FromNodeID:  pkt.FromID,
		ToNodeID:    toID,
		Timestamp:   pkt.RxTime,
		MessageText: text,
		PortNum:     pkt.Decoded.Portnum,
		Payload:     payload,
		HopsAway:    pkt.HopsAway,
		SNR:         nullFrom(pkt.SNR),
		RSSI:        nullFrom(pkt.RSSI),
	}
	if err := p.messages.Add(msg); err != nil {
		p.log.Error("storing message", "from", pkt.FromID, "error", err)
	}
}

func (p *Processor) emit(ev Event) {
	if err := p.meshToChat.Push(ev); err != nil {
		p.log.Warn("mesh-to-chat queue full, dropping event", "event", eventName(ev))
	}
}

func eventName(ev Event) string {
	switch ev.(type) {
	case TextEvent:
		return "text"
	case MovementEvent:
		return "movement"
	case TracerouteEvent:
		return "traceroute"
	case NewNodeEvent:
		return "new_node"
	case TelemetrySummaryEvent:
		return "telemetry_summary"
	default:
		return "unknown"
	}
}

// extractTelemetry flattens the packet's metric groups and envelope
// readings into one storable field set.
func extractTelemetry(tel *models.Telemetry, pkt *models.Packet) *models.TelemetryFields {
	fields := &models.TelemetryFields{
		SNR:       pkt.SNR,
		RSSI:      pkt.RSSI,
		Frequency: pkt.Frequency,
	}
	if d := tel.Device; d != nil {
		fields.BatteryLevel = d.BatteryLevel
		fields.Voltage = d.Voltage
		fields.ChannelUtilization = d.ChannelUtilization
		fields.AirUtilTx = d.AirUtilTx
		fields.UptimeSeconds = d.UptimeSeconds
	}
	if e := tel.Environment; e != nil {
		fields.Temperature = e.Temperature
		fields.Humidity = e.RelativeHumidity
		fields.Pressure = e.BarometricPressure
		fields.GasResistance = e.GasResistance
		fields.IAQ = e.IAQ
	}
	if a := tel.AirQuality; a != nil {
		fields.PM10 = a.PM10Environmental
		fields.PM25 = a.PM25Environmental
		fields.PM100 = a.PM100Environmental
	}
	if pw := tel.Power; pw != nil {
		fields.Ch1Voltage = pw.Ch1Voltage
		fields.Ch2Voltage = pw.Ch2Voltage
		fields.Ch3Voltage = pw.Ch3Voltage
		fields.Ch1Current = pw.Ch1Current
		fields.Ch2Current = pw.Ch2Current
		fields.Ch3Current = pw.Ch3Current
	}
	return fields
}

// tracerouteHops pairs hop numbers with their quarter-dB SNR readings.
// The sentinel for an unmeasured hop maps to a nil SNR.
func tracerouteHops(route []uint32, snrs []int32) []TracerouteHop {
	hops := make([]TracerouteHop, 0, len(route))
	for i, num := range route {
		hop := TracerouteHop{NodeNum: num}
		if i < len(snrs) && snrs[i] != models.UnknownSNR {
			snr := float64(snrs[i]) / 4
			hop.SNR = &snr
		}
		hops = append(hops, hop)
	}
	return hops
}

func routePayload(route []uint32) string {
	parts := make([]string, 0, len(route))
	for _, num := range route {
		parts = append(parts, NodeNumToID(num))
	}
	return strings.Join(parts, ",")
}

func floatOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func nullFrom(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
