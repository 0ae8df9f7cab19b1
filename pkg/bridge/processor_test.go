package bridge

import (
	"log/slog"
	"testing"
	"time"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
	"github.com/kabili207/mesh-discord-bridge/pkg/store"
)

type fakeNodeStore struct {
	upserts []*models.Node
	isNew   bool
}

func (f *fakeNodeStore) Upsert(node *models.Node) (bool, error) {
	f.upserts = append(f.upserts, node)
	return f.isNew, nil
}
func (f *fakeNodeStore) Get(string) (*models.Node, error)          { return nil, nil }
func (f *fakeNodeStore) GetAll() ([]*models.ActiveNode, error)     { return nil, nil }
func (f *fakeNodeStore) GetActive(time.Duration) ([]*models.ActiveNode, error) {
	return nil, nil
}
func (f *fakeNodeStore) FindByName(string) (*models.Node, error) { return nil, nil }
func (f *fakeNodeStore) DisplayName(nodeID string) (string, error) {
	return nodeID, nil
}

type fakeTelemetryStore struct {
	added []*models.TelemetryFields
}

func (f *fakeTelemetryStore) Add(_ string, fields *models.TelemetryFields) error {
	f.added = append(f.added, fields)
	return nil
}
func (f *fakeTelemetryStore) Summary(time.Duration) (*models.TelemetrySummary, error) {
	return &models.TelemetrySummary{}, nil
}
func (f *fakeTelemetryStore) History(string, time.Duration, int) ([]*models.TelemetryRecord, error) {
	return nil, nil
}

type fakePositionStore struct {
	last  *models.Position
	added []*models.Position
}

func (f *fakePositionStore) Add(pos *models.Position) error {
	f.added = append(f.added, pos)
	return nil
}
func (f *fakePositionStore) Last(string) (*models.Position, error) { return f.last, nil }

type fakeMessageStore struct {
	added []*models.Message
}

func (f *fakeMessageStore) Add(msg *models.Message) error {
	f.added = append(f.added, msg)
	return nil
}
func (f *fakeMessageStore) Stats(time.Duration) (*models.MessageStats, error) {
	return &models.MessageStats{}, nil
}
func (f *fakeMessageStore) To(string, int) ([]*models.Message, error) { return nil, nil }

type processorFixture struct {
	proc       *Processor
	nodes      *fakeNodeStore
	telemetry  *fakeTelemetryStore
	positions  *fakePositionStore
	messages   *fakeMessageStore
	meshToChat *Queue[Event]
	chatToMesh *Queue[OutboundMessage]
	monitor    *Monitor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	f := &processorFixture{
		nodes:      &fakeNodeStore{},
		telemetry:  &fakeTelemetryStore{},
		positions:  &fakePositionStore{},
		messages:   &fakeMessageStore{},
		meshToChat: NewQueue[Event](16),
		chatToMesh: NewQueue[OutboundMessage](16),
		monitor:    NewMonitor(),
	}
	f.proc = NewProcessor(ProcessorOptions{
		Stores: &store.Stores{
			Nodes:     f.nodes,
			Telemetry: f.telemetry,
			Positions: f.positions,
			Messages:  f.messages,
		},
		Names:             mapNames{"!00000001": "Alpha"},
		MeshToChat:        f.meshToChat,
		ChatToMesh:        f.chatToMesh,
		Monitor:           f.monitor,
		MovementThreshold: 100,
		Logger:            slog.Default(),
	})
	return f
}

func textPacket(from, text string) *models.Packet {
	return &models.Packet{
		FromID: from,
		ToID:   models.BroadcastID,
		RxTime: time.Now().UTC(),
		Decoded: models.Decoded{
			Portnum: models.PortTextMessage,
			Text:    text,
		},
	}
}

func TestHandleTextForwardsToChat(t *testing.T) {
	f := newProcessorFixture(t)
	f.proc.HandlePacket(textPacket("!00000001", "hello"))

	ev, ok := f.meshToChat.TryPop()
	if !ok {
		t.Fatal("expected a text event on the mesh-to-chat queue")
	}
	text, ok := ev.(TextEvent)
	if !ok {
		t.Fatalf("event type = %T, want TextEvent", ev)
	}
	if text.Text != "hello" {
		t.Errorf("Text = %q, want %q", text.Text, "hello")
	}
	if len(f.messages.added) != 1 {
		t.Errorf("stored messages = %d, want 1", len(f.messages.added))
	}
}

func TestHandleTextCarriesLinkQuality(t *testing.T) {
	f := newProcessorFixture(t)
	snr := 6.25
	rssi := -82.0
	pkt := textPacket("!00000001", "hello")
	pkt.HopsAway = 2
	pkt.SNR = &snr
	pkt.RSSI = &rssi
	f.proc.HandlePacket(pkt)

	ev, _ := f.meshToChat.TryPop()
	text, ok := ev.(TextEvent)
	if !ok {
		t.Fatalf("event type = %T, want TextEvent", ev)
	}
	if text.HopsAway != 2 {
		t.Errorf("HopsAway = %d, want 2", text.HopsAway)
	}
	if text.SNR == nil || *text.SNR != 6.25 {
		t.Error("envelope SNR not carried on the event")
	}
	if text.RSSI == nil || *text.RSSI != -82 {
		t.Error("envelope RSSI not carried on the event")
	}

	entries := f.monitor.Entries()
	if len(entries) == 0 {
		t.Fatal("expected a monitor entry")
	}
	if entries[0].Hops != 2 || entries[0].SNR == nil || entries[0].RSSI == nil {
		t.Errorf("monitor entry missing link quality: %+v", entries[0])
	}
}

func TestHandleTextPing(t *testing.T) {
	f := newProcessorFixture(t)
	f.proc.HandlePacket(textPacket("!00000001", "ping"))

	out, ok := f.chatToMesh.TryPop()
	if !ok {
		t.Fatal("expected a pong on the chat-to-mesh queue")
	}
	if out.Text != "Pong! - - > Alpha" {
		t.Errorf("pong = %q", out.Text)
	}
	// The pong is in addition to the normal relay, not instead of it.
	ev, ok := f.meshToChat.TryPop()
	if !ok {
		t.Fatal("ping was not relayed to chat: mesh-to-chat queue is empty")
	}
	text, ok := ev.(TextEvent)
	if !ok {
		t.Fatalf("event type = %T, want TextEvent", ev)
	}
	if text.Text != "ping" {
		t.Errorf("relayed text = %q, want %q", text.Text, "ping")
	}
	if len(f.messages.added) != 1 {
		t.Errorf("stored messages = %d, want 1", len(f.messages.added))
	}
}

func TestHandleTextPingPongDroppedWhenQueueFull(t *testing.T) {
	f := newProcessorFixture(t)
	for f.chatToMesh.Push(OutboundMessage{Text: "filler"}) == nil {
	}
	f.proc.HandlePacket(textPacket("!00000001", "ping"))

	for _, entry := range f.monitor.Entries() {
		if entry.Direction == DirectionChatToMesh {
			t.Errorf("dropped pong recorded in monitor: %+v", entry)
		}
	}
	if _, ok := f.meshToChat.TryPop(); !ok {
		t.Error("ping should still be relayed to chat when the pong is dropped")
	}
}

func TestHandlePacketDropsMissingSender(t *testing.T) {
	f := newProcessorFixture(t)
	f.proc.HandlePacket(textPacket("", "hello"))

	if _, ok := f.meshToChat.TryPop(); ok {
		t.Error("packet without sender should be dropped")
	}
	if len(f.messages.added) != 0 {
		t.Errorf("stored messages = %d, want 0", len(f.messages.added))
	}
}

func TestHandleTelemetryEmptyDropped(t *testing.T) {
	f := newProcessorFixture(t)
	f.proc.HandlePacket(&models.Packet{
		FromID: "!00000001",
		Decoded: models.Decoded{
			Portnum:   models.PortTelemetry,
			Telemetry: &models.Telemetry{},
		},
	})
	if len(f.telemetry.added) != 0 {
		t.Errorf("stored samples = %d, want 0 for empty telemetry", len(f.telemetry.added))
	}
}

func TestHandleTelemetryExtractsGroupsAndEnvelope(t *testing.T) {
	f := newProcessorFixture(t)
	battery := 88.0
	temp := 21.5
	snr := 6.25
	f.proc.HandlePacket(&models.Packet{
		FromID: "!00000001",
		SNR:    &snr,
		Decoded: models.Decoded{
			Portnum: models.PortTelemetry,
			Telemetry: &models.Telemetry{
				Device:      &models.DeviceMetrics{BatteryLevel: &battery},
				Environment: &models.EnvironmentMetrics{Temperature: &temp},
			},
		},
	})

	if len(f.telemetry.added) != 1 {
		t.Fatalf("stored samples = %d, want 1", len(f.telemetry.added))
	}
	fields := f.telemetry.added[0]
	if fields.BatteryLevel == nil || *fields.BatteryLevel != 88 {
		t.Error("battery level not extracted")
	}
	if fields.Temperature == nil || *fields.Temperature != 21.5 {
		t.Error("temperature not extracted")
	}
	if fields.SNR == nil || *fields.SNR != 6.25 {
		t.Error("envelope SNR not extracted")
	}
}

func positionPacket(latI, lonI int32) *models.Packet {
	return &models.Packet{
		FromID: "!00000001",
		Decoded: models.Decoded{
			Portnum:  models.PortPosition,
			Position: &models.PositionFix{LatitudeI: latI, LongitudeI: lonI},
		},
	}
}

func TestHandlePositionZeroDropped(t *testing.T) {
	f := newProcessorFixture(t)
	f.proc.HandlePacket(positionPacket(0, 0))
	if len(f.positions.added) != 0 {
		t.Errorf("stored positions = %d, want 0 for (0,0) fix", len(f.positions.added))
	}
}

func TestHandlePositionScalesFixedPoint(t *testing.T) {
	f := newProcessorFixture(t)
	f.proc.HandlePacket(positionPacket(451234500, -1225432100))

	if len(f.positions.added) != 1 {
		t.Fatalf("stored positions = %d, want 1", len(f.positions.added))
	}
	pos := f.positions.added[0]
	if pos.Latitude != 45.12345 || pos.Longitude != -122.54321 {
		t.Errorf("position = (%v, %v)", pos.Latitude, pos.Longitude)
	}
	if pos.Source != models.PositionSourceMesh {
		t.Errorf("source = %q", pos.Source)
	}
	if _, ok := f.meshToChat.TryPop(); ok {
		t.Error("first fix should not announce movement")
	}
}

func TestHandlePositionMovementEvent(t *testing.T) {
	f := newProcessorFixture(t)
	f.positions.last = &models.Position{
		NodeID:    "!00000001",
		Latitude:  45.0,
		Longitude: -122.0,
	}
	// ~111 m north of the previous fix, past the 100 m threshold.
	pkt := positionPacket(450010000, -1220000000)
	pkt.Decoded.Position.Altitude = 120
	f.proc.HandlePacket(pkt)

	ev, ok := f.meshToChat.TryPop()
	if !ok {
		t.Fatal("expected a movement event")
	}
	move, ok := ev.(MovementEvent)
	if !ok {
		t.Fatalf("event type = %T, want MovementEvent", ev)
	}
	if move.Distance < 100 || move.Distance > 125 {
		t.Errorf("Distance = %.1f, want ~111", move.Distance)
	}
	if move.OldLatitude != 45.0 || move.OldLongitude != -122.0 {
		t.Errorf("old position = (%v, %v), want (45, -122)", move.OldLatitude, move.OldLongitude)
	}
	if move.Latitude != 45.001 || move.Longitude != -122.0 {
		t.Errorf("new position = (%v, %v)", move.Latitude, move.Longitude)
	}
	if move.Altitude != 120 {
		t.Errorf("Altitude = %v, want 120", move.Altitude)
	}
}

func TestHandlePositionSmallMoveNoEvent(t *testing.T) {
	f := newProcessorFixture(t)
	f.positions.last = &models.Position{
		NodeID:    "!00000001",
		Latitude:  45.0,
		Longitude: -122.0,
	}
	// ~55 m, under the threshold.
	f.proc.HandlePacket(positionPacket(450005000, -1220000000))

	if _, ok := f.meshToChat.TryPop(); ok {
		t.Error("sub-threshold move should not announce movement")
	}
	if len(f.positions.added) != 1 {
		t.Errorf("stored positions = %d, want 1", len(f.positions.added))
	}
}

func TestHandleTraceroute(t *testing.T) {
	f := newProcessorFixture(t)
	f.proc.HandlePacket(&models.Packet{
		FromID: "!00000001",
		ToID:   "!00000002",
		Decoded: models.Decoded{
			Portnum: models.PortTraceroute,
			RouteDiscovery: &models.RouteDiscovery{
				Route:      []uint32{3, 4},
				SNRTowards: []int32{21, models.UnknownSNR},
			},
		},
	})

	ev, ok := f.meshToChat.TryPop()
	if !ok {
		t.Fatal("expected a traceroute event")
	}
	tr, ok := ev.(TracerouteEvent)
	if !ok {
		t.Fatalf("event type = %T, want TracerouteEvent", ev)
	}
	if len(tr.Forward) != 2 {
		t.Fatalf("forward hops = %d, want 2", len(tr.Forward))
	}
	if tr.Forward[0].SNR == nil || *tr.Forward[0].SNR != 5.25 {
		t.Error("quarter-dB SNR not scaled")
	}
	if tr.Forward[1].SNR != nil {
		t.Error("unknown SNR sentinel should map to nil")
	}
	if len(f.messages.added) != 1 {
		t.Errorf("stored messages = %d, want 1", len(f.messages.added))
	}
}

func TestHandleNodeInfoAnnouncesNewNode(t *testing.T) {
	f := newProcessorFixture(t)
	f.nodes.isNew = true
	f.proc.HandlePacket(&models.Packet{
		FromID: "!00000005",
		Decoded: models.Decoded{
			Portnum: models.PortNodeInfo,
			User: &models.UserInfo{
				ID:       "!00000005",
				LongName: "Echo Station",
			},
		},
	})

	if len(f.nodes.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(f.nodes.upserts))
	}
	ev, ok := f.meshToChat.TryPop()
	if !ok {
		t.Fatal("expected a new node event")
	}
	nn, ok := ev.(NewNodeEvent)
	if !ok {
		t.Fatalf("event type = %T, want NewNodeEvent", ev)
	}
	if nn.Name != "Echo Station" {
		t.Errorf("Name = %q", nn.Name)
	}
}

func TestHandleNodeInfoKnownNodeSilent(t *testing.T) {
	f := newProcessorFixture(t)
	f.nodes.isNew = false
	f.proc.HandlePacket(&models.Packet{
		FromID: "!00000005",
		Decoded: models.Decoded{
			Portnum: models.PortNodeInfo,
			User:    &models.UserInfo{ID: "!00000005", LongName: "Echo Station"},
		},
	})
	if _, ok := f.meshToChat.TryPop(); ok {
		t.Error("known node should not be announced")
	}
}
