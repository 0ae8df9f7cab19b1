// Package bridge is the core relay between a packet-radio mesh and a
// group-chat channel: bounded queues in both directions, a per-port
// packet pipeline, and the periodic passes that keep the node directory
// and database healthy.
package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
	"github.com/kabili207/mesh-discord-bridge/pkg/store"
	"github.com/kabili207/mesh-discord-bridge/pkg/transport"
)

// OutboundMessage is one item on the chat-to-mesh queue. Sender is the
// chat-side author; it is empty for bridge-originated replies.
type OutboundMessage struct {
	Sender string
	Text   string
}

// addressPrefix marks an outbound chat message as directed at a single
// node: "nodenum=<id> <text>".
const addressPrefix = "nodenum="

type Options struct {
	QueueSize         int
	BatchSize         int
	DrainInterval     time.Duration
	RefreshInterval   time.Duration
	CleanupInterval   time.Duration
	SummaryInterval   time.Duration
	MovementThreshold float64
	ChannelName       string
}

func DefaultOptions() Options {
	return Options{
		QueueSize:         1000,
		BatchSize:         10,
		DrainInterval:     time.Second,
		RefreshInterval:   time.Minute,
		CleanupInterval:   5 * time.Minute,
		SummaryInterval:   time.Minute,
		MovementThreshold: 100,
		ChannelName:       "mesh",
	}
}

// normalize fills unset options from the defaults so the loop tickers
// never see a zero interval.
func normalize(opts Options) Options {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = def.DrainInterval
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = def.RefreshInterval
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = def.CleanupInterval
	}
	if opts.SummaryInterval <= 0 {
		opts.SummaryInterval = def.SummaryInterval
	}
	if opts.MovementThreshold <= 0 {
		opts.MovementThreshold = def.MovementThreshold
	}
	return opts
}

// Directory is the name service the bridge leans on: id-to-name
// resolution plus the cache it clears during cleanup.
type Directory interface {
	NameResolver
	Resolve(name string) (*models.Node, error)
	ClearCache()
}

type Bridge struct {
	radio  transport.Radio
	chat   transport.ChatSender
	stores *store.Stores
	dir    Directory
	opts   Options
	log    *slog.Logger

	meshToChat *Queue[Event]
	chatToMesh *Queue[OutboundMessage]
	processor  *Processor
	monitor    *Monitor
	renderer   *Renderer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(radio transport.Radio, chat transport.ChatSender, stores *store.Stores, dir Directory, opts Options, log *slog.Logger) *Bridge {
	opts = normalize(opts)
	meshToChat := NewQueue[Event](opts.QueueSize)
	chatToMesh := NewQueue[OutboundMessage](opts.QueueSize)
	monitor := NewMonitor()

	b := &Bridge{
		radio:      radio,
		chat:       chat,
		stores:     stores,
		dir:        dir,
		opts:       opts,
		log:        log,
		meshToChat: meshToChat,
		chatToMesh: chatToMesh,
		monitor:    monitor,
		renderer:   &Renderer{Channel: opts.ChannelName, Names: dir},
	}
	b.processor = NewProcessor(ProcessorOptions{
		Stores:            stores,
		Names:             dir,
		MeshToChat:        meshToChat,
		ChatToMesh:        chatToMesh,
		Monitor:           monitor,
		MovementThreshold: opts.MovementThreshold,
		Logger:            log,
	})
	return b
}

// SetRadio attaches the radio transport. Must be called before Start;
// the transport itself is constructed against this bridge's processor.
func (b *Bridge) SetRadio(radio transport.Radio) {
	b.radio = radio
}

// Processor returns the packet pipeline; the radio transport delivers
// inbound packets to it.
func (b *Bridge) Processor() *Processor { return b.processor }

// Monitor returns the recent-activity ring buffer for the status API.
func (b *Bridge) Monitor() *Monitor { return b.monitor }

// EnqueueOutbound adds a chat-originated message to the chat-to-mesh
// queue. Returns ErrQueueFull when the mesh cannot keep up.
func (b *Bridge) EnqueueOutbound(msg OutboundMessage) error {
	return b.chatToMesh.Push(msg)
}

// Start launches the bridge's background loops. Stop or cancelling ctx
// shuts them down.
func (b *Bridge) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(4)
	go b.drainLoop(ctx)
	go b.refreshLoop(ctx)
	go b.cleanupLoop(ctx)
	go b.summaryLoop(ctx)
}

// Stop cancels the loops and waits for them to exit.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// drainLoop pumps both queues once per tick: a bounded batch toward the
// chat so a burst cannot flood the channel, and a full drain toward the
// mesh since the radio side is the slow path anyway.
func (b *Bridge) drainLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.DrainMeshToChat()
			b.DrainChatToMesh()
		}
	}
}

// DrainMeshToChat sends up to BatchSize queued events to the chat.
func (b *Bridge) DrainMeshToChat() {
	for i := 0; i < b.opts.BatchSize; i++ {
		ev, ok := b.meshToChat.TryPop()
		if !ok {
			return
		}
		text := b.renderer.Render(ev)
		if err := b.chat.Send(text); err != nil {
			b.log.Error("sending to chat", "error", err)
		}
	}
}

// DrainChatToMesh transmits every queued outbound message. Messages
// prefixed "nodenum=<id> " go to that node; everything else, and any
// addressed send that fails, goes to the broadcast channel.
func (b *Bridge) DrainChatToMesh() {
	for {
		msg, ok := b.chatToMesh.TryPop()
		if !ok {
			return
		}
		b.sendToMesh(msg)
	}
}

func (b *Bridge) sendToMesh(msg OutboundMessage) {
	text := msg.Text
	if msg.Sender != "" {
		text = msg.Sender + ": " + msg.Text
	}

	if dest, body, ok := parseAddressed(msg.Text); ok {
		addressed := body
		if msg.Sender != "" {
			addressed = msg.Sender + ": " + body
		}
		if err := b.radio.SendText(addressed, dest); err == nil {
			b.monitor.Record(DirectionChatToMesh, dest, addressed)
			return
		} else {
			b.log.Warn("addressed send failed, broadcasting instead",
				"destination", dest, "error", err)
		}
	}

	if err := b.radio.SendText(text, models.BroadcastID); err != nil {
		b.log.Error("broadcasting to mesh", "error", err)
		return
	}
	b.monitor.Record(DirectionChatToMesh, models.BroadcastID, text)
}

// parseAddressed splits "nodenum=<id> <text>" into a destination node
// id and the remaining text.
func parseAddressed(text string) (dest, body string, ok bool) {
	if !strings.HasPrefix(text, addressPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(text, addressPrefix)
	id, body, found := strings.Cut(rest, " ")
	if !found || id == "" || body == "" {
		return "", "", false
	}
	if !strings.HasPrefix(id, "!") {
		id = "!" + id
	}
	return id, body, true
}

// refreshLoop folds the radio's node table into the store once per
// interval, announcing nodes seen for the first time and persisting any
// overheard telemetry and position readings.
func (b *Bridge) refreshLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.RefreshNodes()
		}
	}
}

// RefreshNodes runs one refresh pass over the radio's node table.
func (b *Bridge) RefreshNodes() {
	raws, err := b.radio.Nodes()
	if err != nil {
		b.log.Error("reading radio node table", "error", err)
		return
	}

	for _, raw := range raws {
		if raw.ID == "" {
			continue
		}
		node := nodeFromRaw(raw)
		isNew, err := b.stores.Nodes.Upsert(node)
		if err != nil {
			b.log.Error("upserting node", "node_id", raw.ID, "error", err)
			continue
		}
		if isNew {
			b.log.Info("new node discovered", "node_id", raw.ID, "name", node.DisplayName())
			if err := b.meshToChat.Push(NewNodeEvent{NodeID: raw.ID, Name: node.DisplayName()}); err != nil {
				b.log.Warn("mesh-to-chat queue full, dropping new node announcement", "node_id", raw.ID)
			}
		}
		b.persistRawReadings(raw)
	}
}

func nodeFromRaw(raw *models.RawNode) *models.Node {
	node := &models.Node{
		NodeID:          raw.ID,
		LongName:        raw.LongName,
		ShortName:       raw.ShortName,
		MacAddr:         raw.MacAddr,
		HwModel:         raw.HwModel,
		FirmwareVersion: raw.FirmwareVersion,
		HopsAway:        raw.HopsAway,
		IsRouter:        raw.IsRouter,
		IsClient:        raw.IsClient,
	}
	if raw.Num != 0 {
		node.NodeNum.Int64 = int64(raw.Num)
		node.NodeNum.Valid = true
	}
	if !raw.LastHeard.IsZero() {
		node.LastHeard.Time = raw.LastHeard.UTC()
		node.LastHeard.Valid = true
	}
	return node
}

// persistRawReadings stores the latest overheard metrics and fix from a
// node table entry, when the entry carries any.
func (b *Bridge) persistRawReadings(raw *models.RawNode) {
	fields := &models.TelemetryFields{
		BatteryLevel: raw.BatteryLevel,
		Voltage:      raw.Voltage,
		SNR:          raw.SNR,
		RSSI:         raw.RSSI,
	}
	if !fields.IsEmpty() {
		if err := b.stores.Telemetry.Add(raw.ID, fields); err != nil {
			b.log.Error("storing node table telemetry", "node_id", raw.ID, "error", err)
		}
	}

	if raw.Latitude != nil && raw.Longitude != nil &&
		(*raw.Latitude != 0 || *raw.Longitude != 0) {
		pos := &models.Position{
			NodeID:    raw.ID,
			Latitude:  *raw.Latitude,
			Longitude: *raw.Longitude,
			Altitude:  floatOrZero(raw.Altitude),
			Source:    models.PositionSourceMesh,
		}
		if err := b.stores.Positions.Add(pos); err != nil {
			b.log.Error("storing node table position", "node_id", raw.ID, "error", err)
		}
	}
}

// cleanupLoop clears the name cache and prunes aged rows once per
// interval.
func (b *Bridge) cleanupLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.dir.ClearCache()
			if err := b.stores.CleanupOldData(b.stores.Retention()); err != nil {
				b.log.Error("retention cleanup failed", "error", err)
			}
		}
	}
}

// summaryLoop checks the wall clock once per interval and posts the
// telemetry summary when the hour changes.
func (b *Bridge) summaryLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.SummaryInterval)
	defer ticker.Stop()

	lastHour := time.Now().Hour()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			hour := now.Hour()
			if hour == lastHour {
				continue
			}
			lastHour = hour
			b.postSummary(hour)
		}
	}
}

func (b *Bridge) postSummary(hour int) {
	summary, err := b.stores.Telemetry.Summary(time.Hour)
	if err != nil {
		b.log.Error("building telemetry summary", "error", err)
		return
	}
	if err := b.meshToChat.Push(TelemetrySummaryEvent{Hour: hour, Summary: summary}); err != nil {
		b.log.Warn("mesh-to-chat queue full, dropping telemetry summary")
	}
}
