// Package mqtt connects the bridge to a Meshtastic mesh through an MQTT
// gateway. Uplinked packets arrive on two topic families: the gateway's
// JSON topic and the encrypted protobuf topic; both are decoded into the
// same packet model. Downlink text rides the gateway's JSON downlink
// topic.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kabili207/meshtastic-go/core/crypto"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
	"github.com/kabili207/mesh-discord-bridge/pkg/transport"
)

const (
	connectTimeout   = 30 * time.Second
	maxConnectWait   = 2 * time.Minute
	disconnectGraceMS = 250
)

type Options struct {
	// BrokerURL is the MQTT broker, e.g. "tcp://mqtt.example.org:1883".
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// TopicRoot is the mesh region root, e.g. "msh/US".
	TopicRoot string
	// Channel is the mesh channel name, e.g. "LongFast".
	Channel string
	// ChannelKey is the channel PSK in base64. Empty selects the
	// well-known default key.
	ChannelKey string

	// GatewayID is the node id of the radio gateway this bridge
	// transmits through ("!da639050").
	GatewayID string
}

// Transport is the MQTT radio link. It implements transport.Radio and
// delivers inbound packets to the configured handler.
type Transport struct {
	opts    Options
	client  pahomqtt.Client
	handler transport.PacketHandler
	key     []byte
	log     *slog.Logger

	mu    sync.RWMutex
	nodes map[string]*models.RawNode
}

func New(opts Options, handler transport.PacketHandler, log *slog.Logger) (*Transport, error) {
	key := crypto.DefaultKey
	if opts.ChannelKey != "" {
		parsed, err := crypto.ParseKey(opts.ChannelKey)
		if err != nil {
			return nil, fmt.Errorf("parsing channel key: %w", err)
		}
		key = parsed
	}

	t := &Transport{
		opts:    opts,
		handler: handler,
		key:     key,
		log:     log,
		nodes:   map[string]*models.RawNode{},
	}

	clientOpts := pahomqtt.NewClientOptions()
	clientOpts.AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}
	clientOpts.SetConnectTimeout(connectTimeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetMaxReconnectInterval(time.Minute)
	clientOpts.SetOnConnectHandler(t.onConnect)
	clientOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn("mqtt connection lost", "error", err)
	})
	t.client = pahomqtt.NewClient(clientOpts)
	return t, nil
}

// Connect dials the broker, retrying with exponential backoff. The
// subscriptions are re-established by the on-connect handler on every
// (re)connection.
func (t *Transport) Connect() error {
	op := func() error {
		token := t.client.Connect()
		if !token.WaitTimeout(connectTimeout) {
			return fmt.Errorf("connect timeout to %s", t.opts.BrokerURL)
		}
		return token.Error()
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxConnectWait
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	return nil
}

func (t *Transport) Close() {
	t.client.Disconnect(disconnectGraceMS)
}

func (t *Transport) onConnect(client pahomqtt.Client) {
	t.log.Info("mqtt connected", "broker", t.opts.BrokerURL)

	jsonTopic := fmt.Sprintf("%s/2/json/%s/+", t.opts.TopicRoot, t.opts.Channel)
	if token := client.Subscribe(jsonTopic, 0, t.onJSONMessage); token.Wait() && token.Error() != nil {
		t.log.Error("subscribing to json uplink", "topic", jsonTopic, "error", token.Error())
	}

	protoTopic := fmt.Sprintf("%s/2/e/%s/+", t.opts.TopicRoot, t.opts.Channel)
	if token := client.Subscribe(protoTopic, 0, t.onProtoMessage); token.Wait() && token.Error() != nil {
		t.log.Error("subscribing to encrypted uplink", "topic", protoTopic, "error", token.Error())
	}
}

func (t *Transport) onJSONMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	pkt, err := decodeJSONUplink(msg.Payload())
	if err != nil {
		t.log.Debug("undecodable json uplink", "topic", msg.Topic(), "error", err)
		return
	}
	t.deliver(pkt)
}

func (t *Transport) onProtoMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	pkt, err := decodeServiceEnvelope(msg.Payload(), t.key)
	if err != nil {
		t.log.Debug("undecodable envelope", "topic", msg.Topic(), "error", err)
		return
	}
	t.deliver(pkt)
}

func (t *Transport) deliver(pkt *models.Packet) {
	if pkt == nil {
		return
	}
	// Ignore our own downlinks echoed back by the gateway.
	if pkt.FromID == t.opts.GatewayID {
		return
	}
	t.updateNodeTable(pkt)
	if t.handler != nil {
		t.handler.HandlePacket(pkt)
	}
}

// jsonDownlink is the gateway's downlink message shape. The gateway
// transmits Payload on the mesh channel.
type jsonDownlink struct {
	From    uint32 `json:"from"`
	To      uint32 `json:"to,omitempty"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// SendText publishes a text downlink. Destination is a node id or
// models.BroadcastID.
func (t *Transport) SendText(text, destination string) error {
	down := jsonDownlink{
		From:    nodeIDToNum(t.opts.GatewayID),
		Type:    "sendtext",
		Payload: text,
	}
	if destination != "" && destination != models.BroadcastID {
		num, err := parseNodeID(destination)
		if err != nil {
			return fmt.Errorf("bad destination %q: %w", destination, err)
		}
		down.To = num
	}

	payload, err := json.Marshal(down)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/2/json/mqtt/%s", t.opts.TopicRoot, t.opts.GatewayID)
	token := t.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("publish timeout on %s", topic)
	}
	return token.Error()
}

// Nodes returns a snapshot of the node table accumulated from uplinked
// packets.
func (t *Transport) Nodes() ([]*models.RawNode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*models.RawNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		copied := *n
		out = append(out, &copied)
	}
	return out, nil
}

// updateNodeTable folds a packet's envelope and payload into the node
// table entry for its sender.
func (t *Transport) updateNodeTable(pkt *models.Packet) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[pkt.FromID]
	if !ok {
		node = &models.RawNode{
			ID:  pkt.FromID,
			Num: nodeIDToNum(pkt.FromID),
		}
		t.nodes[pkt.FromID] = node
	}

	node.LastHeard = pkt.RxTime
	node.HopsAway = pkt.HopsAway
	if pkt.SNR != nil {
		node.SNR = pkt.SNR
	}
	if pkt.RSSI != nil {
		node.RSSI = pkt.RSSI
	}

	switch {
	case pkt.Decoded.User != nil:
		node.LongName = pkt.Decoded.User.LongName
		node.ShortName = pkt.Decoded.User.ShortName
		node.HwModel = pkt.Decoded.User.HwModel
		node.IsRouter = pkt.Decoded.User.IsRouter
		node.IsClient = !pkt.Decoded.User.IsRouter
	case pkt.Decoded.Telemetry != nil:
		if d := pkt.Decoded.Telemetry.Device; d != nil {
			if d.BatteryLevel != nil {
				node.BatteryLevel = d.BatteryLevel
			}
			if d.Voltage != nil {
				node.Voltage = d.Voltage
			}
		}
	case pkt.Decoded.Position != nil:
		lat := float64(pkt.Decoded.Position.LatitudeI) / 1e7
		lon := float64(pkt.Decoded.Position.LongitudeI) / 1e7
		if lat != 0 || lon != 0 {
			alt := float64(pkt.Decoded.Position.Altitude)
			node.Latitude = &lat
			node.Longitude = &lon
			node.Altitude = &alt
		}
	}
}
