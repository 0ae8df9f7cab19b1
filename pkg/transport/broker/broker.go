// Package broker runs an optional embedded MQTT broker so a radio
// gateway can uplink straight into the bridge without an external
// broker.
package broker

import (
	"bytes"
	"fmt"
	"log/slog"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

type Options struct {
	// Address is the TCP listen address, e.g. ":1883".
	Address  string
	Username string
	Password string
}

type Broker struct {
	server *mqtt.Server
	log    *slog.Logger
}

func New(opts Options, log *slog.Logger) (*Broker, error) {
	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       log,
	})

	if err := server.AddHook(&staticAuthHook{
		username: opts.Username,
		password: opts.Password,
	}, nil); err != nil {
		return nil, fmt.Errorf("adding auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: opts.Address})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("adding listener: %w", err)
	}

	return &Broker{server: server, log: log}, nil
}

// Start serves the broker on its own goroutine.
func (b *Broker) Start() {
	go func() {
		if err := b.server.Serve(); err != nil {
			b.log.Error("embedded broker stopped", "error", err)
		}
	}()
}

func (b *Broker) Close() error {
	return b.server.Close()
}

// staticAuthHook authenticates every client against one credential
// pair. Empty credentials allow anonymous access.
type staticAuthHook struct {
	mqtt.HookBase
	username string
	password string
}

func (h *staticAuthHook) ID() string {
	return "static-auth"
}

func (h *staticAuthHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnectAuthenticate,
		mqtt.OnACLCheck,
	}, []byte{b})
}

func (h *staticAuthHook) OnConnectAuthenticate(cl *mqtt.Client, pk packets.Packet) bool {
	if h.username == "" {
		return true
	}
	return string(pk.Connect.Username) == h.username &&
		string(pk.Connect.Password) == h.password
}

func (h *staticAuthHook) OnACLCheck(cl *mqtt.Client, topic string, write bool) bool {
	return true
}
