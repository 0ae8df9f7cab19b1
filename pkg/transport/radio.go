// Package transport defines the boundary interfaces between the bridge
// core and the outside world: the radio link on one side and the chat
// service on the other.
package transport

import "github.com/kabili207/mesh-discord-bridge/pkg/models"

// Radio is the mesh side of the bridge.
type Radio interface {
	// SendText transmits a text message. Destination is a node id
	// ("!da639050") or models.BroadcastID for the whole channel.
	SendText(text, destination string) error
	// Nodes returns the radio's current node table.
	Nodes() ([]*models.RawNode, error)
}

// ChatSender is the chat side of the bridge.
type ChatSender interface {
	Send(text string) error
}

// PacketHandler receives decoded inbound packets from a radio
// transport. Implementations must not block the radio loop.
type PacketHandler interface {
	HandlePacket(pkt *models.Packet)
}
