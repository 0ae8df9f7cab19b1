package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

const broadcastNum = 0xFFFFFFFF

// jsonUplink is the envelope of a gateway JSON uplink. Payload varies
// by Type and is decoded separately.
type jsonUplink struct {
	From      uint32         `json:"from"`
	To        uint32         `json:"to"`
	Sender    string         `json:"sender"`
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	HopsAway  *int           `json:"hops_away"`
	HopStart  *int           `json:"hop_start"`
	SNR       *float64       `json:"snr"`
	RSSI      *float64       `json:"rssi"`
	Frequency *float64       `json:"freq"`
	Payload   map[string]any `json:"payload"`
}

// decodeJSONUplink maps one gateway JSON message to a packet. Unknown
// payload types come back with only the envelope filled in; the
// pipeline ignores them by port.
func decodeJSONUplink(raw []byte) (*models.Packet, error) {
	var up jsonUplink
	if err := json.Unmarshal(raw, &up); err != nil {
		return nil, fmt.Errorf("parsing uplink envelope: %w", err)
	}
	if up.From == 0 {
		return nil, fmt.Errorf("uplink without sender")
	}

	pkt := &models.Packet{
		FromID:    nodeNumToID(up.From),
		ToID:      destinationID(up.To),
		SNR:       up.SNR,
		RSSI:      up.RSSI,
		Frequency: up.Frequency,
		RxTime:    time.Now().UTC(),
	}
	if up.Timestamp > 0 {
		pkt.RxTime = time.Unix(up.Timestamp, 0).UTC()
	}
	if up.HopsAway != nil {
		pkt.HopsAway = *up.HopsAway
	}

	if err := decodePayload(up.Type, up.Payload, pkt); err != nil {
		return nil, err
	}
	return pkt, nil
}

func decodePayload(kind string, payload map[string]any, pkt *models.Packet) error {
	switch kind {
	case "text":
		pkt.Decoded.Portnum = models.PortTextMessage
		if text, ok := payload["text"].(string); ok {
			pkt.Decoded.Text = text
		}
	case "telemetry":
		pkt.Decoded.Portnum = models.PortTelemetry
		var tel models.Telemetry
		if err := mapstructure.Decode(payload, &tel); err != nil {
			return fmt.Errorf("decoding telemetry payload: %w", err)
		}
		pkt.Decoded.Telemetry = &tel
	case "position":
		pkt.Decoded.Portnum = models.PortPosition
		var fix models.PositionFix
		if err := mapstructure.WeakDecode(payload, &fix); err != nil {
			return fmt.Errorf("decoding position payload: %w", err)
		}
		pkt.Decoded.Position = &fix
	case "traceroute":
		pkt.Decoded.Portnum = models.PortTraceroute
		var rd models.RouteDiscovery
		if err := mapstructure.WeakDecode(payload, &rd); err != nil {
			return fmt.Errorf("decoding traceroute payload: %w", err)
		}
		pkt.Decoded.RouteDiscovery = &rd
	case "nodeinfo":
		pkt.Decoded.Portnum = models.PortNodeInfo
		var user models.UserInfo
		if err := mapstructure.WeakDecode(payload, &user); err != nil {
			return fmt.Errorf("decoding nodeinfo payload: %w", err)
		}
		if role, ok := payload["role"].(string); ok {
			user.IsRouter = strings.HasPrefix(role, "ROUTER")
		}
		pkt.Decoded.User = &user
	default:
		pkt.Decoded.Portnum = kind
	}
	return nil
}

func destinationID(to uint32) string {
	if to == 0 || to == broadcastNum {
		return models.BroadcastID
	}
	return nodeNumToID(to)
}

func nodeNumToID(num uint32) string {
	return fmt.Sprintf("!%08x", num)
}

// nodeIDToNum is the inverse of nodeNumToID; malformed ids map to 0.
func nodeIDToNum(id string) uint32 {
	num, err := parseNodeID(id)
	if err != nil {
		return 0
	}
	return num
}

func parseNodeID(id string) (uint32, error) {
	hexPart := strings.TrimPrefix(id, "!")
	num, err := strconv.ParseUint(hexPart, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(num), nil
}
