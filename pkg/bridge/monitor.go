package bridge

import (
	"sync"
	"time"
)

const monitorCapacity = 50

const (
	DirectionMeshToChat = "mesh_to_chat"
	DirectionChatToMesh = "chat_to_mesh"
)

// MonitorEntry is one line of recent bridge activity. Hops, SNR and
// RSSI describe the received packet when the entry came off the radio.
type MonitorEntry struct {
	Time      time.Time `json:"time"`
	Direction string    `json:"direction"`
	NodeID    string    `json:"node_id,omitempty"`
	Summary   string    `json:"summary"`
	Hops      int       `json:"hops"`
	SNR       *float64  `json:"snr,omitempty"`
	RSSI      *float64  `json:"rssi,omitempty"`
}

// Monitor keeps the most recent bridge activity in a fixed-size ring
// buffer for the status API.
type Monitor struct {
	mu      sync.Mutex
	entries []MonitorEntry
	next    int
	full    bool
}

func NewMonitor() *Monitor {
	return &Monitor{entries: make([]MonitorEntry, monitorCapacity)}
}

func (m *Monitor) Record(direction, nodeID, summary string) {
	m.RecordPacket(direction, nodeID, summary, 0, nil, nil)
}

// RecordPacket records an entry carrying the packet envelope's
// reception details.
func (m *Monitor) RecordPacket(direction, nodeID, summary string, hops int, snr, rssi *float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.next] = MonitorEntry{
		Time:      time.Now().UTC(),
		Direction: direction,
		NodeID:    nodeID,
		Summary:   summary,
		Hops:      hops,
		SNR:       snr,
		RSSI:      rssi,
	}
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.full = true
	}
}

// Entries returns a snapshot of the buffer, newest first.
func (m *Monitor) Entries() []MonitorEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = len(m.entries)
	}
	out := make([]MonitorEntry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, m.entries[(m.next-i+len(m.entries))%len(m.entries)])
	}
	return out
}
