// Package topology reconstructs an approximate picture of the mesh from
// message history. The mesh never reports its routing tables, so both
// the network view and per-node routes are heuristics over what the
// bridge has overheard.
package topology

import (
	"sort"
	"time"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
	"github.com/kabili207/mesh-discord-bridge/pkg/store"
)

// routeSampleLimit caps how much message history one route
// reconstruction reads.
const routeSampleLimit = 200

type Reconstructor struct {
	nodes    store.NodeStore
	messages store.MessageStore
	topology store.TopologyStore
}

func New(stores *store.Stores) *Reconstructor {
	return &Reconstructor{
		nodes:    stores.Nodes,
		messages: stores.Messages,
		topology: stores.Topology,
	}
}

// NetworkTopology returns the link graph aggregated from messages in
// the trailing window.
func (r *Reconstructor) NetworkTopology(window time.Duration) (*models.TopologyView, error) {
	return r.topology.View(window)
}

// RouteToNode estimates the path toward a node by grouping the messages
// addressed to it by hop count and keeping the most recent sender at
// each count. The result is ordered nearest hop first. This is an
// approximation: it shows which nodes have relayed toward the target at
// each distance, not the firmware's actual next-hop table.
func (r *Reconstructor) RouteToNode(nodeID string) ([]*models.RouteHop, error) {
	msgs, err := r.messages.To(nodeID, routeSampleLimit)
	if err != nil {
		return nil, err
	}

	// Messages arrive newest first, so the first sender seen at a given
	// hop count is the most recent one.
	byHops := map[int]*models.Message{}
	for _, msg := range msgs {
		if msg.FromNodeID == nodeID {
			continue
		}
		if _, seen := byHops[msg.HopsAway]; !seen {
			byHops[msg.HopsAway] = msg
		}
	}

	counts := make([]int, 0, len(byHops))
	for hops := range byHops {
		counts = append(counts, hops)
	}
	sort.Ints(counts)

	hops := make([]*models.RouteHop, 0, len(counts))
	for _, count := range counts {
		msg := byHops[count]
		name, err := r.nodes.DisplayName(msg.FromNodeID)
		if err != nil {
			name = msg.FromNodeID
		}
		hop := &models.RouteHop{
			NodeID:   msg.FromNodeID,
			NodeName: name,
			HopsAway: count,
		}
		if msg.SNR.Valid {
			snr := msg.SNR.Float64
			hop.SNR = &snr
		}
		if msg.RSSI.Valid {
			rssi := msg.RSSI.Float64
			hop.RSSI = &rssi
		}
		hops = append(hops, hop)
	}
	return hops, nil
}
