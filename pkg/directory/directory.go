// Package directory resolves mesh node names: fuzzy lookup by human
// name and id-to-display-name mapping, with a TTL cache in front of the
// store so hot ids (chatty nodes) don't hit the database per packet.
package directory

import (
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
	"github.com/kabili207/mesh-discord-bridge/pkg/store"
)

const displayNameTTL = 5 * time.Minute

type Directory struct {
	nodes store.NodeStore
	cache *ttlcache.Cache[string, string]
	log   *slog.Logger
}

func New(nodes store.NodeStore, log *slog.Logger) *Directory {
	cache := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](displayNameTTL),
	)
	go cache.Start()
	return &Directory{
		nodes: nodes,
		cache: cache,
		log:   log,
	}
}

// Resolve finds a node by name: exact long/short match first, then
// ranked substring match. Returns nil when nothing matches.
func (d *Directory) Resolve(name string) (*models.Node, error) {
	return d.nodes.FindByName(name)
}

// DisplayName maps a node id to its best human-friendly name. Unknown
// ids and store failures both fall back to the raw id.
func (d *Directory) DisplayName(nodeID string) string {
	if item := d.cache.Get(nodeID); item != nil {
		return item.Value()
	}
	name, err := d.nodes.DisplayName(nodeID)
	if err != nil {
		d.log.Warn("display name lookup failed", "node_id", nodeID, "error", err)
		return nodeID
	}
	d.cache.Set(nodeID, name, ttlcache.DefaultTTL)
	return name
}

// ClearCache drops all cached names. Called by the bridge's periodic
// cleanup pass so renames propagate promptly.
func (d *Directory) ClearCache() {
	d.cache.DeleteAll()
}

// Stop halts the cache's expiry goroutine.
func (d *Directory) Stop() {
	d.cache.Stop()
}
