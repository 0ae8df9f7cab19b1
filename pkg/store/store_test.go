package store

import (
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

func openTestStores(t *testing.T) *Stores {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts := DefaultOptions()
	// Keep the maintenance goroutine idle during tests.
	opts.MaintenanceInterval = time.Hour
	stores, err := Open(path, slog.Default(), opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { stores.Close() })
	return stores
}

func TestUpsertReportsNewOnce(t *testing.T) {
	s := openTestStores(t)
	node := &models.Node{NodeID: "!00000001", LongName: "Alpha"}

	isNew, err := s.Nodes.Upsert(node)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !isNew {
		t.Error("first Upsert() isNew = false, want true")
	}

	isNew, err = s.Nodes.Upsert(node)
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if isNew {
		t.Error("second Upsert() isNew = true, want false")
	}
}

func TestUpsertPreservesFirstSeen(t *testing.T) {
	s := openTestStores(t)
	node := &models.Node{NodeID: "!00000001", LongName: "Alpha"}
	if _, err := s.Nodes.Upsert(node); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	stored, err := s.Nodes.Get("!00000001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	firstSeen := stored.FirstSeen

	time.Sleep(10 * time.Millisecond)
	node.LongName = "Alpha Renamed"
	if _, err := s.Nodes.Upsert(node); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	stored, err = s.Nodes.Get("!00000001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !stored.FirstSeen.Equal(firstSeen) {
		t.Errorf("FirstSeen changed on update: %v -> %v", firstSeen, stored.FirstSeen)
	}
	if stored.LongName != "Alpha Renamed" {
		t.Errorf("LongName = %q, want update applied", stored.LongName)
	}
	if !stored.LastSeen.After(firstSeen) {
		t.Error("LastSeen should move forward on update")
	}
}

func TestUpsertDefaultsUnknownName(t *testing.T) {
	s := openTestStores(t)
	if _, err := s.Nodes.Upsert(&models.Node{NodeID: "!00000002"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	stored, err := s.Nodes.Get("!00000002")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.LongName != "Unknown" {
		t.Errorf("LongName = %q, want %q", stored.LongName, "Unknown")
	}
}

func TestGetMissingNodeIsNil(t *testing.T) {
	s := openTestStores(t)
	node, err := s.Nodes.Get("!deadbeef")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if node != nil {
		t.Errorf("Get() = %#v, want nil for missing node", node)
	}
}

func seedNode(t *testing.T, s *Stores, id, long, short string, heard time.Time) {
	t.Helper()
	_, err := s.Nodes.Upsert(&models.Node{
		NodeID:    id,
		LongName:  long,
		ShortName: short,
		LastHeard: sql.NullTime{Time: heard, Valid: true},
	})
	if err != nil {
		t.Fatalf("Upsert(%s) error = %v", id, err)
	}
}

func TestFindByNamePrefersExactMatch(t *testing.T) {
	s := openTestStores(t)
	now := time.Now().UTC()
	seedNode(t, s, "!00000001", "AlphaBeta", "AB", now)
	seedNode(t, s, "!00000002", "Alpha", "AL", now.Add(-time.Hour))

	node, err := s.Nodes.FindByName("Alpha")
	if err != nil {
		t.Fatalf("FindByName() error = %v", err)
	}
	if node == nil || node.NodeID != "!00000002" {
		t.Errorf("FindByName(Alpha) = %v, want exact match !00000002", node)
	}
}

func TestFindByNameSubstring(t *testing.T) {
	s := openTestStores(t)
	seedNode(t, s, "!00000001", "Hilltop Repeater", "HR1", time.Now().UTC())

	node, err := s.Nodes.FindByName("lltop")
	if err != nil {
		t.Fatalf("FindByName() error = %v", err)
	}
	if node == nil || node.NodeID != "!00000001" {
		t.Errorf("FindByName(lltop) = %v, want substring match", node)
	}
}

func TestFindByNameNoMatch(t *testing.T) {
	s := openTestStores(t)
	node, err := s.Nodes.FindByName("nothing")
	if err != nil {
		t.Fatalf("FindByName() error = %v", err)
	}
	if node != nil {
		t.Errorf("FindByName() = %v, want nil", node)
	}
}

func TestDisplayNameFallback(t *testing.T) {
	s := openTestStores(t)
	seedNode(t, s, "!00000001", "Alpha Station", "AS", time.Now().UTC())

	name, err := s.Nodes.DisplayName("!00000001")
	if err != nil {
		t.Fatalf("DisplayName() error = %v", err)
	}
	if name != "Alpha Station" {
		t.Errorf("DisplayName() = %q", name)
	}

	name, err = s.Nodes.DisplayName("!deadbeef")
	if err != nil {
		t.Fatalf("DisplayName() for unknown error = %v", err)
	}
	if name != "!deadbeef" {
		t.Errorf("DisplayName() for unknown = %q, want raw id", name)
	}
}

func TestTelemetryRoundTrip(t *testing.T) {
	s := openTestStores(t)
	seedNode(t, s, "!00000001", "Alpha", "AL", time.Now().UTC())

	battery := 92.0
	pm25 := 4.0
	err := s.Telemetry.Add("!00000001", &models.TelemetryFields{
		BatteryLevel: &battery,
		// pm25 lives in a column added by the additive migration.
		PM25: &pm25,
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	records, err := s.Telemetry.History("!00000001", time.Hour, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("History() len = %d, want 1", len(records))
	}
	if !records[0].BatteryLevel.Valid || records[0].BatteryLevel.Float64 != 92 {
		t.Errorf("BatteryLevel = %v", records[0].BatteryLevel)
	}
}

func TestSummaryEmptyStore(t *testing.T) {
	s := openTestStores(t)
	summary, err := s.Telemetry.Summary(time.Hour)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.TotalNodes != 0 || summary.ActiveNodes != 0 {
		t.Errorf("counts = (%d, %d), want zeros", summary.TotalNodes, summary.ActiveNodes)
	}
	if summary.AvgBattery.Valid {
		t.Error("AvgBattery should be NULL on an empty store")
	}
}

func TestPositionLast(t *testing.T) {
	s := openTestStores(t)
	seedNode(t, s, "!00000001", "Alpha", "AL", time.Now().UTC())

	pos, err := s.Positions.Last("!00000001")
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	if pos != nil {
		t.Errorf("Last() = %v, want nil with no fixes", pos)
	}

	for i, lat := range []float64{45.0, 45.001} {
		err := s.Positions.Add(&models.Position{
			NodeID:    "!00000001",
			Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Second),
			Latitude:  lat,
			Longitude: -122.0,
			Source:    models.PositionSourceMesh,
		})
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	pos, err = s.Positions.Last("!00000001")
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	if pos == nil || pos.Latitude != 45.001 {
		t.Errorf("Last() = %v, want most recent fix", pos)
	}
}

func TestMessageStats(t *testing.T) {
	s := openTestStores(t)
	seedNode(t, s, "!00000001", "Alpha", "AL", time.Now().UTC())

	for i := 0; i < 3; i++ {
		err := s.Messages.Add(&models.Message{
			FromNodeID:  "!00000001",
			ToNodeID:    models.BroadcastID,
			MessageText: "hi",
			PortNum:     models.PortTextMessage,
			HopsAway:    2,
		})
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	stats, err := s.Messages.Stats(time.Hour)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalMessages != 3 {
		t.Errorf("TotalMessages = %d, want 3", stats.TotalMessages)
	}
	if stats.UniqueSenders != 1 {
		t.Errorf("UniqueSenders = %d, want 1", stats.UniqueSenders)
	}
	var hourly int
	for _, n := range stats.HourlyDistribution {
		hourly += n
	}
	if hourly != 3 {
		t.Errorf("hourly distribution sum = %d, want 3", hourly)
	}
}

func TestCleanupOldData(t *testing.T) {
	s := openTestStores(t)
	seedNode(t, s, "!00000001", "Alpha", "AL", time.Now().UTC())

	old := time.Now().UTC().Add(-48 * time.Hour)
	if err := s.Messages.Add(&models.Message{
		FromNodeID: "!00000001",
		ToNodeID:   models.BroadcastID,
		Timestamp:  old,
		PortNum:    models.PortTextMessage,
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Messages.Add(&models.Message{
		FromNodeID: "!00000001",
		ToNodeID:   models.BroadcastID,
		PortNum:    models.PortTextMessage,
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := s.CleanupOldData(24 * time.Hour); err != nil {
		t.Fatalf("CleanupOldData() error = %v", err)
	}

	stats, err := s.Messages.Stats(72 * time.Hour)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalMessages != 1 {
		t.Errorf("TotalMessages after cleanup = %d, want 1", stats.TotalMessages)
	}

	// Node rows survive retention cleanup.
	node, err := s.Nodes.Get("!00000001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if node == nil {
		t.Error("node row deleted by cleanup")
	}
}

func TestTopologyView(t *testing.T) {
	s := openTestStores(t)
	seedNode(t, s, "!00000001", "Alpha", "AL", time.Now().UTC())
	seedNode(t, s, "!00000002", "Bravo", "BR", time.Now().UTC())

	for i := 0; i < 2; i++ {
		if err := s.Messages.Add(&models.Message{
			FromNodeID: "!00000001",
			ToNodeID:   "!00000002",
			PortNum:    models.PortTextMessage,
			HopsAway:   1,
		}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	view, err := s.Topology.View(time.Hour)
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if view.TotalNodes != 2 {
		t.Errorf("TotalNodes = %d, want 2", view.TotalNodes)
	}
	if len(view.Links) != 1 {
		t.Fatalf("links = %d, want 1", len(view.Links))
	}
	link := view.Links[0]
	if link.FromNode != "!00000001" || link.ToNode != "!00000002" || link.MessageCount != 2 {
		t.Errorf("link = %+v", link)
	}
}
