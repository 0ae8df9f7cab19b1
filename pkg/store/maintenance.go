package store

import (
	"time"
)

// maintenanceTask runs periodic database upkeep on its own goroutine:
// statistics reclustering, retention pruning, and compaction once the
// file outgrows the configured threshold. The cancellation flag is
// checked every 10 seconds so shutdown stays responsive even with an
// hourly work interval.
type maintenanceTask struct {
	stores *Stores
	quit   chan struct{}
	done   chan struct{}
}

func startMaintenance(s *Stores) *maintenanceTask {
	m := &maintenanceTask{
		stores: s,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *maintenanceTask) run() {
	defer close(m.done)

	interval := m.stores.opts.MaintenanceInterval
	if interval <= 0 {
		interval = DefaultOptions().MaintenanceInterval
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	lastRun := time.Now()
	for {
		select {
		case <-m.quit:
			return
		case now := <-ticker.C:
			if now.Sub(lastRun) < interval {
				continue
			}
			m.maintain()
			lastRun = now
		}
	}
}

func (m *maintenanceTask) maintain() {
	s := m.stores

	if _, err := s.db.Exec("ANALYZE"); err != nil {
		s.log.Error("analyze failed", "error", err)
	}

	if err := s.CleanupOldData(s.opts.Retention); err != nil {
		s.log.Error("retention cleanup failed", "error", err)
	}

	size, err := m.databaseSize()
	if err != nil {
		s.log.Error("reading database size", "error", err)
		return
	}
	if size > s.opts.VacuumThresholdBytes {
		s.log.Info("compacting database", "size_bytes", size)
		if _, err := s.db.Exec("VACUUM"); err != nil {
			s.log.Error("vacuum failed", "error", err)
		}
	}
}

func (m *maintenanceTask) databaseSize() (int64, error) {
	var pageCount, pageSize int64
	if err := m.stores.db.Get(&pageCount, "PRAGMA page_count"); err != nil {
		return 0, err
	}
	if err := m.stores.db.Get(&pageSize, "PRAGMA page_size"); err != nil {
		return 0, err
	}
	return pageCount * pageSize, nil
}

// stop signals the task and waits up to timeout for it to exit.
func (m *maintenanceTask) stop(timeout time.Duration) {
	close(m.quit)
	select {
	case <-m.done:
	case <-time.After(timeout):
		m.stores.log.Warn("maintenance task did not stop in time")
	}
}
