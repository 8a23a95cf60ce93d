package sigengine

import (
	"context"
	"time"
)

// snapshotLoop checkpoints the engine every SnapshotInterval until ctx is done.
func (svc *Service) snapshotLoop(ctx context.Context) {
	if svc.cfg.SnapshotInterval <= 0 || len(svc.deps.Snapshots) == 0 {
		return
	}
	ticker := time.NewTicker(svc.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.saveSnapshot("periodic")
		}
	}
}

// saveSnapshot writes one checkpoint to every store and returns how many
// accepted it.
func (svc *Service) saveSnapshot(trigger string) int {
	data, err := svc.engine.MarshalSnapshot()
	if err != nil {
		svc.log.Error("snapshot marshal failed", "err", err)
		return 0
	}
	saved := 0
	for _, s := range svc.deps.Snapshots {
		if err := s.Store.SaveSnapshotJSON(data); err != nil {
			svc.prom.SnapshotsTotal.WithLabelValues(s.Name, "error").Inc()
			svc.log.Warn("snapshot save failed", "store", s.Name, "err", err)
			continue
		}
		svc.prom.SnapshotsTotal.WithLabelValues(s.Name, "ok").Inc()
		saved++
	}
	svc.log.Debug("snapshot saved", "trigger", trigger, "stores", saved, "bytes", len(data))
	return saved
}
