package ha

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/fabrikd/fabrikd/topology"
)

// ReconcileReadOnly compares each group's modeled master against the
// cached mode of every member backend and corrects drift: a non-master
// backend whose cached mode is READ_WRITE or WRITE_ONLY has its
// replication stopped and restarted and its cached mode set to
// READ_ONLY. It does not query the backend's read_only flag and does
// not change the Backend.ReadOnly field. It never changes group.Master
// itself — that is promote/demote's job.
func (c *Coordinator) ReconcileReadOnly(ctx context.Context) error {
	for _, g := range c.cache.AllGroups() {
		members := c.cache.BackendsOfGroup(g.ID)
		for _, b := range members {
			isMaster := g.Master != nil && *g.Master == b.UUID
			if isMaster {
				continue
			}
			if b.Mode == topology.ModeReadWrite || b.Mode == topology.ModeWriteOnly {
				log.WithFields(log.Fields{"group": g.ID, "backend": b.UUID}).
					Warn("ha: reconcile found non-master writable backend, forcing read-only")
				if err := c.drv.StopSlave(ctx, b.Address, false); err == nil {
					// best effort: bring it back under replication control
					_ = c.drv.StartSlave(ctx, b.Address, false)
				}
				b.Mode = topology.ModeReadOnly
			}
		}
	}
	return nil
}
