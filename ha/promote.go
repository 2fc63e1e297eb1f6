package ha

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/fabrikd/fabrikd/events"
	"github.com/fabrikd/fabrikd/metrics"
	"github.com/fabrikd/fabrikd/replication"
	"github.com/fabrikd/fabrikd/topology"
)

// Coordinator runs the HA state machine for one group at a time; the
// executor is responsible for ensuring only one procedure holds a
// given group's lock concurrently.
type Coordinator struct {
	drv   replication.Driver
	bus   *events.Bus
	cache *topology.Cache
}

func NewCoordinator(drv replication.Driver, bus *events.Bus, cache *topology.Cache) *Coordinator {
	return &Coordinator{drv: drv, bus: bus, cache: cache}
}

// ReplicationUser and ReplicationPasswd credential the replication
// stream set up between group members. A real deployment resolves
// these per-group from the credential store (out of scope, §1); tests
// and the single-tenant default wire a fixed pair.
type ReplicationCreds struct {
	User   string
	Passwd string
}

// Promote dispatches to switchover or failover depending on whether
// the group currently has a live, non-FAULTY master, per spec.md §4.5.
// candidateID, if non-empty, pins the promotion target instead of
// running candidate selection.
func (c *Coordinator) Promote(ctx context.Context, groupID string, candidateID string, creds ReplicationCreds) (newMasterID string, err error) {
	group, ok := c.cache.Group(groupID)
	if !ok {
		return "", errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID)
	}
	members := c.cache.BackendsOfGroup(groupID)

	currentMaster, hasLiveMaster := c.liveMaster(ctx, group, members)
	if hasLiveMaster {
		newMasterID, err := c.switchover(ctx, group, members, currentMaster, candidateID, creds)
		if err == nil {
			metrics.PromotionsTotal.WithLabelValues("switchover").Inc()
		}
		return newMasterID, err
	}
	newMasterID, err := c.failover(ctx, group, members, candidateID, creds)
	if err == nil {
		metrics.PromotionsTotal.WithLabelValues("failover").Inc()
	}
	return newMasterID, err
}

// liveMaster reports the current master backend and whether it is
// alive and not FAULTY (switchover path applies) vs. absent/FAULTY
// (failover path applies).
func (c *Coordinator) liveMaster(ctx context.Context, group *topology.Group, members []*topology.Backend) (*topology.Backend, bool) {
	if group.Master == nil {
		return nil, false
	}
	for _, b := range members {
		if b.UUID == *group.Master {
			if b.Status == topology.StatusFaulty {
				return b, false
			}
			return b, true
		}
	}
	return nil, false
}

func (c *Coordinator) switchover(
	ctx context.Context,
	group *topology.Group,
	members []*topology.Backend,
	currentMaster *topology.Backend,
	candidateID string,
	creds ReplicationCreds,
) (string, error) {
	candidate, err := c.resolveCandidate(ctx, group, members, currentMaster.UUID, candidateID, true)
	if err != nil {
		return "", err
	}

	currentMaster.Status = topology.StatusSecondary
	currentMaster.Mode = topology.ModeReadOnly
	group.Master = nil

	oldMasterGtid, err := c.drv.GetGtidStatus(ctx, currentMaster.Address)
	if err != nil {
		return "", err
	}
	if _, err := c.drv.WaitForGtid(ctx, candidate.Address, oldMasterGtid, defaultCatchupTimeout); err != nil {
		return "", err
	}
	for _, b := range members {
		if b.UUID == candidate.UUID || b.UUID == currentMaster.UUID {
			continue
		}
		if _, err := c.drv.WaitForGtid(ctx, b.Address, oldMasterGtid, defaultCatchupTimeout); err != nil {
			log.WithField("backend", b.UUID).WithError(err).Warn("ha: slave failed to catch up before cutover, continuing")
		}
	}

	return c.cutover(ctx, group, members, candidate, creds)
}

func (c *Coordinator) failover(
	ctx context.Context,
	group *topology.Group,
	members []*topology.Backend,
	candidateID string,
	creds ReplicationCreds,
) (string, error) {
	candidate, err := c.resolveCandidate(ctx, group, members, "", candidateID, false)
	if err != nil {
		return "", err
	}

	if group.Master != nil {
		for _, b := range members {
			if b.UUID == *group.Master {
				if issues, _ := c.drv.CheckMasterIssues(ctx, b.Address); len(issues) == 0 {
					log.WithField("backend", b.UUID).Warn("ha: stale master still reachable during failover, data loss may occur")
				}
			}
		}
	}
	group.Master = nil

	if err := c.drv.StartSlave(ctx, candidate.Address, true); err != nil {
		log.WithField("backend", candidate.UUID).WithError(err).Warn("ha: candidate relay-log catch up reported an issue, proceeding")
	}

	return c.cutover(ctx, group, members, candidate, creds)
}

// cutover promotes candidate to master, switches every other member to
// replicate from it, and emits SERVER_PROMOTED so fanout reconfigures
// the replication edge.
func (c *Coordinator) cutover(
	ctx context.Context,
	group *topology.Group,
	members []*topology.Backend,
	candidate *topology.Backend,
	creds ReplicationCreds,
) (string, error) {
	if err := c.drv.StopSlave(ctx, candidate.Address, true); err != nil {
		return "", err
	}
	if err := c.drv.ResetSlave(ctx, candidate.Address, false); err != nil {
		return "", err
	}

	candidate.Status = topology.StatusPrimary
	candidate.Mode = topology.ModeReadWrite
	group.Master = strPtr(candidate.UUID)

	for _, b := range members {
		if b.UUID == candidate.UUID {
			continue
		}
		if err := c.drv.SwitchMaster(ctx, b.Address, candidate.Address, creds.User, creds.Passwd); err != nil {
			log.WithField("backend", b.UUID).WithError(err).Warn("ha: non-candidate slave failed to re-point, logged not fatal")
			continue
		}
		b.Status = topology.StatusSecondary
		b.Mode = topology.ModeReadOnly
	}

	c.bus.Publish(events.Event{Kind: events.ServerPromoted, GroupID: group.ID, BackendID: candidate.UUID})
	return candidate.UUID, nil
}

func (c *Coordinator) resolveCandidate(
	ctx context.Context,
	group *topology.Group,
	members []*topology.Backend,
	currentMasterID string,
	candidateID string,
	requireSlaveRunning bool,
) (*topology.Backend, error) {
	if candidateID != "" {
		for _, b := range members {
			if b.UUID == candidateID {
				if err := checkCandidate(ctx, c.drv, b, group, currentMasterID, requireSlaveRunning); err != nil {
					return nil, err
				}
				return b, nil
			}
		}
		return nil, errs.Uuid("ERR-SRV-003", "candidate %s is not a known backend", candidateID)
	}
	return selectCandidate(ctx, c.drv, currentMasterID, members, requireSlaveRunning)
}

// Demote blocks writes, waits remaining slaves to catch up, stops
// replication on every slave, and clears group.master. It does not
// promote anyone; the group enters NO_MASTER.
func (c *Coordinator) Demote(ctx context.Context, groupID string) error {
	group, ok := c.cache.Group(groupID)
	if !ok {
		return errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID)
	}
	if group.Master == nil {
		return errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID)
	}
	members := c.cache.BackendsOfGroup(groupID)

	var master *topology.Backend
	for _, b := range members {
		if b.UUID == *group.Master {
			master = b
			break
		}
	}
	if master == nil {
		return errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID)
	}

	oldMasterID := master.UUID
	master.Status = topology.StatusSecondary
	master.Mode = topology.ModeReadOnly
	group.Master = nil

	masterGtid, err := c.drv.GetGtidStatus(ctx, master.Address)
	if err != nil {
		return err
	}
	for _, b := range members {
		if b.UUID == master.UUID {
			continue
		}
		if _, err := c.drv.WaitForGtid(ctx, b.Address, masterGtid, defaultCatchupTimeout); err != nil {
			log.WithField("backend", b.UUID).WithError(err).Warn("ha: slave failed to catch up before demote, continuing")
		}
		if err := c.drv.StopSlave(ctx, b.Address, true); err != nil {
			log.WithField("backend", b.UUID).WithError(err).Warn("ha: failed to stop slave during demote, continuing")
		}
		b.Mode = topology.ModeReadOnly
	}

	c.bus.Publish(events.Event{Kind: events.ServerDemoted, GroupID: group.ID, BackendID: oldMasterID})
	return nil
}

func strPtr(s string) *string { return &s }
