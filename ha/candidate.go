// Package ha implements the replication-group HA state machine:
// promote (switchover and failover), demote, and the exact
// candidate-selection tie-break rules. Grounded on the teacher's
// failover decision helpers (cluster/test_failover_assync_norplchecks.go's
// swallow-vs-fatal error split) generalized from the teacher's
// package-global cluster into an explicit, dependency-injected type.
package ha

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/fabrikd/fabrikd/replication"
	"github.com/fabrikd/fabrikd/topology"
)

// selectCandidate picks the best promotion candidate among group
// members, excluding current master, per the exact tie-break rules:
// no master-issues, no slave-issues, replicating from the current
// master when requireSlaveRunning is true, largest executed-gtid set,
// ties broken by smallest diff behind the running best-so-far.
func selectCandidate(
	ctx context.Context,
	drv replication.Driver,
	currentMasterID string,
	members []*topology.Backend,
	requireSlaveRunning bool,
) (*topology.Backend, error) {
	var best *topology.Backend
	var bestStatus replication.GtidSet

	for _, b := range members {
		if b.UUID == currentMasterID || b.Status == topology.StatusFaulty {
			continue
		}

		if issues, err := drv.CheckMasterIssues(ctx, b.Address); err != nil {
			return nil, err
		} else if len(issues) > 0 {
			log.WithField("backend", b.UUID).WithField("issues", issues).Debug("ha: candidate has master issues, skipping")
			continue
		}
		if issues, err := drv.CheckSlaveIssues(ctx, b.Address); err != nil {
			return nil, err
		} else if len(issues) > 0 {
			log.WithField("backend", b.UUID).WithField("issues", issues).Debug("ha: candidate has slave issues, skipping")
			continue
		}
		if requireSlaveRunning {
			master, err := drv.SlaveHasMaster(ctx, b.Address)
			if err != nil {
				return nil, err
			}
			if master != currentMasterID {
				continue
			}
		}

		status, err := drv.GetGtidStatus(ctx, b.Address)
		if err != nil {
			return nil, err
		}

		if best == nil {
			best, bestStatus = b, status
			continue
		}
		diff, err := drv.DiffExecuted(ctx, bestStatus, status)
		if err != nil {
			return nil, err
		}
		if diff > 0 {
			best, bestStatus = b, status
		}
	}

	if best == nil {
		return nil, errs.Group("ERR-GRP-003", "no eligible promotion candidate in group")
	}
	return best, nil
}

// checkCandidate rejects an explicitly supplied candidate that is
// already master, belongs to a different group, is FAULTY, has
// master/slave issues, or (when requireSlaveRunning) does not
// replicate from the current master.
func checkCandidate(
	ctx context.Context,
	drv replication.Driver,
	candidate *topology.Backend,
	group *topology.Group,
	currentMasterID string,
	requireSlaveRunning bool,
) error {
	if candidate.UUID == currentMasterID {
		return errs.Group("ERR-GRP-005", errs.Msg("ERR-GRP-005"), candidate.UUID, group.ID)
	}
	if candidate.GroupID == nil || *candidate.GroupID != group.ID {
		return errs.Group("ERR-GRP-004", errs.Msg("ERR-GRP-004"), candidate.UUID)
	}
	if candidate.Status == topology.StatusFaulty {
		return errs.Group("ERR-GRP-003", "candidate %s is faulty", candidate.UUID)
	}
	if issues, err := drv.CheckMasterIssues(ctx, candidate.Address); err != nil {
		return err
	} else if len(issues) > 0 {
		return errs.Group("ERR-GRP-004", "candidate %s has master issues: %v", candidate.UUID, issues)
	}
	if issues, err := drv.CheckSlaveIssues(ctx, candidate.Address); err != nil {
		return err
	} else if len(issues) > 0 {
		return errs.Group("ERR-GRP-004", "candidate %s has slave issues: %v", candidate.UUID, issues)
	}
	if requireSlaveRunning {
		master, err := drv.SlaveHasMaster(ctx, candidate.Address)
		if err != nil {
			return err
		}
		if master != currentMasterID {
			return errs.Group("ERR-GRP-004", "candidate %s is not replicating from the current master", candidate.UUID)
		}
	}
	return nil
}
