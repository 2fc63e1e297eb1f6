package topology

import "github.com/fabrikd/fabrikd/errs"

// CheckGroupInvariants enforces invariants 1-2 of the data model over
// a group and its current backend set: at most one PRIMARY equal to
// group.Master, and mode consistency between the master and the rest.
func CheckGroupInvariants(g *Group, backends []*Backend) error {
	var primaries []*Backend
	for _, b := range backends {
		if b.Status == StatusPrimary {
			primaries = append(primaries, b)
		}
	}
	if len(primaries) > 1 {
		return errs.Group("ERR-GRP-001", "group %s has %d PRIMARY backends, at most one allowed", g.ID, len(primaries))
	}
	if len(primaries) == 1 {
		if g.Master == nil || *g.Master != primaries[0].UUID {
			return errs.Group("ERR-GRP-001", "group %s PRIMARY backend %s does not match group.master", g.ID, primaries[0].UUID)
		}
	}
	if g.Master != nil {
		for _, b := range backends {
			if b.UUID == *g.Master {
				if b.Mode != ModeReadWrite && b.Mode != ModeWriteOnly {
					return errs.Group("ERR-GRP-001", "master %s of group %s must be READ_WRITE or WRITE_ONLY", b.UUID, g.ID)
				}
				continue
			}
			if b.Mode != ModeReadOnly && b.Mode != ModeOffline {
				return errs.Group("ERR-GRP-001", "non-master backend %s of group %s must be READ_ONLY or OFFLINE", b.UUID, g.ID)
			}
		}
	}
	return nil
}

// CanPromote enforces invariant 3: a FAULTY backend may not be promoted.
func CanPromote(b *Backend) error {
	if b.Status == StatusFaulty {
		return errs.Server("ERR-SRV-001", errs.Msg("ERR-SRV-001"), b.UUID)
	}
	return nil
}

// CanMarkFaulty enforces invariant 3's other half: a PRIMARY may not be
// directly marked FAULTY by the admin API.
func CanMarkFaulty(g *Group, b *Backend) error {
	if g.Master != nil && *g.Master == b.UUID {
		return errs.Server("ERR-SRV-002", errs.Msg("ERR-SRV-002"), g.ID)
	}
	return nil
}

// CanRemove enforces invariant 4: removing the PRIMARY of a group is
// forbidden; demote or failover first.
func CanRemove(g *Group, b *Backend) error {
	if g.Master != nil && *g.Master == b.UUID {
		return errs.Group("ERR-GRP-006", errs.Msg("ERR-GRP-006"), g.ID)
	}
	return nil
}

// CanDestroyGroup enforces shard-index invariant 4: a group hosting any
// shard, or used as a global group of any mapping, may not be destroyed.
func CanDestroyGroup(groupID string, hostsShard bool, globalOfMapping *int64) error {
	if hostsShard {
		return errs.Group("ERR-GRP-007", errs.Msg("ERR-GRP-007"), groupID)
	}
	if globalOfMapping != nil {
		return errs.Group("ERR-GRP-008", errs.Msg("ERR-GRP-008"), groupID, *globalOfMapping)
	}
	return nil
}
