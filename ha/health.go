package ha

import (
	"context"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/fabrikd/fabrikd/topology"
)

// BackendHealth is one member's observed replication health, the read
// model group.health exposes per spec.md §6's operation surface.
type BackendHealth struct {
	UUID         string
	Address      string
	Status       topology.BackendStatus
	Mode         topology.BackendMode
	IsMaster     bool
	MasterIssues []string
	SlaveIssues  []string
}

// GroupHealth bundles a group's own status with every member's
// observed health.
type GroupHealth struct {
	GroupID string
	Status  topology.GroupStatus
	Master  string
	Members []BackendHealth
}

// Health runs group.health: a read-only replication health check of
// every member, the master checked for write-path issues and every
// other member checked for replication lag/stopped threads, the same
// checks Promote/candidate selection already run individually.
func (c *Coordinator) Health(ctx context.Context, groupID string) (*GroupHealth, error) {
	group, ok := c.cache.Group(groupID)
	if !ok {
		return nil, errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID)
	}
	members := c.cache.BackendsOfGroup(groupID)

	out := &GroupHealth{GroupID: groupID, Status: group.Status}
	if group.Master != nil {
		out.Master = *group.Master
	}
	for _, b := range members {
		bh := BackendHealth{UUID: b.UUID, Address: b.Address, Status: b.Status, Mode: b.Mode}
		if group.Master != nil && b.UUID == *group.Master {
			bh.IsMaster = true
			bh.MasterIssues, _ = c.drv.CheckMasterIssues(ctx, b.Address)
		} else {
			bh.SlaveIssues, _ = c.drv.CheckSlaveIssues(ctx, b.Address)
		}
		out.Members = append(out.Members, bh)
	}
	return out, nil
}
