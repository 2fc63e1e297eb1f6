// Package fanout maintains the global fan-out relation: every ENABLED
// shard's hosting group replicates from its mapping's global group
// master. It subscribes to the HA state machine's domain events and
// repoints the affected shard groups after HA cutover. Sharding
// move/split cutover does not go through this package: sharding.Engine
// repoints the groups it moves or splits with its own helper.
package fanout

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/fabrikd/fabrikd/events"
	"github.com/fabrikd/fabrikd/replication"
	"github.com/fabrikd/fabrikd/topology"
)

// Fanout owns no state of its own beyond what topology.Cache already
// tracks; it only issues replication commands to keep the hosting
// groups pointed at the right master.
type Fanout struct {
	cache *topology.Cache
	drv   replication.Driver
}

func New(cache *topology.Cache, drv replication.Driver) *Fanout {
	return &Fanout{cache: cache, drv: drv}
}

// ReplicationCreds mirrors ha.ReplicationCreds; kept local so fanout
// does not need to import ha for a two-field struct.
type ReplicationCreds struct {
	User   string
	Passwd string
}

// Reconfigure repoints a single hosting group to replicate from
// newMasterID. newMasterID == nil stops replication on that group's
// master instead of repointing it. Sharding's move/split cutover does
// not call it.
func (f *Fanout) Reconfigure(ctx context.Context, groupID string, newMasterID *string, creds ReplicationCreds) error {
	return f.reconfigureSingleGroup(ctx, groupID, newMasterID, creds)
}

// onGroupMasterChanged is the SERVER_PROMOTED/SERVER_DEMOTED handler.
// ha.Coordinator already repoints the promoted/demoted group's own
// members as part of cutover/Demote; this has work to do in two cases:
// the affected group is the global group of a sharding mapping, in
// which case every ENABLED shard group must follow the new global
// master; or the affected group is itself shard-hosting, in which case
// its own newly promoted master must be repointed at its mapping's
// current global master so it keeps receiving global fan-out.
func (f *Fanout) onGroupMasterChanged(ctx context.Context, groupID string, newMasterID *string, creds ReplicationCreds) error {
	if mapID := f.cache.GroupIsGlobalOfMapping(groupID); mapID != nil {
		return f.reconfigureShardsOfMapping(ctx, *mapID, newMasterID, creds)
	}
	if newMasterID == nil {
		// demote leaves the group masterless; there is nothing to
		// repoint at the global master until it is promoted again.
		return nil
	}
	return f.reconfigureOwnShardGroup(ctx, groupID, creds)
}

// reconfigureOwnShardGroup handles a promotion on a group that is
// itself hosting an ENABLED shard: it looks up the shard's mapping,
// that mapping's global group, and repoints groupID's (already
// promoted) own master to replicate from the global group's current
// master.
func (f *Fanout) reconfigureOwnShardGroup(ctx context.Context, groupID string, creds ReplicationCreds) error {
	shard, ok := f.cache.ShardHostingGroup(groupID)
	if !ok || shard.State != topology.ShardEnabled {
		return nil
	}
	mapping, ok := f.cache.Mapping(shard.MapID)
	if !ok {
		return nil
	}
	globalGroup, ok := f.cache.Group(mapping.GlobalGroupID)
	if !ok || globalGroup.Master == nil {
		return nil
	}
	return f.reconfigureSingleGroup(ctx, groupID, globalGroup.Master, creds)
}

func (f *Fanout) reconfigureShardsOfMapping(ctx context.Context, mapID int64, newMasterID *string, creds ReplicationCreds) error {
	for _, shard := range f.cache.ShardsOfMapping(mapID) {
		if shard.State != topology.ShardEnabled {
			continue
		}
		if err := f.reconfigureSingleGroup(ctx, shard.GroupID, newMasterID, creds); err != nil {
			log.WithField("group", shard.GroupID).WithError(err).Warn("fanout: failed to reconfigure shard group, continuing")
		}
	}
	return nil
}

func (f *Fanout) reconfigureSingleGroup(ctx context.Context, groupID string, newMasterID *string, creds ReplicationCreds) error {
	group, ok := f.cache.Group(groupID)
	if !ok || group.Master == nil {
		return nil
	}
	localMaster, ok := f.cache.Backend(*group.Master)
	if !ok {
		return nil
	}

	if newMasterID == nil {
		return f.drv.StopSlave(ctx, localMaster.Address, false)
	}
	newMaster, ok := f.cache.Backend(*newMasterID)
	if !ok {
		return nil
	}
	return f.drv.SwitchMaster(ctx, localMaster.Address, newMaster.Address, creds.User, creds.Passwd)
}

// Subscribe wires the group-master-changed handler to the HA state
// machine's domain events.
func (f *Fanout) Subscribe(bus *events.Bus, creds ReplicationCreds) {
	bus.Subscribe(events.ServerPromoted, func(e events.Event) {
		newMaster := e.BackendID
		if err := f.onGroupMasterChanged(context.Background(), e.GroupID, &newMaster, creds); err != nil {
			log.WithField("group", e.GroupID).WithError(err).Warn("fanout: reconfigure after promote failed")
		}
	})
	bus.Subscribe(events.ServerDemoted, func(e events.Event) {
		if err := f.onGroupMasterChanged(context.Background(), e.GroupID, nil, creds); err != nil {
			log.WithField("group", e.GroupID).WithError(err).Warn("fanout: reconfigure after demote failed")
		}
	})
}
