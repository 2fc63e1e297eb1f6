package ha

import (
	"context"

	"github.com/fabrikd/fabrikd/store"
	"github.com/fabrikd/fabrikd/topology"
)

// PersistGroupState writes groupID's current in-memory state (its
// master and every member's status/mode) back to the state store.
// Promote/Demote/ReconcileReadOnly mutate the topology.Cache directly;
// their callers run PersistGroupState right after them inside the same
// procedure step, so these writes commit in that step's transaction.
func PersistGroupState(ctx context.Context, tx *store.Tx, cache *topology.Cache, groupID string) error {
	group, ok := cache.Group(groupID)
	if !ok {
		return nil
	}
	if _, err := tx.Exec(ctx, "UPDATE groups SET master_uuid = ? WHERE id = ?", group.Master, groupID); err != nil {
		return err
	}
	for _, b := range cache.BackendsOfGroup(groupID) {
		if _, err := tx.Exec(ctx,
			"UPDATE backends SET status = ?, mode = ?, read_only = ? WHERE uuid = ?",
			string(b.Status), string(b.Mode), b.ReadOnly, b.UUID); err != nil {
			return err
		}
	}
	return nil
}
