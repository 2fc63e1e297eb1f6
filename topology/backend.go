package topology

import "github.com/google/uuid"

// NewBackendID mints a fresh self-reported backend identity. Real
// backends self-report their uuid on registration; this helper backs
// the add-backend flow's fallback path and tests.
func NewBackendID() string {
	return uuid.NewString()
}

// NewBackend builds a Backend in the state a freshly-added, not yet
// probed server starts in: SPARE/OFFLINE until the monitor observes it.
func NewBackend(addr, user, passwd string) *Backend {
	return &Backend{
		UUID:    NewBackendID(),
		Address: addr,
		User:    user,
		Passwd:  passwd,
		Status:  StatusSpare,
		Mode:    ModeOffline,
		Weight:  1.0,
	}
}
