package ha

import "time"

// defaultCatchupTimeout bounds wait_for_gtid calls issued during
// cutover. Configurable timeouts per spec.md §5 belong to the caller's
// context deadline; this is the fallback when none is set.
const defaultCatchupTimeout = 10 * time.Second
