package replication

import (
	"context"
	"time"
)

// FakeDriver is an in-memory Driver used by ha and sharding tests to
// exercise promote/demote/wait logic without a live MySQL backend.
type FakeDriver struct {
	Gtid          map[string]GtidSet
	MasterIssues  map[string][]string
	SlaveIssues   map[string][]string
	SlaveOfMaster map[string]string
	Switches      []SwitchCall
	Started       []string
	Stopped       []string
	Reset         []string
	WaitOutcome   WaitResult
	WaitErr       error
}

type SwitchCall struct {
	Slave, Master, User, Passwd string
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Gtid:          make(map[string]GtidSet),
		MasterIssues:  make(map[string][]string),
		SlaveIssues:   make(map[string][]string),
		SlaveOfMaster: make(map[string]string),
		WaitOutcome:   WaitOK,
	}
}

func (f *FakeDriver) GetGtidStatus(ctx context.Context, backendDSN string) (GtidSet, error) {
	return f.Gtid[backendDSN], nil
}

func (f *FakeDriver) DiffExecuted(ctx context.Context, a, b GtidSet) (int, error) {
	aSet := parseGtidSet(a.Executed)
	bSet := parseGtidSet(b.Executed)
	missing := 0
	for uuid, bRanges := range bSet {
		aRanges, ok := aSet[uuid]
		if !ok {
			missing += countIntervals(bRanges)
			continue
		}
		missing += countIntervals(subtractIntervals(bRanges, aRanges))
	}
	return missing, nil
}

func (f *FakeDriver) CheckMasterIssues(ctx context.Context, backendDSN string) ([]string, error) {
	return f.MasterIssues[backendDSN], nil
}

func (f *FakeDriver) CheckSlaveIssues(ctx context.Context, backendDSN string) ([]string, error) {
	return f.SlaveIssues[backendDSN], nil
}

func (f *FakeDriver) SlaveHasMaster(ctx context.Context, backendDSN string) (string, error) {
	return f.SlaveOfMaster[backendDSN], nil
}

func (f *FakeDriver) SwitchMaster(ctx context.Context, slaveDSN, masterDSN, replUser, replPasswd string) error {
	f.Switches = append(f.Switches, SwitchCall{slaveDSN, masterDSN, replUser, replPasswd})
	f.SlaveOfMaster[slaveDSN] = masterDSN
	return nil
}

func (f *FakeDriver) StartSlave(ctx context.Context, backendDSN string, wait bool) error {
	f.Started = append(f.Started, backendDSN)
	return nil
}

func (f *FakeDriver) StopSlave(ctx context.Context, backendDSN string, wait bool) error {
	f.Stopped = append(f.Stopped, backendDSN)
	return nil
}

func (f *FakeDriver) ResetSlave(ctx context.Context, backendDSN string, clean bool) error {
	f.Reset = append(f.Reset, backendDSN)
	return nil
}

func (f *FakeDriver) WaitForGtid(ctx context.Context, slaveDSN string, target GtidSet, timeout time.Duration) (WaitResult, error) {
	return f.WaitOutcome, f.WaitErr
}
