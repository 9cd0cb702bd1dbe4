package session

import (
	"github.com/asheshgoplani/pshaw/internal/statedb"
)

// Journal records attachment history for the sessions of one base directory.
// *statedb.Sessions implements it.
// Every call is best effort: the controller logs failures and moves on.
type Journal interface {
	RecordCreate(label, shell string) error
	RecordAttach(label, shell string, pid int) error
	RecordDetach(label string, exitCode int) error
	RecordLogError(label string) error
	Get(label string) (*statedb.SessionRow, error)
	Reconcile(onDisk []statedb.DiskSession) (added, removed int, err error)
}

var _ Journal = (*statedb.Sessions)(nil)
