package txn

import "fmt"

// State of a Transaction. Every state except Open is terminal.
type State int32

const (
	StateOpen State = iota
	StateCommitted
	StateRolledBack
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateCommitted:
		return "Committed"
	case StateRolledBack:
		return "RolledBack"
	case StateCancelled:
		return "Cancelled"
	}

	return fmt.Sprintf("State(%d)", int32(s))
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s != StateOpen
}

// AccessMode is the caller's read/write intent. Write is the zero value.
type AccessMode int

const (
	AccessModeWrite AccessMode = iota
	AccessModeRead
)

func (m AccessMode) String() string {
	if m == AccessModeRead {
		return "read"
	}

	return "write"
}

// TransportKind names the transport an Adapter speaks.
type TransportKind string

const (
	TransportSession  TransportKind = "session"
	TransportResource TransportKind = "resource"
)
