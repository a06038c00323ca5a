package watcher

import "strings"

// ChangeFlags describes what a poll detected.
type ChangeFlags uint8

const (
	LogChanged ChangeFlags = 1 << iota
	WorkingParentChanged
	WorkingBranchChanged
	WorkingStateChanged
)

// AllChanged is reported when the whole view changed, e.g. after switching
// to an overlay.
const AllChanged = LogChanged | WorkingParentChanged | WorkingBranchChanged | WorkingStateChanged

func (f ChangeFlags) Has(flag ChangeFlags) bool {
	return f&flag == flag
}

func (f ChangeFlags) String() string {
	if f == 0 {
		return "none"
	}

	var parts []string
	for _, item := range []struct {
		flag ChangeFlags
		name string
	}{
		{LogChanged, "log"},
		{WorkingParentChanged, "parent"},
		{WorkingBranchChanged, "branch"},
		{WorkingStateChanged, "state"},
	} {
		if f.Has(item.flag) {
			parts = append(parts, item.name)
		}
	}

	return strings.Join(parts, "|")
}

// Status is the outcome of one poll.
type Status struct {
	Changes       ChangeFlags
	ConfigChanged bool
	Destroyed     bool
	// Locked is set when the poll was skipped because the repository is
	// being written.
	Locked bool
}

func (s Status) IsZero() bool {
	return s == Status{}
}
