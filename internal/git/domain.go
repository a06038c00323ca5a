package git

import (
	"time"
)

// CloneRequest represents the request to clone a repository.
type CloneRequest struct {
	URL       string // Git repository URL
	Branch    string // Branch to clone (optional, defaults to default branch)
	Directory string // Directory to clone into
}

// StatusEntry is one changed or untracked path of the working tree.
type StatusEntry struct {
	Path string
	Code byte // M, A, D, R, C, U or ?
}

// BranchInfo represents information about a Git branch.
type BranchInfo struct {
	Name    string // Branch name
	Current bool   // Whether HEAD points at this branch
	Hash    string // Latest commit hash on this branch
}

// TagInfo represents information about a Git tag.
type TagInfo struct {
	Name string    // Tag name
	Hash string    // Commit hash the tag points to
	Date time.Time // Tag creation date
}

// CommitInfo summarizes a commit for log-style output.
type CommitInfo struct {
	Hash    string
	Author  string
	Date    time.Time
	Summary string
}
