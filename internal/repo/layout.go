package repo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
)

type layout interface {
	kind() Kind
	lockFiles() []string
	dirstateFile() string
	branchFile() string
	metadataFiles() []string
	configFiles() []string
	watchDirs() []string
	readParents(r *Repository) ([]byte, error)
	readBranch(r *Repository) (string, error)
	globalArgs(r *Repository) []string
}

const hgParentsSize = 40

type hgLayout struct{}

func (hgLayout) kind() Kind { return KindHg }

func (hgLayout) lockFiles() []string { return []string{"wlock", "store/lock"} }

func (hgLayout) dirstateFile() string { return "dirstate" }

func (hgLayout) branchFile() string { return "branch" }

func (hgLayout) metadataFiles() []string {
	return []string{
		"store/00changelog.i",
		"store/phaseroots",
		"store/obsstore",
		"localtags",
		"bookmarks",
		"bookmarks.current",
	}
}

func (hgLayout) configFiles() []string { return []string{"hgrc"} }

func (hgLayout) watchDirs() []string { return []string{".", "store"} }

// readParents returns the two 20-byte parent node ids stored at the head of
// the dirstate. A missing dirstate reads as no parents.
func (hgLayout) readParents(r *Repository) ([]byte, error) {
	f, err := os.Open(r.DirstateFile())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dirstate: %w", err)
	}
	defer f.Close()

	buf := make([]byte, hgParentsSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read dirstate: %w", err)
	}

	return buf[:n], nil
}

func (hgLayout) readBranch(r *Repository) (string, error) {
	data, err := os.ReadFile(r.BranchFile())
	if errors.Is(err, fs.ErrNotExist) {
		return "default", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read branch: %w", err)
	}

	branch := strings.TrimSpace(string(data))
	if branch == "" {
		return "default", nil
	}
	return branch, nil
}

func (hgLayout) globalArgs(r *Repository) []string {
	target := r.root
	if r.overlay != "" {
		target = r.overlay
	}

	args := []string{"--repository", target}
	if r.hidden {
		args = append(args, "--hidden")
	}
	return args
}

type gitLayout struct{}

func (gitLayout) kind() Kind { return KindGit }

func (gitLayout) lockFiles() []string {
	return []string{"index.lock", "HEAD.lock", "packed-refs.lock"}
}

func (gitLayout) dirstateFile() string { return "index" }

func (gitLayout) branchFile() string { return "HEAD" }

func (gitLayout) metadataFiles() []string {
	return []string{
		"packed-refs",
		"logs/HEAD",
		"FETCH_HEAD",
		"ORIG_HEAD",
		"refs/heads",
		"refs/tags",
		"refs/remotes",
	}
}

func (gitLayout) configFiles() []string { return []string{"config"} }

func (gitLayout) watchDirs() []string {
	return []string{".", "refs/heads", "refs/tags", "logs"}
}

// readParents returns HEAD followed by MERGE_HEAD when a merge is in
// progress. An unborn HEAD reads as no parents.
func (gitLayout) readParents(r *Repository) ([]byte, error) {
	repo, err := openGit(r)
	if err != nil {
		return nil, err
	}

	var parents bytes.Buffer
	head, err := repo.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	default:
		parents.WriteString(head.Hash().String())
	}

	merge, err := os.ReadFile(filepath.Join(r.meta, "MERGE_HEAD"))
	if err == nil {
		parents.Write(bytes.TrimSpace(merge))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read MERGE_HEAD: %w", err)
	}

	return parents.Bytes(), nil
}

func (gitLayout) readBranch(r *Repository) (string, error) {
	repo, err := openGit(r)
	if err != nil {
		return "", err
	}

	ref, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}

	if ref.Type() == plumbing.SymbolicReference {
		return ref.Target().Short(), nil
	}
	return "", nil
}

func (gitLayout) globalArgs(r *Repository) []string {
	if r.overlay != "" {
		return []string{"--git-dir", r.overlay, "--work-tree", r.root}
	}
	return []string{"-C", r.root}
}

func openGit(r *Repository) (*git.Repository, error) {
	repo, err := git.PlainOpen(r.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}
	return repo, nil
}
