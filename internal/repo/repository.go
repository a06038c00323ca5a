package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
)

type Kind string

const (
	KindHg  Kind = "hg"
	KindGit Kind = "git"
)

// Repository is a read-only view of a repository's on-disk layout. It never
// parses repository internals beyond parent and branch markers. Values are
// immutable; overlay and hidden views are derived copies.
type Repository struct {
	root   string
	meta   string
	layout layout

	overlay string
	hidden  bool

	watchedFiles []string
	userConfigs  []string
}

type Option func(*Repository)

// WithWatchedFiles adds extension files, relative to the metadata
// directory, whose modification marks the repository as changed.
func WithWatchedFiles(files ...string) Option {
	return func(r *Repository) {
		r.watchedFiles = append(r.watchedFiles, files...)
	}
}

// WithUserConfigs adds configuration files read by the external tool
// outside the repository.
func WithUserConfigs(files ...string) Option {
	return func(r *Repository) {
		r.userConfigs = append(r.userConfigs, files...)
	}
}

// Open detects the layout of the repository rooted at root.
func Open(root string, opts ...Option) (*Repository, error) {
	r := &Repository{root: root}

	switch {
	case isDir(filepath.Join(root, ".hg")):
		r.meta = filepath.Join(root, ".hg")
		r.layout = hgLayout{}
	case isDir(filepath.Join(root, ".git")):
		r.meta = filepath.Join(root, ".git")
		r.layout = gitLayout{}
	case isFile(filepath.Join(root, ".git")):
		meta, err := readGitdirFile(root)
		if err != nil {
			return nil, err
		}
		r.meta = meta
		r.layout = gitLayout{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, root)
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Canonicalize returns the absolute, symlink-free form of path used to key
// repositories.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRepositoryNotFound, err)
	}

	return filepath.Clean(resolved), nil
}

// Key is the registry key for path: its canonical form, or its cleaned
// absolute form when the path no longer exists.
func Key(path string) string {
	if root, err := Canonicalize(path); err == nil {
		return root
	}
	if abs, err := filepath.Abs(path); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(path)
}

// FindRoot returns the canonical root of the repository containing path,
// checking path itself and then each of its parents.
func FindRoot(path string) (string, error) {
	dir, err := Canonicalize(path)
	if err != nil {
		return "", err
	}

	for {
		if hasLayout(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: %s", ErrRepositoryNotFound, path)
		}
		dir = parent
	}
}

func hasLayout(dir string) bool {
	dotGit := filepath.Join(dir, ".git")
	return isDir(filepath.Join(dir, ".hg")) || isDir(dotGit) || isFile(dotGit)
}

func (r *Repository) Kind() Kind { return r.layout.kind() }

// Root is the working directory root.
func (r *Repository) Root() string { return r.root }

// MetaDir is the repository metadata directory (.hg or the git dir).
func (r *Repository) MetaDir() string { return r.meta }

// Overlay returns the overlay target, empty for the base view.
func (r *Repository) Overlay() string { return r.overlay }

func (r *Repository) IsOverlay() bool { return r.overlay != "" }

func (r *Repository) HiddenIncluded() bool { return r.hidden }

// WithOverlay returns a view of the same repository that targets url.
// An empty url returns the base view.
func (r *Repository) WithOverlay(url string) *Repository {
	c := *r
	c.overlay = url
	return &c
}

// WithHidden returns a view with hidden content included or excluded.
func (r *Repository) WithHidden(included bool) *Repository {
	c := *r
	c.hidden = included
	return &c
}

// LockFiles are held while the external tool mutates the repository.
func (r *Repository) LockFiles() []string {
	return r.join(r.layout.lockFiles())
}

func (r *Repository) DirstateFile() string {
	return filepath.Join(r.meta, r.layout.dirstateFile())
}

func (r *Repository) BranchFile() string {
	return filepath.Join(r.meta, r.layout.branchFile())
}

// MetadataFiles are the files whose modification time tracks the
// repository history, including extension watched files.
func (r *Repository) MetadataFiles() []string {
	return lo.Uniq(r.join(append(r.layout.metadataFiles(), r.watchedFiles...)))
}

// ConfigFiles are the repository config plus configured user configs.
func (r *Repository) ConfigFiles() []string {
	files := r.join(r.layout.configFiles())
	return lo.Uniq(append(files, r.userConfigs...))
}

// WatchDirs are the directories a filesystem monitor subscribes to.
func (r *Repository) WatchDirs() []string {
	dirs := append([]string{r.root}, r.join(r.layout.watchDirs())...)
	for _, f := range append(r.MetadataFiles(), r.ConfigFiles()...) {
		dirs = append(dirs, filepath.Dir(f))
	}

	return lo.Filter(lo.Uniq(dirs), func(d string, _ int) bool { return isDir(d) })
}

// ReadParents returns the raw working directory parent identifiers.
func (r *Repository) ReadParents() ([]byte, error) {
	return r.layout.readParents(r)
}

// ReadBranch returns the working branch name.
func (r *Repository) ReadBranch() (string, error) {
	return r.layout.readBranch(r)
}

// GlobalArgs are the flags that make a command line target this view.
func (r *Repository) GlobalArgs() []string {
	return r.layout.globalArgs(r)
}

// Contains reports whether path is a strict descendant of the root.
func (r *Repository) Contains(path string) bool {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (r *Repository) join(rel []string) []string {
	return lo.Map(slices.Clone(rel), func(p string, _ int) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(r.meta, filepath.FromSlash(p))
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func readGitdirFile(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, ".git"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	line := strings.TrimSpace(string(data))
	gitdir, ok := strings.CutPrefix(line, "gitdir:")
	if !ok {
		return "", fmt.Errorf("%w: malformed .git file in %s", ErrInvalidRepository, root)
	}

	gitdir = strings.TrimSpace(gitdir)
	if !filepath.IsAbs(gitdir) {
		gitdir = filepath.Join(root, gitdir)
	}

	return filepath.Clean(gitdir), nil
}
