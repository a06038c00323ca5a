package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"go.uber.org/zap"
)

// Service runs read and sync operations against local repositories with
// go-git, without an external git binary.
type Service struct {
	logger *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	return &Service{
		logger: logger,
	}
}

// Status lists changed and untracked paths of the working tree, sorted by
// path.
func (s *Service) Status(_ context.Context, repoPath string) ([]StatusEntry, error) {
	repo, err := s.open(repoPath)
	if err != nil {
		return nil, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	status, err := worktree.Status()
	if err != nil {
		s.logger.Error("failed to compute status", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	entries := make([]StatusEntry, 0, len(status))
	for path, fs := range status {
		code := byte(fs.Staging)
		if fs.Staging == git.Unmodified || fs.Staging == git.Untracked {
			code = byte(fs.Worktree)
		}
		if code == byte(git.Unmodified) {
			continue
		}
		entries = append(entries, StatusEntry{Path: path, Code: code})
	}

	slices.SortFunc(entries, func(a, b StatusEntry) int { return strings.Compare(a.Path, b.Path) })

	return entries, nil
}

// Branches retrieves all local branches, sorted by name.
func (s *Service) Branches(_ context.Context, repoPath string) ([]BranchInfo, error) {
	repo, err := s.open(repoPath)
	if err != nil {
		return nil, err
	}

	branches, err := repo.Branches()
	if err != nil {
		s.logger.Error("failed to get branches", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	head, headErr := repo.Head()

	var infos []BranchInfo
	err = branches.ForEach(func(ref *plumbing.Reference) error {
		infos = append(infos, BranchInfo{
			Name:    ref.Name().Short(),
			Current: headErr == nil && head.Name() == ref.Name(),
			Hash:    ref.Hash().String(),
		})
		return nil
	})
	if err != nil {
		s.logger.Error("failed to iterate branches", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	slices.SortFunc(infos, func(a, b BranchInfo) int { return strings.Compare(a.Name, b.Name) })

	return infos, nil
}

// Tags retrieves all tags, resolving annotated tags to their commit.
func (s *Service) Tags(_ context.Context, repoPath string) ([]TagInfo, error) {
	repo, err := s.open(repoPath)
	if err != nil {
		return nil, err
	}

	tags, err := repo.Tags()
	if err != nil {
		s.logger.Error("failed to get tags", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	var infos []TagInfo
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		tagName := ref.Name().Short()

		var commit *object.Commit
		var tagTime time.Time

		obj, tagErr := repo.TagObject(ref.Hash())
		if tagErr == nil {
			commit, tagErr = obj.Commit()
			if tagErr != nil {
				s.logger.Warn("failed to get commit for annotated tag",
					zap.String("tag", tagName), zap.Error(tagErr))
				return nil
			}
			tagTime = obj.Tagger.When
		} else {
			commit, tagErr = repo.CommitObject(ref.Hash())
			if tagErr != nil {
				s.logger.Warn("failed to get commit for lightweight tag",
					zap.String("tag", tagName), zap.Error(tagErr))
				return nil
			}
			tagTime = commit.Author.When
		}

		infos = append(infos, TagInfo{
			Name: tagName,
			Hash: commit.Hash.String(),
			Date: tagTime,
		})
		return nil
	})
	if err != nil {
		s.logger.Error("failed to iterate tags", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	slices.SortFunc(infos, func(a, b TagInfo) int { return strings.Compare(a.Name, b.Name) })

	return infos, nil
}

// Tip returns the commit HEAD points at.
func (s *Service) Tip(_ context.Context, repoPath string) (CommitInfo, error) {
	repo, err := s.open(repoPath)
	if err != nil {
		return CommitInfo{}, err
	}

	commit, err := headCommit(repo)
	if err != nil {
		return CommitInfo{}, err
	}

	return commitInfo(commit), nil
}

// Log walks history from HEAD, newest first, calling fn for each commit.
// A limit of zero walks the whole history.
func (s *Service) Log(ctx context.Context, repoPath string, limit int, fn func(CommitInfo)) error {
	repo, err := s.open(repoPath)
	if err != nil {
		return err
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}
	defer iter.Close()

	count := 0
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrOperationCancelled, ctx.Err())
		}
		if limit > 0 && count >= limit {
			return nil
		}

		commit, err := iter.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRepository, err)
		}

		fn(commitInfo(commit))
		count++
	}
}

// Cat returns the content of filePath as committed at HEAD.
func (s *Service) Cat(_ context.Context, repoPath, filePath string) (string, error) {
	repo, err := s.open(repoPath)
	if err != nil {
		return "", err
	}

	commit, err := headCommit(repo)
	if err != nil {
		return "", err
	}

	file, err := commit.File(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFileNotFound, filePath, err)
	}

	content, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFileNotFound, filePath, err)
	}

	return content, nil
}

// Pull pulls the latest changes for the specified branch from origin.
func (s *Service) Pull(ctx context.Context, repoPath, branch string, progress io.Writer) error {
	s.logger.Info("pulling repository",
		zap.String("path", repoPath),
		zap.String("branch", branch))

	repo, err := s.open(repoPath)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	pullOptions := &git.PullOptions{
		RemoteName: "origin",
		Progress:   progress,
	}

	if branch != "" {
		pullOptions.ReferenceName = plumbing.NewBranchReferenceName(branch)
		pullOptions.SingleBranch = true
	}

	err = worktree.PullContext(ctx, pullOptions)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		s.logger.Error("failed to pull repository", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPullFailed, err)
	}

	s.logger.Info("repository pulled successfully",
		zap.String("path", repoPath))

	return nil
}

// Clone clones a repository to the specified directory.
func (s *Service) Clone(ctx context.Context, req CloneRequest, progress io.Writer) error {
	s.logger.Info("cloning repository",
		zap.String("url", req.URL),
		zap.String("directory", req.Directory),
		zap.String("branch", req.Branch))

	cloneOptions := &git.CloneOptions{
		URL:      req.URL,
		Progress: progress,
	}

	if req.Branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
		cloneOptions.SingleBranch = true
	}

	if _, statErr := os.Stat(req.Directory); statErr == nil {
		return fmt.Errorf("%w: directory %s already exists", ErrRepositoryAlreadyExists, req.Directory)
	}

	if _, err := git.PlainCloneContext(ctx, req.Directory, cloneOptions); err != nil {
		s.logger.Error("failed to clone repository", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrCloneFailed, err)
	}

	s.logger.Info("repository cloned successfully",
		zap.String("url", req.URL),
		zap.String("directory", req.Directory))

	return nil
}

func (s *Service) open(repoPath string) (*git.Repository, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		s.logger.Debug("failed to open repository", zap.String("path", repoPath), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrRepositoryNotFound, err)
	}

	return repo, nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrEmptyRepository
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	return commit, nil
}

func commitInfo(c *object.Commit) CommitInfo {
	summary, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")

	return CommitInfo{
		Hash:    c.Hash.String(),
		Author:  fmt.Sprintf("%s <%s>", c.Author.Name, c.Author.Email),
		Date:    c.Author.When,
		Summary: summary,
	}
}
