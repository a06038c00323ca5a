package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"go.uber.org/zap/zaptest"
)

func initRepo(t *testing.T, commits ...string) (string, *git.Repository) {
	t.Helper()

	repoPath := t.TempDir()
	repo, err := git.PlainInit(repoPath, false)
	if err != nil {
		t.Fatal(err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	for i, msg := range commits {
		name := filepath.Join(repoPath, "test.txt")
		if err := os.WriteFile(name, []byte(msg), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := worktree.Add("test.txt"); err != nil {
			t.Fatal(err)
		}
		_, err = worktree.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{
				Name:  "Test Author",
				Email: "test@example.com",
				When:  time.Now().Add(time.Duration(i) * time.Second),
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	return repoPath, repo
}

func TestService_StatusEmptyRepository(t *testing.T) {
	repoPath, _ := initRepo(t)
	service := NewService(zaptest.NewLogger(t))

	entries, err := service.Status(context.Background(), repoPath)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected clean status, got %v", entries)
	}
}

func TestService_StatusReportsChanges(t *testing.T) {
	repoPath, _ := initRepo(t, "initial commit")
	service := NewService(zaptest.NewLogger(t))

	if err := os.WriteFile(filepath.Join(repoPath, "test.txt"), []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repoPath, "new.txt"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := service.Status(context.Background(), repoPath)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	want := []StatusEntry{{Path: "new.txt", Code: '?'}, {Path: "test.txt", Code: 'M'}}
	if len(entries) != len(want) {
		t.Fatalf("Expected %v, got %v", want, entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("Expected %v at %d, got %v", want[i], i, entries[i])
		}
	}
}

func TestService_Branches(t *testing.T) {
	repoPath, repo := initRepo(t, "initial commit")
	service := NewService(zaptest.NewLogger(t))

	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	err = worktree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("feature-1"),
		Create: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	branches, err := service.Branches(context.Background(), repoPath)
	if err != nil {
		t.Fatalf("Branches failed: %v", err)
	}

	if len(branches) != 2 {
		t.Fatalf("Expected 2 branches, got %d", len(branches))
	}
	if branches[0].Name != "feature-1" || !branches[0].Current {
		t.Errorf("Expected current branch feature-1 first, got %+v", branches[0])
	}
	if branches[1].Name != "master" || branches[1].Current {
		t.Errorf("Expected non-current master second, got %+v", branches[1])
	}
}

func TestService_Tags(t *testing.T) {
	repoPath, repo := initRepo(t, "initial commit")
	service := NewService(zaptest.NewLogger(t))

	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateTag("v1.0.0", head.Hash(), nil); err != nil {
		t.Fatal(err)
	}

	tags, err := service.Tags(context.Background(), repoPath)
	if err != nil {
		t.Fatalf("Tags failed: %v", err)
	}

	if len(tags) != 1 || tags[0].Name != "v1.0.0" || tags[0].Hash != head.Hash().String() {
		t.Errorf("Unexpected tags: %+v", tags)
	}
}

func TestService_TipAndLog(t *testing.T) {
	repoPath, _ := initRepo(t, "first", "second", "third")
	service := NewService(zaptest.NewLogger(t))

	tip, err := service.Tip(context.Background(), repoPath)
	if err != nil {
		t.Fatalf("Tip failed: %v", err)
	}
	if tip.Summary != "third" {
		t.Errorf("Expected tip summary 'third', got %q", tip.Summary)
	}

	var summaries []string
	err = service.Log(context.Background(), repoPath, 2, func(c CommitInfo) {
		summaries = append(summaries, c.Summary)
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(summaries) != 2 || summaries[0] != "third" || summaries[1] != "second" {
		t.Errorf("Unexpected log: %v", summaries)
	}
}

func TestService_TipEmptyRepository(t *testing.T) {
	repoPath, _ := initRepo(t)
	service := NewService(zaptest.NewLogger(t))

	if _, err := service.Tip(context.Background(), repoPath); !errors.Is(err, ErrEmptyRepository) {
		t.Errorf("Expected ErrEmptyRepository, got %v", err)
	}

	calls := 0
	if err := service.Log(context.Background(), repoPath, 0, func(CommitInfo) { calls++ }); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no commits, got %d", calls)
	}
}

func TestService_LogCancelled(t *testing.T) {
	repoPath, _ := initRepo(t, "first")
	service := NewService(zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := service.Log(ctx, repoPath, 0, func(CommitInfo) {})
	if !errors.Is(err, ErrOperationCancelled) {
		t.Errorf("Expected ErrOperationCancelled, got %v", err)
	}
}

func TestService_Cat(t *testing.T) {
	repoPath, _ := initRepo(t, "committed content")
	service := NewService(zaptest.NewLogger(t))

	if err := os.WriteFile(filepath.Join(repoPath, "test.txt"), []byte("dirty"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, err := service.Cat(context.Background(), repoPath, "test.txt")
	if err != nil {
		t.Fatalf("Cat failed: %v", err)
	}
	if content != "committed content" {
		t.Errorf("Expected committed content, got %q", content)
	}

	if _, err := service.Cat(context.Background(), repoPath, "missing.txt"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound, got %v", err)
	}
}

func TestService_CloneAndPull(t *testing.T) {
	source, _ := initRepo(t, "initial commit")
	service := NewService(zaptest.NewLogger(t))

	dest := filepath.Join(t.TempDir(), "clone")
	if err := service.Clone(context.Background(), CloneRequest{URL: source, Directory: dest}, nil); err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	if err := service.Pull(context.Background(), dest, "", nil); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	err := service.Clone(context.Background(), CloneRequest{URL: source, Directory: dest}, nil)
	if !errors.Is(err, ErrRepositoryAlreadyExists) {
		t.Errorf("Expected ErrRepositoryAlreadyExists, got %v", err)
	}
}

func TestService_NotARepository(t *testing.T) {
	service := NewService(zaptest.NewLogger(t))

	if _, err := service.Status(context.Background(), t.TempDir()); !errors.Is(err, ErrRepositoryNotFound) {
		t.Errorf("Expected ErrRepositoryNotFound, got %v", err)
	}
}
