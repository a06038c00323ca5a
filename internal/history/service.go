package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/repoagent/repoagent/internal/cmdcore"
	"github.com/repoagent/repoagent/internal/repo"
	"go.uber.org/zap"
)

type Service struct {
	records *Repository
	cfg     Config
	logger  *zap.Logger
}

func NewService(records *Repository, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		records: records,
		cfg:     cfg,
		logger:  logger,
	}
}

// RecordSession journals a finished session of the repository at root.
func (s *Service) RecordSession(ctx context.Context, root string, sess *cmdcore.Session) error {
	lines := sess.CommandLines()
	cmds := make([][]string, len(lines))
	for i, l := range lines {
		cmds[i] = []string(l)
	}

	record := Record{
		ID:           sess.ID(),
		Root:         root,
		Label:        sess.Label(),
		CommandLines: cmds,
		ExitCode:     sess.ExitCode(),
		Aborted:      sess.IsAborted(),
		Error:        sess.ErrorString(),
		Warning:      sess.WarningString(),
		StartedAt:    sess.StartedAt(),
		FinishedAt:   sess.FinishedAt(),
	}

	if err := s.records.Create(ctx, record); err != nil {
		return err
	}

	return s.prune(ctx, root)
}

func (s *Service) prune(ctx context.Context, root string) error {
	if s.cfg.MaxPerRepository <= 0 {
		return nil
	}

	records, err := s.records.ListByRoot(ctx, root, 0)
	if err != nil {
		return err
	}

	if len(records) <= s.cfg.MaxPerRepository {
		return nil
	}

	for _, r := range records[s.cfg.MaxPerRepository:] {
		if delErr := s.records.Delete(ctx, r.ID); delErr != nil {
			return delErr
		}
	}

	s.logger.Debug("pruned history",
		zap.String("root", root),
		zap.Int("removed", len(records)-s.cfg.MaxPerRepository))

	return nil
}

// List returns the newest records of the repository containing path. A
// limit of zero returns all of them.
func (s *Service) List(ctx context.Context, path string, limit int) ([]Record, error) {
	root, err := repo.FindRoot(path)
	if err != nil {
		// Deleted repositories still have history.
		root = repo.Key(path)
	}

	return s.records.ListByRoot(ctx, root, limit)
}

// Get returns the record with the given textual ID.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrInvalidID, err)
	}

	return s.records.Get(ctx, parsed)
}
