package history

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

const (
	prefix = "history:"

	prefixByID   = prefix + "id:"
	prefixByRepo = prefix + "repo:"
)

type recordModel struct {
	ID           uuid.UUID  `json:"id"`
	Root         string     `json:"root"`
	Label        string     `json:"label"`
	CommandLines [][]string `json:"command_lines"`
	ExitCode     int        `json:"exit_code"`
	Aborted      bool       `json:"aborted"`
	Error        string     `json:"error,omitempty"`
	Warning      string     `json:"warning,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
}

func newRecordModel(r Record) *recordModel {
	return &recordModel{
		ID:           r.ID,
		Root:         r.Root,
		Label:        r.Label,
		CommandLines: r.CommandLines,
		ExitCode:     r.ExitCode,
		Aborted:      r.Aborted,
		Error:        r.Error,
		Warning:      r.Warning,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}

func (m *recordModel) toDomain() Record {
	return Record{
		ID:           m.ID,
		Root:         m.Root,
		Label:        m.Label,
		CommandLines: m.CommandLines,
		ExitCode:     m.ExitCode,
		Aborted:      m.Aborted,
		Error:        m.Error,
		Warning:      m.Warning,
		StartedAt:    m.StartedAt,
		FinishedAt:   m.FinishedAt,
	}
}

// StorageKey implements badgerfx.Entity.
func (m *recordModel) StorageKey(id ...string) string {
	if len(id) > 0 {
		return prefixByID + id[0]
	}
	return prefixByID + m.ID.String()
}

// StorageIndexes implements badgerfx.Entity. The repository index sorts by
// finish time: `history:repo:<escaped root>:<unix nanos>:<id>`.
func (m *recordModel) StorageIndexes() []string {
	return []string{
		repoPrefix(m.Root) + sortableNanos(m.FinishedAt) + ":" + m.ID.String(),
	}
}

// MarshalStorage implements badgerfx.Entity.
func (m *recordModel) MarshalStorage() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalStorage implements badgerfx.Entity.
func (m *recordModel) UnmarshalStorage(data []byte) error {
	return json.Unmarshal(data, m)
}

// repoPrefix escapes the root so that one root is never a key prefix of
// another.
func repoPrefix(root string) string {
	return prefixByRepo + url.PathEscape(root) + ":"
}

// sortableNanos renders t as fixed-width decimal so that keys sort by time.
func sortableNanos(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}
