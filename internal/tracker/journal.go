package tracker

import (
	"context"
	"time"
)

// JournalTask is the minimal task projection a ledger row discloses.
type JournalTask struct {
	Title       string `json:"title"`
	IsCompleted bool   `json:"isCompleted"`
	TimeSpent   int64  `json:"timeSpent"`
}

// JournalUser is the minimal user projection a ledger row discloses.
type JournalUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// JournalRow is one ledger record shaped for transmission. It deliberately
// carries no record identities.
type JournalRow struct {
	Task      JournalTask `json:"task"`
	User      JournalUser `json:"user"`
	TimeSpent int64       `json:"timeSpent"`
	Date      time.Time   `json:"date"`
}

// ProjectJournal returns the full time-tracking ledger for a project. The
// sequence is deterministic for a fixed data set: the repository orders it
// by entry creation.
func (s *Service) ProjectJournal(ctx context.Context, projectID, actorID int64) ([]JournalRow, error) {
	if err := s.rights.Check(ctx, projectID, actorID, ActionRead, nil); err != nil {
		return nil, err
	}
	if _, err := s.repo.ProjectByID(ctx, projectID); err != nil {
		return nil, err
	}
	rows, err := s.repo.JournalForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []JournalRow{}
	}
	return rows, nil
}
