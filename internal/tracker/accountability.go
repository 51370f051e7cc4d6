package tracker

import (
	"context"

	"teamtrack/internal/models"
)

// Accountability is the human-readable "who is responsible" view: the
// accountable party plus every project member who could be.
type Accountability struct {
	Assigned string   `json:"assigned"`
	Members  []string `json:"members"`
}

// ResolveAccountability renders the accountable party (the assignee, or the
// author when nobody is assigned) and the parent project's members in their
// stored membership order. A missing parent project is an error, not an
// empty member list.
func (s *Service) ResolveAccountability(ctx context.Context, task *models.Task) (*Accountability, error) {
	result := &Accountability{Members: []string{}}

	switch {
	case task.Assigned != nil:
		result.Assigned = task.Assigned.Display()
	case task.Author != nil:
		result.Assigned = task.Author.Display()
	}

	if _, err := s.repo.ProjectByID(ctx, task.ProjectID); err != nil {
		return nil, err
	}
	members, err := s.repo.ProjectMembers(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		result.Members = append(result.Members, m.User.Display())
	}
	return result, nil
}
