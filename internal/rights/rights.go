// Package rights is the default policy decision point: role-based project
// membership. The core only sees the tracker.Rights interface, so the policy
// stays swappable.
package rights

import (
	"context"
	"fmt"

	"teamtrack/internal/models"
	"teamtrack/internal/tracker"
)

// MemberLookup is the slice of persistence the policy needs.
type MemberLookup interface {
	ProjectMembers(ctx context.Context, projectID int64) ([]models.Member, error)
}

// Policy grants by role: non-members get nothing, viewers read, members
// create and update, owners additionally delete.
type Policy struct {
	members MemberLookup
}

// New builds a Policy over a membership source.
func New(members MemberLookup) *Policy {
	return &Policy{members: members}
}

// Check implements tracker.Rights. The returned denial carries a reason
// naming the actor's standing and the refused action.
func (p *Policy) Check(ctx context.Context, projectID, actorID int64, action tracker.Action, fields []tracker.Field) error {
	members, err := p.members.ProjectMembers(ctx, projectID)
	if err != nil {
		return err
	}

	role := ""
	for _, m := range members {
		if m.User.ID == actorID {
			role = m.Role
			break
		}
	}
	if role == "" {
		return &tracker.ForbiddenError{Reason: fmt.Sprintf("actor %d is not a member of project %d", actorID, projectID)}
	}

	switch action {
	case tracker.ActionRead:
		return nil
	case tracker.ActionCreate, tracker.ActionUpdate:
		if role == models.RoleViewer {
			return &tracker.ForbiddenError{Reason: fmt.Sprintf("role %q may not %s tasks", role, action)}
		}
		return nil
	case tracker.ActionDelete:
		if role != models.RoleOwner {
			return &tracker.ForbiddenError{Reason: fmt.Sprintf("role %q may not delete tasks", role)}
		}
		return nil
	default:
		return &tracker.ForbiddenError{Reason: fmt.Sprintf("unknown action %q", action)}
	}
}
