package repository

import (
	"fmt"

	"github.com/uptrace/bun"

	"github.com/medsourcepro/msapi/internal/rbac"
)

// applyScope narrows a select query to the rows visible at the scope's
// context. Column names are passed in because orders, quotes and accounts
// name their owner columns differently.
func applyScope(q *bun.SelectQuery, s Scope, ownerCol, teamCol, accountCol string) (*bun.SelectQuery, error) {
	switch rbac.Context(s.Context) {
	case rbac.ContextAll:
		return q, nil
	case rbac.ContextTeam:
		if s.TeamID == "" {
			return nil, fmt.Errorf("team scope requires a team id")
		}
		return q.Where(teamCol+" = ?", s.TeamID), nil
	case rbac.ContextOwn:
		// Customer users see everything on their account; internal users
		// see what they own.
		if accountCol != "" && s.AccountID != "" {
			return q.Where(accountCol+" = ?", s.AccountID), nil
		}
		if s.UserID == "" {
			return nil, fmt.Errorf("own scope requires a user id")
		}
		return q.Where(ownerCol+" = ?", s.UserID), nil
	default:
		return nil, fmt.Errorf("invalid scope context %q", s.Context)
	}
}

// Visible reports whether a single record identified by its owner, team and
// account falls inside the scope. Used on GetByID paths where the row is
// already loaded.
func (s Scope) Visible(ownerID string, teamID, accountID *string) bool {
	switch rbac.Context(s.Context) {
	case rbac.ContextAll:
		return true
	case rbac.ContextTeam:
		return s.TeamID != "" && teamID != nil && *teamID == s.TeamID
	case rbac.ContextOwn:
		if s.AccountID != "" && accountID != nil && *accountID == s.AccountID {
			return true
		}
		return s.UserID != "" && ownerID == s.UserID
	default:
		return false
	}
}
