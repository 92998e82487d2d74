package rbac

import (
	"fmt"
	"strings"
)

// Resource is the first axis of a permission tuple.
type Resource string

const (
	ResourceProduct        Resource = "product"
	ResourceOrder          Resource = "order"
	ResourceQuote          Resource = "quote"
	ResourceAccount        Resource = "account"
	ResourceAnalytics      Resource = "analytics"
	ResourceUser           Resource = "user"
	ResourceServiceAccount Resource = "service_account"
	ResourceSession        Resource = "session"
	ResourcePolicy         Resource = "policy"
)

// Action is the second axis of a permission tuple.
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionWrite   Action = "write"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionFulfill Action = "fulfill"
)

// Context is the third axis of a permission tuple: the scope of data the
// action reaches. Contexts are ordered none < own < team < all, and a grant
// at a broad context covers every narrower one.
type Context string

const (
	ContextNone Context = "none"
	ContextOwn  Context = "own"
	ContextTeam Context = "team"
	ContextAll  Context = "all"
)

var contextRank = map[Context]int{
	ContextNone: 0,
	ContextOwn:  1,
	ContextTeam: 2,
	ContextAll:  3,
}

// ValidContext reports whether ctx is one of the defined contexts.
func ValidContext(ctx Context) bool {
	_, ok := contextRank[ctx]
	return ok
}

// ContextCovers reports whether a grant at the granted context also covers
// the requested one. Unknown contexts never cover and are never covered.
func ContextCovers(granted, requested Context) bool {
	g, ok := contextRank[granted]
	if !ok {
		return false
	}
	r, ok := contextRank[requested]
	if !ok {
		return false
	}
	return g >= r
}

// BuildPermission renders a tuple in its canonical resource:action:context
// form, e.g. "analytics:read:team".
func BuildPermission(resource Resource, action Action, ctx Context) string {
	return fmt.Sprintf("%s:%s:%s", resource, action, ctx)
}

// ParsePermission splits a canonical resource:action:context string and
// validates the context axis. Resource and action are free-form so that
// runtime policy edits can introduce tuples this package does not predefine.
func ParsePermission(s string) (Resource, Action, Context, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("permission %q: want resource:action:context", s)
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("permission %q: empty resource or action", s)
	}
	ctx := Context(parts[2])
	if !ValidContext(ctx) {
		return "", "", "", fmt.Errorf("permission %q: unknown context %q", s, parts[2])
	}
	return Resource(parts[0]), Action(parts[1]), ctx, nil
}
