package rbac

import "fmt"

// Rule grants a permission tuple to every level at or above MinLevel.
type Rule struct {
	Resource Resource
	Action   Action
	Context  Context
	MinLevel RoleLevel
}

// String renders the rule as resource:action:context>=level.
func (r Rule) String() string {
	return fmt.Sprintf("%s>=%d", BuildPermission(r.Resource, r.Action, r.Context), int(r.MinLevel))
}

// DefaultPolicy returns the built-in permission thresholds. Deployments seed
// these into the policy store once and may edit them at runtime; this table
// is the source of truth only until then.
//
// Within one resource and action the minimum level never decreases as the
// context broadens, so a caller allowed at a broad context is always allowed
// at the narrower ones.
func DefaultPolicy() []Rule {
	return []Rule{
		// Catalog. Everyone may browse; only admins edit it.
		{ResourceProduct, ActionRead, ContextNone, RoleCustomer},
		{ResourceProduct, ActionCreate, ContextAll, RoleAdmin},
		{ResourceProduct, ActionWrite, ContextAll, RoleAdmin},
		{ResourceProduct, ActionDelete, ContextAll, RoleSuperAdmin},

		// Orders. Customers work their own; managers see the team; approval
		// sits with managers and fulfillment spans the whole book.
		{ResourceOrder, ActionRead, ContextOwn, RoleCustomer},
		{ResourceOrder, ActionRead, ContextTeam, RoleSalesManager},
		{ResourceOrder, ActionRead, ContextAll, RoleSalesManager},
		{ResourceOrder, ActionCreate, ContextOwn, RoleCustomer},
		{ResourceOrder, ActionWrite, ContextOwn, RoleCustomer},
		{ResourceOrder, ActionWrite, ContextTeam, RoleSalesManager},
		{ResourceOrder, ActionApprove, ContextTeam, RoleSalesManager},
		{ResourceOrder, ActionApprove, ContextAll, RoleAdmin},
		{ResourceOrder, ActionFulfill, ContextAll, RoleFulfillment},

		// Quotes. Customers request, reps price, managers approve.
		{ResourceQuote, ActionRead, ContextOwn, RoleCustomer},
		{ResourceQuote, ActionRead, ContextTeam, RoleSalesManager},
		{ResourceQuote, ActionRead, ContextAll, RoleAdmin},
		{ResourceQuote, ActionCreate, ContextOwn, RoleCustomer},
		{ResourceQuote, ActionWrite, ContextOwn, RoleSalesRep},
		{ResourceQuote, ActionWrite, ContextTeam, RoleSalesManager},
		{ResourceQuote, ActionWrite, ContextAll, RoleAdmin},
		{ResourceQuote, ActionApprove, ContextTeam, RoleSalesManager},
		{ResourceQuote, ActionApprove, ContextAll, RoleAdmin},

		// Customer accounts.
		{ResourceAccount, ActionRead, ContextOwn, RoleCustomer},
		{ResourceAccount, ActionRead, ContextTeam, RoleSalesManager},
		{ResourceAccount, ActionRead, ContextAll, RoleAdmin},
		{ResourceAccount, ActionCreate, ContextAll, RoleAdmin},
		{ResourceAccount, ActionWrite, ContextTeam, RoleSalesManager},
		{ResourceAccount, ActionWrite, ContextAll, RoleAdmin},
		{ResourceAccount, ActionDelete, ContextAll, RoleSuperAdmin},

		// Analytics dashboards. Reps see their own numbers, managers the
		// team's, admins the company's. Customers get none.
		{ResourceAnalytics, ActionRead, ContextOwn, RoleSalesRep},
		{ResourceAnalytics, ActionRead, ContextTeam, RoleSalesManager},
		{ResourceAnalytics, ActionRead, ContextAll, RoleAdmin},

		// IAM administration.
		{ResourceUser, ActionRead, ContextAll, RoleAdmin},
		{ResourceUser, ActionCreate, ContextAll, RoleAdmin},
		{ResourceUser, ActionWrite, ContextAll, RoleAdmin},
		{ResourceUser, ActionDelete, ContextAll, RoleSuperAdmin},
		{ResourceServiceAccount, ActionRead, ContextAll, RoleAdmin},
		{ResourceServiceAccount, ActionCreate, ContextAll, RoleSuperAdmin},
		{ResourceServiceAccount, ActionWrite, ContextAll, RoleSuperAdmin},

		// Sessions. Anyone manages their own; admins manage everyone's.
		{ResourceSession, ActionRead, ContextOwn, RoleCustomer},
		{ResourceSession, ActionRead, ContextAll, RoleAdmin},
		{ResourceSession, ActionDelete, ContextOwn, RoleCustomer},
		{ResourceSession, ActionDelete, ContextAll, RoleAdmin},

		// Policy administration. Reading thresholds is an admin concern;
		// changing them is reserved for the top of the hierarchy.
		{ResourcePolicy, ActionRead, ContextAll, RoleAdmin},
		{ResourcePolicy, ActionWrite, ContextAll, RoleSuperAdmin},
	}
}

// Table is an in-memory policy index answering permission checks without an
// enforcer. The HTTP path uses Casbin; this form backs tests, offline tools
// and the bootstrap command.
type Table struct {
	// min level per resource/action/context tuple
	thresholds map[string]RoleLevel
}

// NewTable indexes the given rules. Rules with an invalid level or context
// are rejected.
func NewTable(rules []Rule) (*Table, error) {
	t := &Table{thresholds: make(map[string]RoleLevel, len(rules))}
	for _, rule := range rules {
		if !rule.MinLevel.Valid() {
			return nil, fmt.Errorf("rule %s: invalid level", rule)
		}
		if !ValidContext(rule.Context) {
			return nil, fmt.Errorf("rule %s: invalid context", rule)
		}
		key := BuildPermission(rule.Resource, rule.Action, rule.Context)
		if existing, ok := t.thresholds[key]; !ok || rule.MinLevel < existing {
			t.thresholds[key] = rule.MinLevel
		}
	}
	return t, nil
}

// HasPermission reports whether the level may perform action on resource at
// the requested context. Allowed iff some rule whose context covers the
// requested one has a minimum level at or below the caller's. Unknown tuples
// deny.
func (t *Table) HasPermission(level RoleLevel, resource Resource, action Action, reqCtx Context) bool {
	if !level.Valid() || !ValidContext(reqCtx) {
		return false
	}
	for granted := range contextRank {
		if !ContextCovers(granted, reqCtx) {
			continue
		}
		min, ok := t.thresholds[BuildPermission(resource, action, granted)]
		if ok && level.AtLeast(min) {
			return true
		}
	}
	return false
}

// BroadestContext returns the widest context at which the level may perform
// action on resource, and false when every context denies.
func (t *Table) BroadestContext(level RoleLevel, resource Resource, action Action) (Context, bool) {
	for _, ctx := range []Context{ContextAll, ContextTeam, ContextOwn, ContextNone} {
		if t.HasPermission(level, resource, action, ctx) {
			return ctx, true
		}
	}
	return ContextNone, false
}
