package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func defaultTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(DefaultPolicy())
	require.NoError(t, err)
	return table
}

func TestDefaultPolicyContextMonotonic(t *testing.T) {
	t.Parallel()

	// Within one resource and action, broadening the context must never
	// lower the required level.
	minByTuple := make(map[string]map[Context]RoleLevel)
	for _, rule := range DefaultPolicy() {
		key := string(rule.Resource) + ":" + string(rule.Action)
		if minByTuple[key] == nil {
			minByTuple[key] = make(map[Context]RoleLevel)
		}
		minByTuple[key][rule.Context] = rule.MinLevel
	}

	ordered := []Context{ContextNone, ContextOwn, ContextTeam, ContextAll}
	for key, byCtx := range minByTuple {
		last := RoleLevel(0)
		for _, ctx := range ordered {
			min, ok := byCtx[ctx]
			if !ok {
				continue
			}
			require.GreaterOrEqualf(t, min, last, "%s: level drops at context %s", key, ctx)
			last = min
		}
	}
}

func TestHasPermissionLevelMonotonic(t *testing.T) {
	t.Parallel()

	table := defaultTable(t)

	// If a level is allowed, every higher level is allowed too.
	for _, rule := range DefaultPolicy() {
		for level := RoleCustomer; level <= RoleSuperAdmin; level++ {
			if !table.HasPermission(level, rule.Resource, rule.Action, rule.Context) {
				continue
			}
			for higher := level + 1; higher <= RoleSuperAdmin; higher++ {
				require.Truef(t, table.HasPermission(higher, rule.Resource, rule.Action, rule.Context),
					"%s allowed at %s but denied at %s", rule, level, higher)
			}
		}
	}
}

func TestHasPermissionBroadGrantCoversNarrow(t *testing.T) {
	t.Parallel()

	table := defaultTable(t)

	// Whenever a context is allowed, every narrower context is allowed.
	ordered := []Context{ContextNone, ContextOwn, ContextTeam, ContextAll}
	for _, rule := range DefaultPolicy() {
		for level := RoleCustomer; level <= RoleSuperAdmin; level++ {
			for bi, broad := range ordered {
				if !table.HasPermission(level, rule.Resource, rule.Action, broad) {
					continue
				}
				for _, narrow := range ordered[:bi] {
					require.Truef(t, table.HasPermission(level, rule.Resource, rule.Action, narrow),
						"%s:%s allowed at %s for %s but denied at %s",
						rule.Resource, rule.Action, broad, level, narrow)
				}
			}
		}
	}
}

func TestHasPermissionThresholds(t *testing.T) {
	t.Parallel()

	table := defaultTable(t)

	cases := []struct {
		level    RoleLevel
		resource Resource
		action   Action
		ctx      Context
		want     bool
	}{
		{RoleCustomer, ResourceProduct, ActionRead, ContextNone, true},
		{RoleCustomer, ResourceProduct, ActionWrite, ContextAll, false},
		{RoleAdmin, ResourceProduct, ActionWrite, ContextAll, true},
		{RoleAdmin, ResourceProduct, ActionDelete, ContextAll, false},
		{RoleSuperAdmin, ResourceProduct, ActionDelete, ContextAll, true},

		{RoleCustomer, ResourceOrder, ActionRead, ContextOwn, true},
		{RoleCustomer, ResourceOrder, ActionRead, ContextTeam, false},
		{RoleSalesRep, ResourceOrder, ActionRead, ContextTeam, false},
		{RoleSalesManager, ResourceOrder, ActionRead, ContextAll, true},
		{RoleFulfillment, ResourceOrder, ActionFulfill, ContextAll, true},
		{RoleCustomer, ResourceOrder, ActionFulfill, ContextAll, false},
		{RoleSalesManager, ResourceOrder, ActionApprove, ContextTeam, true},
		{RoleSalesRep, ResourceOrder, ActionApprove, ContextTeam, false},

		{RoleSalesRep, ResourceQuote, ActionWrite, ContextOwn, true},
		{RoleCustomer, ResourceQuote, ActionWrite, ContextOwn, false},
		{RoleCustomer, ResourceQuote, ActionCreate, ContextOwn, true},

		{RoleSalesRep, ResourceAnalytics, ActionRead, ContextOwn, true},
		{RoleCustomer, ResourceAnalytics, ActionRead, ContextOwn, false},
		{RoleAdmin, ResourceAnalytics, ActionRead, ContextAll, true},

		{RoleAdmin, ResourcePolicy, ActionWrite, ContextAll, false},
		{RoleSuperAdmin, ResourcePolicy, ActionWrite, ContextAll, true},
	}

	for _, tc := range cases {
		got := table.HasPermission(tc.level, tc.resource, tc.action, tc.ctx)
		require.Equalf(t, tc.want, got, "%s may %s", tc.level, BuildPermission(tc.resource, tc.action, tc.ctx))
	}
}

func TestHasPermissionUnknownTupleDenies(t *testing.T) {
	t.Parallel()

	table := defaultTable(t)

	require.False(t, table.HasPermission(RoleSuperAdmin, "warehouse", "teleport", ContextAll))
	require.False(t, table.HasPermission(RoleSuperAdmin, ResourceOrder, "teleport", ContextAll))
	require.False(t, table.HasPermission(RoleLevel(42), ResourceOrder, ActionRead, ContextOwn))
	require.False(t, table.HasPermission(RoleAdmin, ResourceOrder, ActionRead, "galaxy"))
}

func TestBroadestContext(t *testing.T) {
	t.Parallel()

	table := defaultTable(t)

	ctx, ok := table.BroadestContext(RoleAdmin, ResourceAnalytics, ActionRead)
	require.True(t, ok)
	require.Equal(t, ContextAll, ctx)

	ctx, ok = table.BroadestContext(RoleSalesManager, ResourceAnalytics, ActionRead)
	require.True(t, ok)
	require.Equal(t, ContextTeam, ctx)

	ctx, ok = table.BroadestContext(RoleSalesRep, ResourceAnalytics, ActionRead)
	require.True(t, ok)
	require.Equal(t, ContextOwn, ctx)

	_, ok = table.BroadestContext(RoleCustomer, ResourceAnalytics, ActionRead)
	require.False(t, ok)
}

func TestNewTableRejectsInvalidRules(t *testing.T) {
	t.Parallel()

	_, err := NewTable([]Rule{{ResourceOrder, ActionRead, ContextOwn, RoleLevel(0)}})
	require.Error(t, err)

	_, err = NewTable([]Rule{{ResourceOrder, ActionRead, "galaxy", RoleAdmin}})
	require.Error(t, err)
}
