// Package bunadapter persists Casbin policy rules in the application's bun
// database. Derived from github.com/msales/casbin-bun-adapter (v1.0.7) with
// the Postgres schema qualifier and grouping-rule support removed: the
// threshold model uses flat p rules only, so no g handling is needed.
package bunadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2/model"
	"github.com/uptrace/bun"
)

// Adapter implements casbin persist.Adapter and persist.BatchAdapter on top
// of an existing *bun.DB. The casbin_rules table must already exist.
type Adapter struct {
	db *bun.DB
}

// NewAdapter creates an Adapter sharing the given bun connection pool.
func NewAdapter(db *bun.DB) (*Adapter, error) {
	if db == nil {
		return nil, fmt.Errorf("bunadapter: nil db")
	}
	return &Adapter{db: db}, nil
}

// LoadPolicy loads all policy rules from the database into the model.
func (a *Adapter) LoadPolicy(m model.Model) error {
	var rules []*CasbinRule

	if err := a.db.NewSelect().Model(&rules).Scan(context.Background()); err != nil {
		return fmt.Errorf("failed to load policy from adapter db: %w", err)
	}

	for _, r := range rules {
		values, lastNonEmpty := r.toValueSlice()
		if lastNonEmpty == -1 {
			continue // skip empty rule
		}
		_ = m.AddPolicy(r.Ptype, r.Ptype, values[:lastNonEmpty+1])
	}

	return nil
}

// SavePolicy replaces all stored rules with the model's current policy.
func (a *Adapter) SavePolicy(m model.Model) error {
	var rules []*CasbinRule
	for ptype, assertion := range m["p"] {
		for _, rule := range assertion.Policy {
			rules = append(rules, newCasbinRule(ptype, rule))
		}
	}

	if err := a.save(true, rules...); err != nil {
		return fmt.Errorf("failed to save policy to adapter db: %w", err)
	}

	return nil
}

// AddPolicy adds a single policy rule to the database.
func (a *Adapter) AddPolicy(_ string, ptype string, rule []string) error {
	if err := a.save(false, newCasbinRule(ptype, rule)); err != nil {
		return fmt.Errorf("failed to add policy rule: %w", err)
	}
	return nil
}

// AddPolicies adds policy rules to the database in one transaction.
func (a *Adapter) AddPolicies(_ string, ptype string, rules [][]string) error {
	lines := make([]*CasbinRule, 0, len(rules))
	for _, rule := range rules {
		lines = append(lines, newCasbinRule(ptype, rule))
	}

	if err := a.save(false, lines...); err != nil {
		return fmt.Errorf("failed to add policy rules: %w", err)
	}
	return nil
}

// RemovePolicy removes a single policy rule from the database.
func (a *Adapter) RemovePolicy(_ string, ptype string, rule []string) error {
	if err := a.delete(newCasbinRule(ptype, rule)); err != nil {
		return fmt.Errorf("failed to remove policy rule: %w", err)
	}
	return nil
}

// RemovePolicies removes policy rules from the database.
func (a *Adapter) RemovePolicies(_ string, ptype string, rules [][]string) error {
	lines := make([]*CasbinRule, 0, len(rules))
	for _, rule := range rules {
		lines = append(lines, newCasbinRule(ptype, rule))
	}

	if err := a.delete(lines...); err != nil {
		return fmt.Errorf("failed to remove policy rules: %w", err)
	}
	return nil
}

// RemoveFilteredPolicy removes rules matching the given field values, where
// fieldIndex is the position of the first value within the rule.
func (a *Adapter) RemoveFilteredPolicy(_ string, ptype string, fieldIndex int, fieldValues ...string) error {
	query := a.db.NewDelete().Model((*CasbinRule)(nil)).Where("ptype = ?", ptype)

	columns := []string{"v0", "v1", "v2", "v3", "v4", "v5"}
	for i, v := range fieldValues {
		idx := fieldIndex + i
		if idx >= len(columns) {
			return fmt.Errorf("filter exceeds %d rule fields", len(columns))
		}
		if v == "" {
			continue
		}
		query = query.Where(columns[idx]+" = ?", v)
	}

	if _, err := query.Exec(context.Background()); err != nil {
		return fmt.Errorf("failed to remove filtered policy: %w", err)
	}
	return nil
}

func (a *Adapter) save(truncate bool, lines ...*CasbinRule) error {
	return a.db.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		if truncate {
			if _, err := tx.NewDelete().Model((*CasbinRule)(nil)).Where("1 = 1").Exec(ctx); err != nil {
				return err
			}
		}

		for _, line := range lines {
			if _, err := tx.NewInsert().Model(line).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
				return err
			}
		}

		return nil
	})
}

func (a *Adapter) delete(lines ...*CasbinRule) error {
	if len(lines) == 0 {
		return nil
	}

	delQuery := a.db.NewDelete().Model((*CasbinRule)(nil))
	delQuery.QueryBuilder().WhereGroup("AND", func(q bun.QueryBuilder) bun.QueryBuilder {
		return q.WhereGroup("OR", func(q bun.QueryBuilder) bun.QueryBuilder {
			for _, line := range lines {
				line.queryWhereGroup(q)
			}
			return q
		})
	})
	if _, err := delQuery.Exec(context.Background()); err != nil {
		return err
	}
	return nil
}

// CasbinRule is one stored policy row. For the threshold model the columns
// read: v0 = resource, v1 = action, v2 = context, v3 = minimum role level.
// A composite primary key over all columns makes inserts idempotent.
type CasbinRule struct {
	bun.BaseModel `bun:"table:casbin_rules,alias:cr"`

	Ptype string `bun:",pk,type:varchar(100),notnull"`
	V0    string `bun:",pk,type:varchar(255)"`
	V1    string `bun:",pk,type:varchar(255)"`
	V2    string `bun:",pk,type:varchar(255)"`
	V3    string `bun:",pk,type:varchar(255)"`
	V4    string `bun:",pk,type:varchar(255)"`
	V5    string `bun:",pk,type:varchar(255)"`
}

func newCasbinRule(ptype string, rule []string) *CasbinRule {
	line := &CasbinRule{Ptype: ptype}

	fields := []*string{&line.V0, &line.V1, &line.V2, &line.V3, &line.V4, &line.V5}
	for i, v := range rule {
		if i >= len(fields) {
			break
		}
		*fields[i] = v
	}

	return line
}

func (r *CasbinRule) toValueSlice() ([]string, int) {
	values := []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
	lastNonEmpty := -1
	for i := len(values) - 1; i >= 0; i-- {
		if values[i] != "" {
			lastNonEmpty = i
			break
		}
	}
	return values, lastNonEmpty
}

// String renders the rule in casbin CSV form, preserving interior empty fields.
func (r *CasbinRule) String() string {
	values, lastNonEmpty := r.toValueSlice()

	var sb strings.Builder
	sb.WriteString(r.Ptype)
	for i := 0; i <= lastNonEmpty; i++ {
		sb.WriteString(", ")
		sb.WriteString(values[i])
	}
	return sb.String()
}

// queryWhereGroup extends the builder with an OR group matching all non-empty
// fields of the rule.
func (r *CasbinRule) queryWhereGroup(q bun.QueryBuilder) bun.QueryBuilder {
	q.WhereGroup("OR", func(q bun.QueryBuilder) bun.QueryBuilder {
		q = q.Where("ptype = ?", r.Ptype)
		values, _ := r.toValueSlice()
		columns := []string{"v0", "v1", "v2", "v3", "v4", "v5"}
		for i, v := range values {
			if v != "" {
				q = q.Where(columns[i]+" = ?", v)
			}
		}
		return q
	})
	return q
}
