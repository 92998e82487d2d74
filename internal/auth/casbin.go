package auth

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/uptrace/bun"

	"github.com/medsourcepro/msapi/internal/auth/bunadapter"
)

//go:embed model.conf
var casbinModelContent string

// InitMemoryEnforcer creates an enforcer over the embedded model with no
// persistence. Policies live only in memory; used by tests and dry runs.
func InitMemoryEnforcer() (casbin.IEnforcer, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	enforcer.AddFunction("atLeast", AtLeastFunction())
	enforcer.AddFunction("ctxCovers", CtxCoversFunction())

	return enforcer, nil
}

// InitEnforcer creates a Casbin enforcer with the embedded threshold model and
// a bun-backed policy adapter sharing the application connection pool.
//
// The matcher grants a request when a policy row for the same resource and
// action exists whose context covers the requested context (all > team > own)
// and whose minimum level is at or below the caller's role level.
func InitEnforcer(db *bun.DB) (casbin.IEnforcer, error) {
	adapter, err := bunadapter.NewAdapter(db)
	if err != nil {
		return nil, fmt.Errorf("create casbin adapter: %w", err)
	}

	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	// Custom matcher functions implementing the ordered-level and
	// context-broadening comparisons.
	enforcer.AddFunction("atLeast", AtLeastFunction())
	enforcer.AddFunction("ctxCovers", CtxCoversFunction())

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load casbin policies: %w", err)
	}

	return enforcer, nil
}
