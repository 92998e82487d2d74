package auth

import (
	"fmt"
	"strconv"

	"github.com/medsourcepro/msapi/internal/rbac"
)

// AtLeastFunction returns the atLeast matcher function for Casbin.
// atLeast(lvl, minLvl) is true when the caller's numeric role level meets the
// policy row's minimum level. Both arguments arrive as decimal strings.
func AtLeastFunction() func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		if len(args) != 2 {
			return false, fmt.Errorf("atLeast requires 2 arguments: lvl, minLvl")
		}

		lvl, err := levelArg(args[0], "lvl")
		if err != nil {
			return false, err
		}
		minLvl, err := levelArg(args[1], "minLvl")
		if err != nil {
			return false, err
		}

		return lvl.AtLeast(minLvl), nil
	}
}

// CtxCoversFunction returns the ctxCovers matcher function for Casbin.
// ctxCovers(granted, requested) is true when a grant at the granted context
// also covers the requested one (all covers team covers own; none only none).
func CtxCoversFunction() func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		if len(args) != 2 {
			return false, fmt.Errorf("ctxCovers requires 2 arguments: granted, requested")
		}

		granted, ok := args[0].(string)
		if !ok {
			return false, fmt.Errorf("ctxCovers: first argument must be string (granted)")
		}
		requested, ok := args[1].(string)
		if !ok {
			return false, fmt.Errorf("ctxCovers: second argument must be string (requested)")
		}

		return rbac.ContextCovers(rbac.Context(granted), rbac.Context(requested)), nil
	}
}

func levelArg(arg any, name string) (rbac.RoleLevel, error) {
	s, ok := arg.(string)
	if !ok {
		return 0, fmt.Errorf("atLeast: %s must be a string-encoded level, got %T", name, arg)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("atLeast: %s is not a number: %w", name, err)
	}
	lvl := rbac.RoleLevel(n)
	if !lvl.Valid() {
		return 0, fmt.Errorf("atLeast: %s %d out of range", name, n)
	}
	return lvl, nil
}
