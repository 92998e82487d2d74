package migrations

import (
	"context"
	"fmt"
	"strconv"

	"github.com/uptrace/bun"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/auth/bunadapter"
	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/rbac"
)

func init() {
	Migrations.MustRegister(up_20260110000001, down_20260110000001)
}

// up_20260110000001 seeds the system user and the default permission policy
func up_20260110000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding system user...")

	// The system user cannot log in; its password hash matches nothing.
	systemUser := models.User{
		ID:           auth.SystemUserID,
		Email:        "system@medsourcepro.internal",
		Name:         "System",
		PasswordHash: "!",
		RoleLevel:    rbac.RoleSuperAdmin,
	}

	_, err := db.NewInsert().
		Model(&systemUser).
		On("CONFLICT (id) DO NOTHING"). // Idempotent
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed system user: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] seeding default permission policy...")

	// Using model: p = resource, action, context, min_level
	rules := rbac.DefaultPolicy()
	defaultPolicies := make([]bunadapter.CasbinRule, 0, len(rules))
	for _, rule := range rules {
		defaultPolicies = append(defaultPolicies, bunadapter.CasbinRule{
			Ptype: "p",
			V0:    string(rule.Resource),
			V1:    string(rule.Action),
			V2:    string(rule.Context),
			V3:    strconv.Itoa(int(rule.MinLevel)),
		})
	}

	_, err = db.NewInsert().
		Model(&defaultPolicies).
		On("CONFLICT (ptype, v0, v1, v2, v3, v4, v5) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed permission policy: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260110000001 removes seeded policies and the system user
func down_20260110000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing seeded policies...")
	_, err := db.NewDelete().
		Model((*bunadapter.CasbinRule)(nil)).
		Where("ptype = ?", "p").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove seeded policies: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [down] removing system user...")
	_, err = db.NewDelete().
		Model((*models.User)(nil)).
		Where("id = ?", auth.SystemUserID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove system user: %w", err)
	}
	fmt.Println(" OK")

	return nil
}
