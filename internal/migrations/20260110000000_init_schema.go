package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/medsourcepro/msapi/internal/auth/bunadapter"
	"github.com/medsourcepro/msapi/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260110000000, down_20260110000000)
}

// up_20260110000000 initializes the full database schema
func up_20260110000000(ctx context.Context, db *bun.DB) error {
	// 1. Identity tables
	fmt.Print(" [up] creating teams table...")
	_, err := db.NewCreateTable().
		Model((*models.Team)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create teams table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating users table...")
	_, err = db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email)`)
	if err != nil {
		return fmt.Errorf("failed to create users email index: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_users_team_id ON users(team_id)`)
	if err != nil {
		return fmt.Errorf("failed to create users team_id index: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE users
			ADD CONSTRAINT chk_users_role_level
			CHECK (role_level BETWEEN 1 AND 6)
		`)
		if err != nil {
			return fmt.Errorf("failed to add users role_level check: %w", err)
		}

		_, err = db.Exec(`
			ALTER TABLE users
			ADD CONSTRAINT fk_users_team_id
			FOREIGN KEY (team_id) REFERENCES teams(id)
		`)
		if err != nil {
			return fmt.Errorf("failed to add users team_id FK: %w", err)
		}
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating service_accounts table...")
	_, err = db.NewCreateTable().
		Model((*models.ServiceAccount)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create service_accounts table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_service_accounts_created_by ON service_accounts(created_by)`)
	if err != nil {
		return fmt.Errorf("failed to create service_accounts created_by index: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE service_accounts
			ADD CONSTRAINT fk_service_accounts_created_by
			FOREIGN KEY (created_by) REFERENCES users(id)
		`)
		if err != nil {
			return fmt.Errorf("failed to add service_accounts created_by FK: %w", err)
		}
	}
	fmt.Println(" OK")

	// 2. Session and revocation tables
	fmt.Print(" [up] creating sessions table...")
	_, err = db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	// Exactly one of user_id or service_account_id must be non-null.
	var checkConstraintSQL string
	if IsPostgreSQL(db) {
		checkConstraintSQL = `
			ALTER TABLE sessions
			ADD CONSTRAINT chk_sessions_identity_type
			CHECK ((user_id IS NOT NULL)::int + (service_account_id IS NOT NULL)::int = 1)
		`
		_, err = db.Exec(checkConstraintSQL)
		if err != nil {
			return fmt.Errorf("failed to add sessions identity check: %w", err)
		}
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions user_id index: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions expires_at index: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE sessions
			ADD CONSTRAINT fk_sessions_user_id
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		`)
		if err != nil {
			return fmt.Errorf("failed to add sessions user_id FK: %w", err)
		}
		_, err = db.Exec(`
			ALTER TABLE sessions
			ADD CONSTRAINT fk_sessions_service_account_id
			FOREIGN KEY (service_account_id) REFERENCES service_accounts(id) ON DELETE CASCADE
		`)
		if err != nil {
			return fmt.Errorf("failed to add sessions service_account_id FK: %w", err)
		}
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating revoked_jti table...")
	_, err = db.NewCreateTable().
		Model((*models.RevokedJTI)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create revoked_jti table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_revoked_jti_exp ON revoked_jti(exp)`)
	if err != nil {
		return fmt.Errorf("failed to create revoked_jti exp index: %w", err)
	}
	fmt.Println(" OK")

	// 3. Catalog tables
	fmt.Print(" [up] creating products table...")
	_, err = db.NewCreateTable().
		Model((*models.Product)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create products table: %w", err)
	}

	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_sku ON products(sku)`)
	if err != nil {
		return fmt.Errorf("failed to create products sku index: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`)
	if err != nil {
		return fmt.Errorf("failed to create products category index: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_products_labels_gin ON products USING gin (labels jsonb_path_ops)`)
		if err != nil {
			return fmt.Errorf("failed to create GIN index on product labels: %w", err)
		}
	}
	fmt.Println(" OK")

	// 4. Commerce tables
	fmt.Print(" [up] creating accounts table...")
	_, err = db.NewCreateTable().
		Model((*models.Account)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_accounts_team_id ON accounts(team_id)`)
	if err != nil {
		return fmt.Errorf("failed to create accounts team_id index: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_accounts_owner_id ON accounts(owner_id)`)
	if err != nil {
		return fmt.Errorf("failed to create accounts owner_id index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating orders tables...")
	_, err = db.NewCreateTable().
		Model((*models.Order)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create orders table: %w", err)
	}

	_, err = db.NewCreateTable().
		Model((*models.OrderItem)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create order_items table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_orders_account_id ON orders(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_owner_id ON orders(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_team_id ON orders(team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
	} {
		if _, err = db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create orders index: %w", err)
		}
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE order_items
			ADD CONSTRAINT fk_order_items_order_id
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
		`)
		if err != nil {
			return fmt.Errorf("failed to add order_items order_id FK: %w", err)
		}
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating quotes tables...")
	_, err = db.NewCreateTable().
		Model((*models.Quote)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create quotes table: %w", err)
	}

	_, err = db.NewCreateTable().
		Model((*models.QuoteItem)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create quote_items table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_quotes_account_id ON quotes(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_owner_id ON quotes(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_team_id ON quotes(team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_quote_items_quote_id ON quote_items(quote_id)`,
	} {
		if _, err = db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create quotes index: %w", err)
		}
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE quote_items
			ADD CONSTRAINT fk_quote_items_quote_id
			FOREIGN KEY (quote_id) REFERENCES quotes(id) ON DELETE CASCADE
		`)
		if err != nil {
			return fmt.Errorf("failed to add quote_items quote_id FK: %w", err)
		}
	}
	fmt.Println(" OK")

	// 5. Casbin policy storage
	fmt.Print(" [up] creating casbin_rules table...")
	_, err = db.NewCreateTable().
		Model((*bunadapter.CasbinRule)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create casbin_rules table: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260110000000 drops all tables in reverse dependency order
func down_20260110000000(ctx context.Context, db *bun.DB) error {
	tables := []string{
		"casbin_rules",
		"quote_items",
		"quotes",
		"order_items",
		"orders",
		"accounts",
		"products",
		"revoked_jti",
		"sessions",
		"service_accounts",
		"users",
		"teams",
	}

	for _, table := range tables {
		fmt.Printf(" [down] dropping %s table...", table)
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
		if IsPostgreSQL(db) {
			stmt += " CASCADE"
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
		fmt.Println(" OK")
	}

	return nil
}
