package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/db/bunx"
	"github.com/medsourcepro/msapi/internal/rbac"
	"github.com/medsourcepro/msapi/internal/repository"
	"github.com/medsourcepro/msapi/internal/services/iam"
)

// newIAMService wires an IAM service for CLI commands that manage principals
// without running the full server.
func newIAMService(db *bun.DB) (iam.Service, error) {
	if !cfg.AuthEnabled() {
		return nil, errors.New("JWT_SECRET must be set")
	}

	enforcer, err := auth.InitEnforcer(db)
	if err != nil {
		return nil, fmt.Errorf("configure casbin enforcer: %w", err)
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("configure token issuer: %w", err)
	}

	return iam.NewService(iam.Dependencies{
		Users:           repository.NewBunUserRepository(db),
		ServiceAccounts: repository.NewBunServiceAccountRepository(db),
		Sessions:        repository.NewBunSessionRepository(db),
		RevokedJTIs:     repository.NewBunRevokedJTIRepository(db),
		Enforcer:        enforcer,
		Issuer:          issuer,
	}, iam.Config{
		SessionTTL:        cfg.Auth.SessionTTL,
		DecisionCacheSize: cfg.Cache.DecisionCacheSize,
	})
}

// openIAM connects to the database and wires an IAM service on top of it.
func openIAM() (*bun.DB, iam.Service, error) {
	db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	svc, err := newIAMService(db)
	if err != nil {
		_ = bunx.Close(db)
		return nil, nil, err
	}
	return db, svc, nil
}

func closeDB(db *bun.DB) {
	if err := bunx.Close(db); err != nil {
		log.Printf("Warning: failed to close database: %v", err)
	}
}

// systemActor is the principal CLI commands act as. It bypasses the role
// escalation gate, which is what bootstrapping the first SuperAdmin needs.
func systemActor() auth.Principal {
	return auth.Principal{
		ID:    auth.SystemUserID,
		Level: rbac.RoleSuperAdmin,
		Type:  auth.PrincipalTypeUser,
	}
}

var (
	bootstrapEmail    string
	bootstrapPassword string
	bootstrapName     string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the first SuperAdmin user",
	Long: `Creates the initial SuperAdmin user. Run once after migrations; permission
thresholds are seeded by the migrations themselves.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bootstrapEmail == "" || bootstrapPassword == "" {
			return errors.New("--email and --password are required")
		}

		db, svc, err := openIAM()
		if err != nil {
			return err
		}
		defer closeDB(db)

		ctx := context.Background()
		if existing, err := svc.GetUserByEmail(ctx, bootstrapEmail); err == nil {
			log.Printf("User %s already exists (id=%s)", existing.Email, existing.ID)
			return nil
		}

		name := bootstrapName
		if name == "" {
			name = strings.Split(bootstrapEmail, "@")[0]
		}

		user, err := svc.CreateUser(ctx, systemActor(), iam.CreateUserParams{
			Email:    bootstrapEmail,
			Name:     name,
			Password: bootstrapPassword,
			Level:    rbac.RoleSuperAdmin,
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		log.Printf("Created SuperAdmin %s (id=%s)", user.Email, user.ID)
		return nil
	},
}

var (
	userEmail    string
	userPassword string
	userName     string
	userRole     string
	userTeamID   string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "User management commands",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if userEmail == "" || userPassword == "" || userRole == "" {
			return errors.New("--email, --password and --role are required")
		}

		level, err := rbac.ParseRole(userRole)
		if err != nil {
			return err
		}

		db, svc, err := openIAM()
		if err != nil {
			return err
		}
		defer closeDB(db)

		params := iam.CreateUserParams{
			Email:    userEmail,
			Name:     userName,
			Password: userPassword,
			Level:    level,
		}
		if userTeamID != "" {
			params.TeamID = &userTeamID
		}

		user, err := svc.CreateUser(context.Background(), systemActor(), params)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		log.Printf("Created user %s (id=%s, role=%s)", user.Email, user.ID, user.RoleLevel)
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, svc, err := openIAM()
		if err != nil {
			return err
		}
		defer closeDB(db)

		users, err := svc.ListUsers(context.Background())
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		for _, u := range users {
			status := "active"
			if u.DisabledAt != nil {
				status = "disabled"
			}
			fmt.Printf("%s\t%s\t%s\t%s\n", u.ID, u.Email, u.RoleLevel, status)
		}
		return nil
	},
}

var (
	saName        string
	saDescription string
	saRole        string
)

var saCmd = &cobra.Command{
	Use:   "sa",
	Short: "Service account management commands",
}

var saCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a service account",
	Long:  `Creates a service account and prints the client secret. The secret is shown exactly once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if saName == "" || saRole == "" {
			return errors.New("--name and --role are required")
		}

		level, err := rbac.ParseRole(saRole)
		if err != nil {
			return err
		}

		db, svc, err := openIAM()
		if err != nil {
			return err
		}
		defer closeDB(db)

		sa, secret, err := svc.CreateServiceAccount(context.Background(), saName, saDescription, level, auth.SystemUserID)
		if err != nil {
			return fmt.Errorf("create service account: %w", err)
		}

		fmt.Printf("client_id:     %s\n", sa.ClientID)
		fmt.Printf("client_secret: %s\n", secret)
		fmt.Println("Store the secret now; it cannot be retrieved again.")
		return nil
	},
}

var saListCmd = &cobra.Command{
	Use:   "list",
	Short: "List service accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, svc, err := openIAM()
		if err != nil {
			return err
		}
		defer closeDB(db)

		list, err := svc.ListServiceAccounts(context.Background())
		if err != nil {
			return fmt.Errorf("list service accounts: %w", err)
		}

		for _, sa := range list {
			status := "active"
			if sa.Disabled {
				status = "disabled"
			}
			fmt.Printf("%s\t%s\t%s\t%s\n", sa.ClientID, sa.Name, sa.RoleLevel, status)
		}
		return nil
	},
}

var saRevokeCmd = &cobra.Command{
	Use:   "revoke [client-id]",
	Short: "Revoke a service account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, svc, err := openIAM()
		if err != nil {
			return err
		}
		defer closeDB(db)

		if err := svc.RevokeServiceAccount(context.Background(), args[0]); err != nil {
			return fmt.Errorf("revoke service account: %w", err)
		}

		log.Printf("Revoked service account %s", args[0])
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapEmail, "email", "", "SuperAdmin email address")
	bootstrapCmd.Flags().StringVar(&bootstrapPassword, "password", "", "SuperAdmin password")
	bootstrapCmd.Flags().StringVar(&bootstrapName, "name", "", "Display name")
	rootCmd.AddCommand(bootstrapCmd)

	usersCreateCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	usersCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password")
	usersCreateCmd.Flags().StringVar(&userName, "name", "", "Display name")
	usersCreateCmd.Flags().StringVar(&userRole, "role", "", "Role name (customer, fulfillment_coordinator, sales_rep, sales_manager, admin, super_admin)")
	usersCreateCmd.Flags().StringVar(&userTeamID, "team-id", "", "Sales team ID")
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersListCmd)
	rootCmd.AddCommand(usersCmd)

	saCreateCmd.Flags().StringVar(&saName, "name", "", "Service account name")
	saCreateCmd.Flags().StringVar(&saDescription, "description", "", "Description")
	saCreateCmd.Flags().StringVar(&saRole, "role", "", "Role name")
	saCmd.AddCommand(saCreateCmd)
	saCmd.AddCommand(saListCmd)
	saCmd.AddCommand(saRevokeCmd)
	rootCmd.AddCommand(saCmd)
}
