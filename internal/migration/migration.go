package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/trackline/trackline/internal/audit/domain"
	authdomain "github.com/trackline/trackline/internal/auth/domain"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	invitedomain "github.com/trackline/trackline/internal/invite/domain"
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	orgdomain "github.com/trackline/trackline/internal/organization/domain"
	workspacedomain "github.com/trackline/trackline/internal/workspace/domain"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// RunMigrations applies the embedded SQL migrations so the service is usable
// out of the box against postgres.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema through gorm for the non-postgres dialects
// (sqlite in local development, mysql). The partial one-OWNER index is a
// postgres feature; on these dialects the invariant is held by the
// transfer-ownership flow alone.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&identitydomain.User{},
		&authdomain.Session{},
		&orgdomain.Organization{},
		&workspacedomain.Workspace{},
		&workspacedomain.Project{},
		&membershipdomain.OrganizationMember{},
		&membershipdomain.WorkspaceMember{},
		&membershipdomain.ProjectMember{},
		&invitedomain.OrganizationInvite{},
		&invitedomain.WorkspaceInvite{},
		&auditdomain.AuditLog{},
	)
}
