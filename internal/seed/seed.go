// Package seed bootstraps a first admin account and organization so a fresh
// deployment is usable without manual SQL.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/trackline/trackline/internal/auth/password"
	"github.com/trackline/trackline/internal/config"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	orgdomain "github.com/trackline/trackline/internal/organization/domain"
	"gorm.io/gorm"
)

const defaultOrgName = "Main"

// EnsureBootstrapAdmin creates the configured admin user, a default
// organization, and the OWNER membership binding them. It is idempotent and
// a no-op when no bootstrap admin is configured.
func EnsureBootstrapAdmin(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	email := strings.ToLower(strings.TrimSpace(cfg.BootstrapAdminEmail))
	if email == "" {
		return nil
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		var user identitydomain.User
		err := tx.WithContext(ctx).Where("email = ?", email).First(&user).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			hashed, err := password.Hash(cfg.BootstrapAdminPassword)
			if err != nil {
				return err
			}
			user = identitydomain.User{
				ID:           node.Generate(),
				Name:         "Admin",
				Email:        email,
				PasswordHash: &hashed,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
				return err
			}
		}

		var org orgdomain.Organization
		err = tx.WithContext(ctx).Where("slug = ?", slug.Make(defaultOrgName)).First(&org).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			org = orgdomain.Organization{
				ID:        node.Generate(),
				Name:      defaultOrgName,
				Slug:      slug.Make(defaultOrgName),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
				return err
			}
		}

		var member membershipdomain.OrganizationMember
		err = tx.WithContext(ctx).
			Where("org_id = ? AND user_id = ?", org.ID, user.ID).
			First(&member).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		member = membershipdomain.OrganizationMember{
			ID:       node.Generate(),
			OrgID:    org.ID,
			UserID:   user.ID,
			Role:     membershipdomain.RoleOwner,
			JoinedAt: now,
		}
		return tx.WithContext(ctx).Create(&member).Error
	})
}
