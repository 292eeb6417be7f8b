package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/trackline/trackline/internal/invite/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(gdb *gorm.DB) domain.Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrgInvite(ctx context.Context, invite domain.OrganizationInvite) error {
	return r.db.WithContext(ctx).Create(&invite).Error
}

func (r *repository) GetOrgInviteByID(ctx context.Context, orgID, id snowflake.ID) (*domain.OrganizationInvite, error) {
	var invite domain.OrganizationInvite
	err := r.db.WithContext(ctx).
		First(&invite, "id = ? AND org_id = ?", id, orgID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInviteNotFound
		}
		return nil, err
	}
	return &invite, nil
}

func (r *repository) GetOrgInviteByTokenHash(ctx context.Context, orgID snowflake.ID, tokenHash string) (*domain.OrganizationInvite, error) {
	var invite domain.OrganizationInvite
	err := r.db.WithContext(ctx).
		First(&invite, "org_id = ? AND token_hash = ?", orgID, tokenHash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInviteNotFound
		}
		return nil, err
	}
	return &invite, nil
}

func (r *repository) ListOrgInvitesByStatus(ctx context.Context, orgID snowflake.ID, status string) ([]domain.OrganizationInvite, error) {
	var invites []domain.OrganizationInvite
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, status).
		Order("created_at DESC").
		Find(&invites).Error
	return invites, err
}

func (r *repository) RevokePendingOrgInvitesByEmail(ctx context.Context, orgID snowflake.ID, email string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.OrganizationInvite{}).
		Where("org_id = ? AND email = ? AND status = ?", orgID, email, domain.StatusPending).
		Updates(map[string]any{"status": domain.StatusRevoked, "updated_at": at}).Error
}

// TransitionOrgInvite is the single-writer serialization point of the invite
// state machine: under concurrent calls exactly one caller sees true.
func (r *repository) TransitionOrgInvite(ctx context.Context, id snowflake.ID, from, to string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.OrganizationInvite{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RotateOrgInviteToken(ctx context.Context, id snowflake.ID, tokenHash string, expiresAt, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.OrganizationInvite{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"token_hash": tokenHash,
			"expires_at": expiresAt,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateWorkspaceInvite(ctx context.Context, invite domain.WorkspaceInvite) error {
	return r.db.WithContext(ctx).Create(&invite).Error
}

func (r *repository) GetWorkspaceInviteByID(ctx context.Context, workspaceID, id snowflake.ID) (*domain.WorkspaceInvite, error) {
	var invite domain.WorkspaceInvite
	err := r.db.WithContext(ctx).
		First(&invite, "id = ? AND workspace_id = ?", id, workspaceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInviteNotFound
		}
		return nil, err
	}
	return &invite, nil
}

func (r *repository) GetWorkspaceInviteByTokenHash(ctx context.Context, workspaceID snowflake.ID, tokenHash string) (*domain.WorkspaceInvite, error) {
	var invite domain.WorkspaceInvite
	err := r.db.WithContext(ctx).
		First(&invite, "workspace_id = ? AND token_hash = ?", workspaceID, tokenHash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInviteNotFound
		}
		return nil, err
	}
	return &invite, nil
}

func (r *repository) ListWorkspaceInvitesByStatus(ctx context.Context, workspaceID snowflake.ID, status string) ([]domain.WorkspaceInvite, error) {
	var invites []domain.WorkspaceInvite
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND status = ?", workspaceID, status).
		Order("created_at DESC").
		Find(&invites).Error
	return invites, err
}

func (r *repository) RevokePendingWorkspaceInvitesByEmail(ctx context.Context, workspaceID snowflake.ID, email string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.WorkspaceInvite{}).
		Where("workspace_id = ? AND email = ? AND status = ?", workspaceID, email, domain.StatusPending).
		Updates(map[string]any{"status": domain.StatusRevoked, "updated_at": at}).Error
}

func (r *repository) TransitionWorkspaceInvite(ctx context.Context, id snowflake.ID, from, to string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.WorkspaceInvite{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RotateWorkspaceInviteToken(ctx context.Context, id snowflake.ID, tokenHash string, expiresAt, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.WorkspaceInvite{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"token_hash": tokenHash,
			"expires_at": expiresAt,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
