package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/trackline/trackline/pkg/db/pagination"
	"gorm.io/gorm"
)

// Entry describes one mutation to record. Actor, request id, IP address and
// user agent are resolved from the request context.
type Entry struct {
	OrgID       *snowflake.ID
	WorkspaceID *snowflake.ID
	Action      string
	TargetType  string
	TargetID    string
	Details     map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	OrgID       snowflake.ID
	WorkspaceID *snowflake.ID
	Action      string
	TargetType  string
	TargetID    string
	ActorType   string
	StartAt     *time.Time
	EndAt       *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Service records and reads the audit trail. Record runs against the base
// connection; RecordInTx joins the caller's transaction so the audit row
// commits or rolls back with the mutation it describes.
type Service interface {
	Record(ctx context.Context, entry Entry) error
	RecordInTx(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

// AuditCursor is the keyset position for List pagination.
type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrgID       snowflake.ID
	WorkspaceID *snowflake.ID
	Action      string
	TargetType  string
	TargetID    string
	ActorType   string
	StartAt     *time.Time
	EndAt       *time.Time
	Cursor      *AuditCursor
	Limit       int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidAction       = errors.New("invalid_action")
)
