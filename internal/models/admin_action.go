package models

import "time"

// AdminActionKind identifies a state-changing admin decision.
type AdminActionKind string

const (
	// AdminActionApprove records an approval.
	AdminActionApprove AdminActionKind = "approve"
	// AdminActionDeny records a denial.
	AdminActionDeny AdminActionKind = "deny"
)

// AdminAction is one append-only audit entry per state-changing admin action.
// It exists purely for audit and is never read by the orchestrator.
type AdminAction struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	RequestID uint            `gorm:"not null;index" json:"request_id"`
	AdminID   string          `gorm:"size:64;not null;index" json:"admin_id"`
	Action    AdminActionKind `gorm:"type:varchar(16);not null" json:"action"`
	Reason    string          `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TableName specifies the table name for GORM
func (AdminAction) TableName() string {
	return "admin_actions"
}
