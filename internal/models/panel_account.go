package models

import "time"

// PanelAccount records that a panel-side account was created for a requester.
// OwnerID is the idempotency key of the account provisioning step: a retried
// attempt that finds a row here reuses the account instead of creating a
// second one. Accounts are never deleted automatically; one account may back
// several requests by the same user.
type PanelAccount struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OwnerID    string    `gorm:"size:64;not null;uniqueIndex" json:"owner_id"`
	Username   string    `gorm:"size:120;not null;uniqueIndex" json:"username"`
	AccountRef string    `gorm:"size:64;not null" json:"account_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (PanelAccount) TableName() string {
	return "panel_accounts"
}
