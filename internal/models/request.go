package models

import "time"

// RequestStatus defines lifecycle states for game server requests.
type RequestStatus string

const (
	// RequestStatusPending indicates the request is awaiting an admin decision.
	RequestStatusPending RequestStatus = "pending"
	// RequestStatusApproved indicates an admin accepted the request and
	// provisioning has been queued but not yet claimed.
	RequestStatusApproved RequestStatus = "approved"
	// RequestStatusProvisioning indicates the orchestrator claimed the request
	// and is executing panel steps.
	RequestStatusProvisioning RequestStatus = "provisioning"
	// RequestStatusCompleted is the terminal success state.
	RequestStatusCompleted RequestStatus = "completed"
	// RequestStatusProvisioningFailed is the terminal state after retries and
	// compensation are exhausted.
	RequestStatusProvisioningFailed RequestStatus = "provisioning_failed"
	// RequestStatusDenied indicates an admin refused the request.
	RequestStatusDenied RequestStatus = "denied"
	// RequestStatusCancelled indicates the requester withdrew the request.
	RequestStatusCancelled RequestStatus = "cancelled"
	// RequestStatusExpired indicates the request aged out before a decision.
	RequestStatusExpired RequestStatus = "expired"
)

// validTransitions is the full transition table. Every status mutation goes
// through the store's compare-and-set; this table is what the set is checked
// against before it is attempted.
var validTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending: {
		RequestStatusApproved,
		RequestStatusDenied,
		RequestStatusCancelled,
		RequestStatusExpired,
	},
	RequestStatusApproved:     {RequestStatusProvisioning},
	RequestStatusProvisioning: {RequestStatusCompleted, RequestStatusProvisioningFailed},
}

// CanTransitionTo reports whether moving from s to target is a legal walk of
// the transition table.
func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (s RequestStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// IsActive reports whether s counts against the requester's admission cap.
func (s RequestStatus) IsActive() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusProvisioning:
		return true
	}
	return false
}

// ActiveStatuses returns the status set counted by admission control.
func ActiveStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusPending,
		RequestStatusApproved,
		RequestStatusProvisioning,
	}
}

// ValidateTransition returns an InvalidTransition error when from→to is not
// in the transition table, nil otherwise.
func ValidateTransition(from, to RequestStatus) error {
	if !from.CanTransitionTo(to) {
		return NewInvalidTransitionError(from, to)
	}
	return nil
}

// Request is a user-submitted request for a provisioned game server.
type Request struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	PublicRef     string        `gorm:"size:36;not null;uniqueIndex" json:"public_ref"`
	RequesterID   string        `gorm:"size:64;not null;index" json:"requester_id"`
	RequesterName string        `gorm:"size:120;not null" json:"requester_name"`
	GameName      string        `gorm:"size:64;not null" json:"game_name"`
	Status        RequestStatus `gorm:"type:varchar(24);not null;default:'pending';index" json:"status"`

	// DecisionReason carries the denial reason or the provisioning failure
	// reason, depending on the terminal state.
	DecisionReason string  `gorm:"type:text" json:"decision_reason,omitempty"`
	AdminID        *string `gorm:"size:64" json:"admin_id,omitempty"`

	// PanelAccountRef is recorded when the account step commits so retried
	// provisioning attempts reuse it. PanelInstanceRef is persisted only with
	// the completed transition.
	PanelAccountRef  string `gorm:"size:120" json:"panel_account_ref,omitempty"`
	PanelInstanceRef string `gorm:"size:120" json:"panel_instance_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Request) TableName() string {
	return "requests"
}

// Age returns how long ago the request was created.
func (r *Request) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}
