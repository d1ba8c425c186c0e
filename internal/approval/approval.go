// Package approval manages tenant business-profile approval.
//
// A tenant's initial status is a pure function of its business-type risk
// classification: high-risk types start pending, low-risk types start
// approved. After creation the status only changes through explicit
// approval actions, each of which appends to an immutable audit log.
package approval

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRecordNotFound = errors.New("approval: record not found")
	ErrRecordExists   = errors.New("approval: record already exists for tenant")
)

// Status is the tenant's business-profile approval state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSuspended Status = "suspended"
)

// BusinessType classifies what kind of business a tenant runs.
// The classification drives the default approval status and the risk
// tier used by the risk engine.
type BusinessType string

const (
	BusinessRetail        BusinessType = "retail"
	BusinessEducation     BusinessType = "education"
	BusinessHealthcare    BusinessType = "healthcare"
	BusinessFoodBeverage  BusinessType = "food_beverage"
	BusinessTravel        BusinessType = "travel"
	BusinessFinance       BusinessType = "finance"
	BusinessCrypto        BusinessType = "crypto"
	BusinessGambling      BusinessType = "gambling"
	BusinessMultiLevel    BusinessType = "multi_level_marketing"
	BusinessOther         BusinessType = "other"
)

// highRiskTypes start pending and require human review before sending.
var highRiskTypes = map[BusinessType]bool{
	BusinessFinance:    true,
	BusinessCrypto:     true,
	BusinessGambling:   true,
	BusinessMultiLevel: true,
}

// IsHighRisk reports whether a business type requires manual review.
func IsHighRisk(bt BusinessType) bool {
	return highRiskTypes[bt]
}

// DefaultStatusFor returns the initial approval status for a business type.
func DefaultStatusFor(bt BusinessType) Status {
	if IsHighRisk(bt) {
		return StatusPending
	}
	return StatusApproved
}

// Record is a tenant's approval state.
type Record struct {
	TenantID      string       `json:"tenantId"`
	BusinessType  BusinessType `json:"businessType"`
	Status        Status       `json:"status"`
	ApprovedBy    string       `json:"approvedBy,omitempty"`
	ApprovedAt    *time.Time   `json:"approvedAt,omitempty"`
	ApprovalNotes string       `json:"approvalNotes,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// LogEntry is one immutable row in the approval audit trail.
type LogEntry struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	Action     string    `json:"action"`
	StatusFrom Status    `json:"statusFrom"`
	StatusTo   Status    `json:"statusTo"`
	ActorID    string    `json:"actorId"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists approval records and their audit log.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, tenantID string) (*Record, error)
	Update(ctx context.Context, rec *Record) error
	AppendLog(ctx context.Context, entry *LogEntry) error
	ListLog(ctx context.Context, tenantID string, limit int) ([]*LogEntry, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Record, error)
}
