package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/sendloka/sendloka/internal/idgen"
)

// Service is the only mutation path for approval records. Every status
// change appends an audit log entry before the caller sees the result.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates an approval service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Register creates the approval record for a new tenant. The initial
// status follows the business-type classification; the creation itself
// is logged so the trail starts at row one.
func (s *Service) Register(ctx context.Context, tenantID string, bt BusinessType) (*Record, error) {
	now := s.now()
	rec := &Record{
		TenantID:     tenantID,
		BusinessType: bt,
		Status:       DefaultStatusFor(bt),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	entry := &LogEntry{
		ID:         idgen.WithPrefix("aplog_"),
		TenantID:   tenantID,
		Action:     "register",
		StatusFrom: rec.Status,
		StatusTo:   rec.Status,
		ActorID:    "system",
		Notes:      fmt.Sprintf("initial status from business type %s", bt),
		CreatedAt:  now,
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		return nil, err
	}
	return rec, nil
}

// Approve transitions a tenant to approved.
func (s *Service) Approve(ctx context.Context, tenantID, actorID, notes string) (*Record, error) {
	return s.transition(ctx, tenantID, "approve", StatusApproved, actorID, notes)
}

// Reject transitions a tenant to rejected.
func (s *Service) Reject(ctx context.Context, tenantID, actorID, notes string) (*Record, error) {
	return s.transition(ctx, tenantID, "reject", StatusRejected, actorID, notes)
}

// Suspend transitions a tenant's business profile to suspended.
func (s *Service) Suspend(ctx context.Context, tenantID, actorID, notes string) (*Record, error) {
	return s.transition(ctx, tenantID, "suspend", StatusSuspended, actorID, notes)
}

// Get returns a tenant's approval record.
func (s *Service) Get(ctx context.Context, tenantID string) (*Record, error) {
	return s.store.Get(ctx, tenantID)
}

// AuditLog returns the most recent audit entries for a tenant.
func (s *Service) AuditLog(ctx context.Context, tenantID string, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListLog(ctx, tenantID, limit)
}

// PendingReview lists tenants awaiting manual review.
func (s *Service) PendingReview(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListByStatus(ctx, StatusPending, limit)
}

func (s *Service) transition(ctx context.Context, tenantID, action string, to Status, actorID, notes string) (*Record, error) {
	rec, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	from := rec.Status
	now := s.now()
	rec.Status = to
	rec.UpdatedAt = now
	if to == StatusApproved {
		rec.ApprovedBy = actorID
		rec.ApprovedAt = &now
		rec.ApprovalNotes = notes
	}

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}

	entry := &LogEntry{
		ID:         idgen.WithPrefix("aplog_"),
		TenantID:   tenantID,
		Action:     action,
		StatusFrom: from,
		StatusTo:   to,
		ActorID:    actorID,
		Notes:      notes,
		CreatedAt:  now,
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		return nil, err
	}
	return rec, nil
}
