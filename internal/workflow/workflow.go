// Package workflow owns the mandate and candidature state machines: who may
// be assigned, when statuses move, and the compensated two-row write that
// accepting a candidature requires.
package workflow

import (
	"context"
	"errors"
	"log"

	"argus/internal/domain"
	"argus/internal/store"
)

// Event kinds emitted toward the notification sender and audit log.
const (
	EventCandidatureAccepted    = "candidature.accepted"
	EventCandidatureRejected    = "candidature.rejected"
	EventCandidatureRestored    = "candidature.restored"
	EventInvestigatorAssigned   = "investigator.assigned"
	EventInvestigatorUnassigned = "investigator.unassigned"
	EventMandateCompleted       = "mandate.completed"
	EventMandateReopened        = "mandate.reopened"
)

// Store is the subset of persistence the workflow depends on. The sqlite
// store satisfies it; tests substitute wrappers to force failures.
type Store interface {
	GetMandate(ctx context.Context, id string) (domain.Mandate, error)
	UpdateMandate(ctx context.Context, id string, patch store.MandatePatch, pred *store.MandatePredicate) error
	GetCandidature(ctx context.Context, id string) (domain.Candidature, error)
	UpdateCandidature(ctx context.Context, id string, patch store.CandidaturePatch) error
	GetMandateWithCandidature(ctx context.Context, candidatureID string) (domain.MandateWithCandidature, error)
	AcceptedCandidature(ctx context.Context, mandateID string) (domain.Candidature, error)
	IsOwner(ctx context.Context, userID, agencyID string) (bool, error)
	RecordEvent(ctx context.Context, evtType, entityKind, entityID, actorID string, payload map[string]any) error
}

// Decision is the outcome of the external assignment-eligibility check.
type Decision struct {
	Valid  bool
	Reason string
}

type EligibilityChecker interface {
	ValidateAssignment(ctx context.Context, mandateID, investigatorID string) (Decision, error)
}

// NotificationSender delivers best-effort notifications. Errors are swallowed
// by the workflow; implementations must not block the request path.
type NotificationSender interface {
	Notify(ctx context.Context, event, recipientID, mandateID, title string) error
}

// NavResolver maps a completed transition to a suggested next-page URL.
type NavResolver interface {
	ResolveRedirect(event, mandateID, investigatorID string) string
}

// Caller is the pre-resolved identity of the requester. The surrounding
// transport (session cookie, JWT, API key) resolves it before calling in.
type Caller struct {
	UserID string
}

// Outcome is returned by operations that suggest a follow-up page.
type Outcome struct {
	RedirectHint string
}

// Service orchestrates mandate/candidature transitions against injected
// collaborators.
type Service struct {
	Store       Store
	Eligibility EligibilityChecker
	Notifier    NotificationSender
	Nav         NavResolver
	Logger      *log.Logger
}

func (s Service) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// authorize verifies the caller is authenticated and owns the mandate's
// agency. Every mutating operation runs this first.
func (s Service) authorize(ctx context.Context, caller Caller, agencyID string) *Error {
	if caller.UserID == "" {
		return fail(KindUnauthenticated, "authentication required")
	}
	ok, err := s.Store.IsOwner(ctx, caller.UserID, agencyID)
	if err != nil {
		return storeFail(err, "ownership check")
	}
	if !ok {
		return fail(KindUnauthorized, "caller is not the agency owner")
	}
	return nil
}

func (s Service) checkEligibility(ctx context.Context, mandateID, investigatorID string) *Error {
	if s.Eligibility == nil {
		return nil
	}
	decision, err := s.Eligibility.ValidateAssignment(ctx, mandateID, investigatorID)
	if err != nil {
		return storeFail(err, "eligibility check")
	}
	if !decision.Valid {
		return fail(KindEligibilityRejected, "%s", decision.Reason)
	}
	return nil
}

// notify delivers a best-effort notification; failures are logged, never
// propagated.
func (s Service) notify(ctx context.Context, event, recipientID, mandateID, title string) {
	if s.Notifier == nil || recipientID == "" {
		return
	}
	if err := s.Notifier.Notify(ctx, event, recipientID, mandateID, title); err != nil {
		s.logger().Printf("workflow: notify %s for mandate %s failed: %v", event, mandateID, err)
	}
}

func (s Service) audit(ctx context.Context, evtType, entityKind, entityID, actorID string, payload map[string]any) {
	if err := s.Store.RecordEvent(ctx, evtType, entityKind, entityID, actorID, payload); err != nil {
		s.logger().Printf("workflow: audit %s for %s %s failed: %v", evtType, entityKind, entityID, err)
	}
}

func (s Service) redirect(event, mandateID, investigatorID string) string {
	if s.Nav == nil {
		return ""
	}
	return s.Nav.ResolveRedirect(event, mandateID, investigatorID)
}

// AcceptCandidature accepts an investigator's candidature and assigns them to
// the mandate. The candidature row is written first because it is cheap to
// roll back; if the guarded mandate write then fails, the candidature is
// reverted before the error is returned.
func (s Service) AcceptCandidature(ctx context.Context, caller Caller, candidatureID, mandateID, investigatorID string) (Outcome, error) {
	m, err := s.Store.GetMandate(ctx, mandateID)
	if err != nil {
		return Outcome{}, storeFail(err, "mandate")
	}
	if werr := s.authorize(ctx, caller, m.AgencyID); werr != nil {
		return Outcome{}, werr
	}
	c, err := s.Store.GetCandidature(ctx, candidatureID)
	if err != nil {
		return Outcome{}, storeFail(err, "candidature")
	}
	if c.MandateID != mandateID || c.InvestigatorID != investigatorID {
		return Outcome{}, fail(KindInvalidState, "candidature %s does not match mandate %s and investigator %s", candidatureID, mandateID, investigatorID)
	}
	// Rejected candidatures must go through UnrejectCandidature, which also
	// enforces that the mandate is still open.
	if c.Status == domain.CandidatureRejected {
		return Outcome{}, fail(KindInvalidState, "candidature is rejected; restore it before accepting")
	}
	if werr := s.checkEligibility(ctx, mandateID, investigatorID); werr != nil {
		return Outcome{}, werr
	}
	if m.Assigned() && *m.AssignedTo != investigatorID {
		return Outcome{}, fail(KindAlreadyAssignedToOther, "mandate already assigned to another investigator")
	}
	if m.Terminal() {
		return Outcome{}, fail(KindTerminalState, "mandate is %s", m.Status)
	}

	if err := s.Store.UpdateCandidature(ctx, candidatureID, store.CandidaturePatch{Status: domain.CandidatureAccepted}); err != nil {
		return Outcome{}, storeFail(err, "candidature")
	}
	patch := store.MandatePatch{AssignedTo: &investigatorID, Status: domain.MandateInProgress}
	pred := &store.MandatePredicate{UnassignedOr: investigatorID}
	if err := s.Store.UpdateMandate(ctx, mandateID, patch, pred); err != nil {
		// Compensate: the candidature write already landed but the mandate
		// write lost; revert the candidature before surfacing the error.
		if rbErr := s.Store.UpdateCandidature(ctx, candidatureID, store.CandidaturePatch{Status: domain.CandidatureInterested}); rbErr != nil {
			s.logger().Printf("workflow: INCONSISTENT candidature %s left accepted after failed assignment of mandate %s (rollback: %v); manual repair needed", candidatureID, mandateID, rbErr)
		}
		if errors.Is(err, store.ErrConflict) {
			return Outcome{}, fail(KindAlreadyAssignedToOther, "mandate was assigned concurrently")
		}
		return Outcome{}, storeFail(err, "mandate")
	}

	s.notify(ctx, EventCandidatureAccepted, investigatorID, mandateID, m.Title)
	s.audit(ctx, EventCandidatureAccepted, "candidature", candidatureID, caller.UserID, map[string]any{
		"mandate_id":      mandateID,
		"investigator_id": investigatorID,
	})
	return Outcome{RedirectHint: s.redirect(EventCandidatureAccepted, mandateID, investigatorID)}, nil
}

// RejectCandidature marks a candidature rejected. The current assignee cannot
// be rejected; unassign first.
func (s Service) RejectCandidature(ctx context.Context, caller Caller, candidatureID string) error {
	joined, err := s.Store.GetMandateWithCandidature(ctx, candidatureID)
	if err != nil {
		return storeFail(err, "candidature")
	}
	if werr := s.authorize(ctx, caller, joined.Mandate.AgencyID); werr != nil {
		return werr
	}
	c, m := joined.Candidature, joined.Mandate
	if m.Assigned() && *m.AssignedTo == c.InvestigatorID {
		return fail(KindInvalidState, "investigator is assigned to the mandate; unassign first")
	}
	if c.Status == domain.CandidatureRejected {
		return fail(KindAlreadyInState, "candidature already rejected")
	}
	if err := s.Store.UpdateCandidature(ctx, candidatureID, store.CandidaturePatch{Status: domain.CandidatureRejected}); err != nil {
		return storeFail(err, "candidature")
	}
	s.notify(ctx, EventCandidatureRejected, c.InvestigatorID, m.ID, m.Title)
	s.audit(ctx, EventCandidatureRejected, "candidature", candidatureID, caller.UserID, map[string]any{
		"mandate_id": m.ID,
	})
	return nil
}

// UnrejectCandidature restores a rejected candidature to interested, only
// while the mandate is still in the open pool.
func (s Service) UnrejectCandidature(ctx context.Context, caller Caller, candidatureID string) error {
	joined, err := s.Store.GetMandateWithCandidature(ctx, candidatureID)
	if err != nil {
		return storeFail(err, "candidature")
	}
	if werr := s.authorize(ctx, caller, joined.Mandate.AgencyID); werr != nil {
		return werr
	}
	if joined.Candidature.Status != domain.CandidatureRejected {
		return fail(KindInvalidState, "candidature is %s, not rejected", joined.Candidature.Status)
	}
	if joined.Mandate.Status != domain.MandateOpen {
		return fail(KindInvalidState, "mandate is %s; interest can only be restored while open", joined.Mandate.Status)
	}
	if err := s.Store.UpdateCandidature(ctx, candidatureID, store.CandidaturePatch{Status: domain.CandidatureInterested}); err != nil {
		return storeFail(err, "candidature")
	}
	s.audit(ctx, EventCandidatureRestored, "candidature", candidatureID, caller.UserID, map[string]any{
		"mandate_id": joined.Mandate.ID,
	})
	return nil
}

// UnassignInvestigator removes the mandate's assignee and returns it to the
// open pool. The accepted candidature, when one exists, is reverted to
// interested first so no dangling acceptance survives; if the mandate write
// then fails, the candidature is restored.
func (s Service) UnassignInvestigator(ctx context.Context, caller Caller, mandateID string) error {
	m, err := s.Store.GetMandate(ctx, mandateID)
	if err != nil {
		return storeFail(err, "mandate")
	}
	if werr := s.authorize(ctx, caller, m.AgencyID); werr != nil {
		return werr
	}
	if !m.Assigned() {
		return fail(KindInvalidState, "mandate has no assignee")
	}
	if m.Status == domain.MandateCompleted {
		return fail(KindTerminalState, "mandate is completed")
	}
	removed := *m.AssignedTo

	accepted, err := s.Store.AcceptedCandidature(ctx, mandateID)
	hasAccepted := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeFail(err, "candidature")
	}
	if hasAccepted {
		if err := s.Store.UpdateCandidature(ctx, accepted.ID, store.CandidaturePatch{Status: domain.CandidatureInterested}); err != nil {
			return storeFail(err, "candidature")
		}
	}
	if err := s.Store.UpdateMandate(ctx, mandateID, store.MandatePatch{ClearAssignee: true, Status: domain.MandateOpen}, nil); err != nil {
		if hasAccepted {
			if rbErr := s.Store.UpdateCandidature(ctx, accepted.ID, store.CandidaturePatch{Status: domain.CandidatureAccepted}); rbErr != nil {
				s.logger().Printf("workflow: INCONSISTENT candidature %s left interested after failed unassign of mandate %s (rollback: %v); manual repair needed", accepted.ID, mandateID, rbErr)
			}
		}
		return storeFail(err, "mandate")
	}

	s.notify(ctx, EventInvestigatorUnassigned, removed, mandateID, m.Title)
	s.audit(ctx, EventInvestigatorUnassigned, "mandate", mandateID, caller.UserID, map[string]any{
		"investigator_id": removed,
	})
	return nil
}

// CompleteMandate moves an in-progress mandate to completed. The assignee is
// retained for rating and audit. The agency owner is notified as a reminder
// to rate the investigator.
func (s Service) CompleteMandate(ctx context.Context, caller Caller, mandateID string) (Outcome, error) {
	m, err := s.Store.GetMandate(ctx, mandateID)
	if err != nil {
		return Outcome{}, storeFail(err, "mandate")
	}
	if werr := s.authorize(ctx, caller, m.AgencyID); werr != nil {
		return Outcome{}, werr
	}
	if !m.Assigned() {
		return Outcome{}, fail(KindInvalidState, "mandate has no assignee")
	}
	if m.Status != domain.MandateInProgress {
		return Outcome{}, fail(KindInvalidState, "mandate is %s, not in-progress", m.Status)
	}
	if err := s.Store.UpdateMandate(ctx, mandateID, store.MandatePatch{Status: domain.MandateCompleted}, nil); err != nil {
		return Outcome{}, storeFail(err, "mandate")
	}
	s.notify(ctx, EventMandateCompleted, caller.UserID, mandateID, m.Title)
	s.audit(ctx, EventMandateCompleted, "mandate", mandateID, caller.UserID, map[string]any{
		"investigator_id": *m.AssignedTo,
	})
	return Outcome{RedirectHint: s.redirect(EventMandateCompleted, mandateID, *m.AssignedTo)}, nil
}

// ReopenMandate reverses a completion: back to in-progress when the assignee
// is still set, otherwise back to the open pool.
func (s Service) ReopenMandate(ctx context.Context, caller Caller, mandateID string) error {
	m, err := s.Store.GetMandate(ctx, mandateID)
	if err != nil {
		return storeFail(err, "mandate")
	}
	if werr := s.authorize(ctx, caller, m.AgencyID); werr != nil {
		return werr
	}
	if m.Status != domain.MandateCompleted {
		return fail(KindInvalidState, "mandate is %s, not completed", m.Status)
	}
	target := domain.MandateOpen
	if m.Assigned() {
		target = domain.MandateInProgress
	}
	if err := s.Store.UpdateMandate(ctx, mandateID, store.MandatePatch{Status: target}, nil); err != nil {
		return storeFail(err, "mandate")
	}
	s.audit(ctx, EventMandateReopened, "mandate", mandateID, caller.UserID, map[string]any{
		"status": target,
	})
	return nil
}

// DirectAssignInvestigator assigns an investigator without a candidature,
// for mandates posted to a single pre-selected investigator.
func (s Service) DirectAssignInvestigator(ctx context.Context, caller Caller, mandateID, investigatorID string) error {
	m, err := s.Store.GetMandate(ctx, mandateID)
	if err != nil {
		return storeFail(err, "mandate")
	}
	if werr := s.authorize(ctx, caller, m.AgencyID); werr != nil {
		return werr
	}
	if werr := s.checkEligibility(ctx, mandateID, investigatorID); werr != nil {
		return werr
	}
	if m.Assigned() {
		return fail(KindAlreadyAssigned, "mandate already has an assignee")
	}
	if m.Status != domain.MandateOpen {
		return fail(KindInvalidState, "mandate is %s, not open", m.Status)
	}
	patch := store.MandatePatch{AssignedTo: &investigatorID, Status: domain.MandateInProgress}
	pred := &store.MandatePredicate{UnassignedOr: investigatorID}
	if err := s.Store.UpdateMandate(ctx, mandateID, patch, pred); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fail(KindAlreadyAssigned, "mandate was assigned concurrently")
		}
		return storeFail(err, "mandate")
	}
	s.notify(ctx, EventInvestigatorAssigned, investigatorID, mandateID, m.Title)
	s.audit(ctx, EventInvestigatorAssigned, "mandate", mandateID, caller.UserID, map[string]any{
		"investigator_id": investigatorID,
	})
	return nil
}
