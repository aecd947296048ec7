package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"argus/internal/config"
	"argus/internal/db"
	"argus/internal/domain"
	"argus/internal/eligibility"
	"argus/internal/migrate"
	"argus/internal/nav"
	"argus/internal/notify"
	"argus/internal/store"
	"argus/internal/workflow"
)

type testEnv struct {
	Store   store.Store
	Service workflow.Service
	Ctx     context.Context

	Owner          workflow.Caller
	AgencyID       string
	InvestigatorID string
	MandateID      string
	CandidatureID  string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	s := store.Store{DB: conn}
	cfg := config.Default()

	env := testEnv{
		Store:          s,
		Ctx:            ctx,
		Owner:          workflow.Caller{UserID: "owner-1"},
		AgencyID:       "agency-1",
		InvestigatorID: "inv-1",
		MandateID:      "mandate-1",
		CandidatureID:  "cand-1",
	}
	if err := s.InsertAgency(ctx, domain.Agency{ID: env.AgencyID, OwnerUserID: "owner-1", Name: "Sentinel PI", Verified: true}); err != nil {
		t.Fatalf("seed agency: %v", err)
	}
	if err := s.InsertInvestigator(ctx, domain.Investigator{ID: env.InvestigatorID, UserID: "inv-user-1", Name: "Dupont", Verified: true}); err != nil {
		t.Fatalf("seed investigator: %v", err)
	}
	if err := s.InsertMandate(ctx, domain.Mandate{ID: env.MandateID, AgencyID: env.AgencyID, Title: "Surveillance"}); err != nil {
		t.Fatalf("seed mandate: %v", err)
	}
	if err := s.InsertCandidature(ctx, domain.Candidature{ID: env.CandidatureID, MandateID: env.MandateID, InvestigatorID: env.InvestigatorID}); err != nil {
		t.Fatalf("seed candidature: %v", err)
	}
	env.Service = workflow.Service{
		Store:       s,
		Eligibility: eligibility.Checker{Store: s, Config: cfg},
		Notifier:    notify.StoreSender{Store: s},
		Nav:         nav.Resolver{Routes: cfg.Routes},
	}
	return env
}

func (env testEnv) mandate(t *testing.T) domain.Mandate {
	t.Helper()
	m, err := env.Store.GetMandate(env.Ctx, env.MandateID)
	if err != nil {
		t.Fatalf("get mandate: %v", err)
	}
	return m
}

func (env testEnv) candidature(t *testing.T) domain.Candidature {
	t.Helper()
	c, err := env.Store.GetCandidature(env.Ctx, env.CandidatureID)
	if err != nil {
		t.Fatalf("get candidature: %v", err)
	}
	return c
}

func wantKind(t *testing.T, err error, kind workflow.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := workflow.KindOf(err); got != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, got, err)
	}
}

func TestAcceptCandidature(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	m := env.mandate(t)
	if m.Status != domain.MandateInProgress {
		t.Fatalf("expected in-progress, got %s", m.Status)
	}
	if !m.Assigned() || *m.AssignedTo != env.InvestigatorID {
		t.Fatalf("expected assignee %s, got %+v", env.InvestigatorID, m.AssignedTo)
	}
	if env.candidature(t).Status != domain.CandidatureAccepted {
		t.Fatalf("expected candidature accepted")
	}
	if out.RedirectHint != "/agency/mandates/mandate-1" {
		t.Fatalf("unexpected redirect %q", out.RedirectHint)
	}
	notifications, err := env.Store.ListNotifications(env.Ctx, "inv-user-1", 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) != 1 || notifications[0].Kind != workflow.EventCandidatureAccepted {
		t.Fatalf("expected one acceptance notification, got %+v", notifications)
	}
	events, err := env.Store.LatestEvents(env.Ctx, 10, workflow.EventCandidatureAccepted, "", "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(events))
	}
}

func TestAcceptRequiresOwnership(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Service.AcceptCandidature(env.Ctx, workflow.Caller{}, env.CandidatureID, env.MandateID, env.InvestigatorID)
	wantKind(t, err, workflow.KindUnauthenticated)
	_, err = env.Service.AcceptCandidature(env.Ctx, workflow.Caller{UserID: "stranger"}, env.CandidatureID, env.MandateID, env.InvestigatorID)
	wantKind(t, err, workflow.KindUnauthorized)
	if env.candidature(t).Status != domain.CandidatureInterested {
		t.Fatalf("candidature must be untouched")
	}
}

func TestAcceptEligibilityRejected(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Store.SetInvestigatorVerified(env.Ctx, env.InvestigatorID, false); err != nil {
		t.Fatalf("unverify: %v", err)
	}
	_, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID)
	wantKind(t, err, workflow.KindEligibilityRejected)

	if err := env.Store.SetInvestigatorVerified(env.Ctx, env.InvestigatorID, true); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := env.Store.SetInvestigatorSuspended(env.Ctx, env.InvestigatorID, true); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	_, err = env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID)
	wantKind(t, err, workflow.KindEligibilityRejected)
}

func TestAcceptMismatchedCandidature(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, "someone-else")
	wantKind(t, err, workflow.KindInvalidState)
}

func TestAcceptAlreadyAssignedToOther(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Store.InsertInvestigator(env.Ctx, domain.Investigator{ID: "inv-2", UserID: "inv-user-2", Name: "Tremblay", Verified: true}); err != nil {
		t.Fatal(err)
	}
	if err := env.Store.InsertCandidature(env.Ctx, domain.Candidature{ID: "cand-2", MandateID: env.MandateID, InvestigatorID: "inv-2"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, "cand-2", env.MandateID, "inv-2")
	wantKind(t, err, workflow.KindAlreadyAssignedToOther)
	c, err := env.Store.GetCandidature(env.Ctx, "cand-2")
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != domain.CandidatureInterested {
		t.Fatalf("losing candidature must stay interested, got %s", c.Status)
	}
}

func TestAcceptIdempotentForSameInvestigator(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	// The guarded update permits a re-accept of the same investigator.
	if _, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("re-accept of current assignee: %v", err)
	}
}

func TestAcceptRejectedCandidatureBlocked(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Service.RejectCandidature(env.Ctx, env.Owner, env.CandidatureID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID)
	wantKind(t, err, workflow.KindInvalidState)
	if env.candidature(t).Status != domain.CandidatureRejected {
		t.Fatalf("candidature must stay rejected")
	}
	m := env.mandate(t)
	if m.Assigned() || m.Status != domain.MandateOpen {
		t.Fatalf("mandate must stay open and unassigned, got %+v", m)
	}
	// The sanctioned path still works: restore, then accept.
	if err := env.Service.UnrejectCandidature(env.Ctx, env.Owner, env.CandidatureID); err != nil {
		t.Fatalf("unreject: %v", err)
	}
	if _, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("accept after restore: %v", err)
	}
}

func TestAcceptWithoutEligibilityChecker(t *testing.T) {
	env := newTestEnv(t)
	svc := env.Service
	svc.Eligibility = nil
	if _, err := svc.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("accept without checker: %v", err)
	}
	if env.mandate(t).Status != domain.MandateInProgress {
		t.Fatalf("expected in-progress")
	}
}

func TestAcceptTerminalMandate(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Store.UpdateMandate(env.Ctx, env.MandateID, store.MandatePatch{Status: domain.MandateCancelled}, nil); err != nil {
		t.Fatal(err)
	}
	_, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID)
	wantKind(t, err, workflow.KindTerminalState)
}

// failingStore forces the mandate write to fail so the compensating
// candidature rollback can be observed.
type failingStore struct {
	workflow.Store
	failMandateUpdate bool
}

func (f failingStore) UpdateMandate(ctx context.Context, id string, patch store.MandatePatch, pred *store.MandatePredicate) error {
	if f.failMandateUpdate {
		return fmt.Errorf("disk full")
	}
	return f.Store.UpdateMandate(ctx, id, patch, pred)
}

func TestAcceptCompensatesFailedMandateWrite(t *testing.T) {
	env := newTestEnv(t)
	svc := env.Service
	svc.Store = failingStore{Store: env.Store, failMandateUpdate: true}
	_, err := svc.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID)
	wantKind(t, err, workflow.KindStoreUnavailable)
	if env.candidature(t).Status != domain.CandidatureInterested {
		t.Fatalf("candidature must be rolled back to interested")
	}
	m := env.mandate(t)
	if m.Assigned() || m.Status != domain.MandateOpen {
		t.Fatalf("mandate must be untouched, got %+v", m)
	}
}

// racingStore hands the mandate to a rival between the service's pre-read and
// its guarded write, so only the guarded UPDATE can catch the lost race.
type racingStore struct {
	workflow.Store
	raced *bool
	rival string
}

func (r racingStore) UpdateMandate(ctx context.Context, id string, patch store.MandatePatch, pred *store.MandatePredicate) error {
	if !*r.raced {
		*r.raced = true
		rival := r.rival
		if err := r.Store.UpdateMandate(ctx, id, store.MandatePatch{AssignedTo: &rival, Status: domain.MandateInProgress}, nil); err != nil {
			return err
		}
	}
	return r.Store.UpdateMandate(ctx, id, patch, pred)
}

func TestAcceptLosesRaceToConcurrentAssignment(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Store.InsertInvestigator(env.Ctx, domain.Investigator{ID: "inv-2", UserID: "inv-user-2", Name: "Tremblay", Verified: true}); err != nil {
		t.Fatal(err)
	}
	raced := false
	svc := env.Service
	svc.Store = racingStore{Store: env.Store, raced: &raced, rival: "inv-2"}
	_, err := svc.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID)
	wantKind(t, err, workflow.KindAlreadyAssignedToOther)
	if !raced {
		t.Fatalf("rival write never ran")
	}
	if env.candidature(t).Status != domain.CandidatureInterested {
		t.Fatalf("losing candidature must revert to interested")
	}
	m := env.mandate(t)
	if !m.Assigned() || *m.AssignedTo != "inv-2" {
		t.Fatalf("rival assignment must survive, got %+v", m)
	}
}

func TestRejectCandidature(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Service.RejectCandidature(env.Ctx, env.Owner, env.CandidatureID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if env.candidature(t).Status != domain.CandidatureRejected {
		t.Fatalf("expected rejected")
	}
	// A second reject reports the state instead of silently succeeding.
	err := env.Service.RejectCandidature(env.Ctx, env.Owner, env.CandidatureID)
	wantKind(t, err, workflow.KindAlreadyInState)
}

func TestRejectAssignedInvestigatorBlocked(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	err := env.Service.RejectCandidature(env.Ctx, env.Owner, env.CandidatureID)
	wantKind(t, err, workflow.KindInvalidState)
}

func TestUnrejectCandidature(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Service.RejectCandidature(env.Ctx, env.Owner, env.CandidatureID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := env.Service.UnrejectCandidature(env.Ctx, env.Owner, env.CandidatureID); err != nil {
		t.Fatalf("unreject: %v", err)
	}
	if env.candidature(t).Status != domain.CandidatureInterested {
		t.Fatalf("expected interested")
	}
	// Only rejected candidatures can be restored.
	err := env.Service.UnrejectCandidature(env.Ctx, env.Owner, env.CandidatureID)
	wantKind(t, err, workflow.KindInvalidState)
}

func TestUnrejectRequiresOpenMandate(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Service.RejectCandidature(env.Ctx, env.Owner, env.CandidatureID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := env.Store.UpdateMandate(env.Ctx, env.MandateID, store.MandatePatch{Status: domain.MandateCancelled}, nil); err != nil {
		t.Fatal(err)
	}
	err := env.Service.UnrejectCandidature(env.Ctx, env.Owner, env.CandidatureID)
	wantKind(t, err, workflow.KindInvalidState)
}

func TestAssignUnassignRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := env.Service.UnassignInvestigator(env.Ctx, env.Owner, env.MandateID); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	m := env.mandate(t)
	if m.Assigned() || m.Status != domain.MandateOpen {
		t.Fatalf("expected open and unassigned, got %+v", m)
	}
	if env.candidature(t).Status != domain.CandidatureInterested {
		t.Fatalf("accepted candidature must revert to interested")
	}
	// Round trip: the restored candidature can be accepted again.
	if _, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("re-accept: %v", err)
	}
}

func TestUnassignWithoutAssignee(t *testing.T) {
	env := newTestEnv(t)
	err := env.Service.UnassignInvestigator(env.Ctx, env.Owner, env.MandateID)
	wantKind(t, err, workflow.KindInvalidState)
}

func TestUnassignCompletedMandateBlocked(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Service.CompleteMandate(env.Ctx, env.Owner, env.MandateID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	err := env.Service.UnassignInvestigator(env.Ctx, env.Owner, env.MandateID)
	wantKind(t, err, workflow.KindTerminalState)
}

func TestUnassignRestoresCandidatureOnFailedMandateWrite(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	svc := env.Service
	svc.Store = failingStore{Store: env.Store, failMandateUpdate: true}
	err := svc.UnassignInvestigator(env.Ctx, env.Owner, env.MandateID)
	wantKind(t, err, workflow.KindStoreUnavailable)
	if env.candidature(t).Status != domain.CandidatureAccepted {
		t.Fatalf("candidature must be restored to accepted")
	}
}

func TestCompleteMandate(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	out, err := env.Service.CompleteMandate(env.Ctx, env.Owner, env.MandateID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	m := env.mandate(t)
	if m.Status != domain.MandateCompleted {
		t.Fatalf("expected completed, got %s", m.Status)
	}
	if !m.Assigned() {
		t.Fatalf("assignee must be retained for rating")
	}
	if out.RedirectHint != "/agency/mandates/mandate-1/rate/inv-1" {
		t.Fatalf("unexpected redirect %q", out.RedirectHint)
	}
	// The owner gets a completion reminder.
	notifications, err := env.Store.ListNotifications(env.Ctx, "owner-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notifications) != 1 || notifications[0].Kind != workflow.EventMandateCompleted {
		t.Fatalf("expected completion notification, got %+v", notifications)
	}
}

func TestCompleteRequiresInProgress(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Service.CompleteMandate(env.Ctx, env.Owner, env.MandateID)
	wantKind(t, err, workflow.KindInvalidState)
}

func TestReopenMandate(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Service.CompleteMandate(env.Ctx, env.Owner, env.MandateID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := env.Service.ReopenMandate(env.Ctx, env.Owner, env.MandateID); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := env.mandate(t).Status; got != domain.MandateInProgress {
		t.Fatalf("expected in-progress after reopen with assignee, got %s", got)
	}
}

func TestReopenUnassignedGoesToOpen(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Store.UpdateMandate(env.Ctx, env.MandateID, store.MandatePatch{Status: domain.MandateCompleted}, nil); err != nil {
		t.Fatal(err)
	}
	if err := env.Service.ReopenMandate(env.Ctx, env.Owner, env.MandateID); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := env.mandate(t).Status; got != domain.MandateOpen {
		t.Fatalf("expected open after reopen without assignee, got %s", got)
	}
}

func TestReopenRequiresCompleted(t *testing.T) {
	env := newTestEnv(t)
	err := env.Service.ReopenMandate(env.Ctx, env.Owner, env.MandateID)
	wantKind(t, err, workflow.KindInvalidState)
}

func TestDirectAssign(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Service.DirectAssignInvestigator(env.Ctx, env.Owner, env.MandateID, env.InvestigatorID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	m := env.mandate(t)
	if m.Status != domain.MandateInProgress || !m.Assigned() {
		t.Fatalf("expected assigned in-progress mandate, got %+v", m)
	}
	err := env.Service.DirectAssignInvestigator(env.Ctx, env.Owner, env.MandateID, env.InvestigatorID)
	wantKind(t, err, workflow.KindAlreadyAssigned)
}

func TestDirectAssignUnregisteredInvestigator(t *testing.T) {
	env := newTestEnv(t)
	err := env.Service.DirectAssignInvestigator(env.Ctx, env.Owner, env.MandateID, "ghost")
	wantKind(t, err, workflow.KindEligibilityRejected)
}

func TestNotFoundSurfacesAsKind(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Service.AcceptCandidature(env.Ctx, env.Owner, env.CandidatureID, "no-such-mandate", env.InvestigatorID)
	wantKind(t, err, workflow.KindNotFound)
	if !errorsIsKindError(err) {
		t.Fatalf("expected workflow error type")
	}
}

func errorsIsKindError(err error) bool {
	var we *workflow.Error
	return errors.As(err, &we)
}
