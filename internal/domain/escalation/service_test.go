package escalation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/readmit/readmit/internal/domain/risk"
	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/auth"
	"github.com/readmit/readmit/pkg/pagination"
)

// mockEscalationRepo guards its state with a mutex so the concurrent
// decide test exercises the compare-and-set the way the database would.
type mockEscalationRepo struct {
	mu          sync.Mutex
	rows        map[uuid.UUID]*Escalation
	seq         int
	lastDecided uuid.UUID
}

func newMockEscalationRepo() *mockEscalationRepo {
	return &mockEscalationRepo{rows: make(map[uuid.UUID]*Escalation)}
}

func (m *mockEscalationRepo) Create(_ context.Context, e *Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.PatientID == e.PatientID && existing.Status == StatusPending {
			return apperr.New(apperr.Conflict, "patient %s already has a pending escalation", e.PatientID)
		}
	}
	e.ID = uuid.New()
	m.seq++
	now := time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Status = StatusPending
	cp := *e
	m.rows[e.ID] = &cp
	return nil
}

func (m *mockEscalationRepo) GetByID(_ context.Context, id uuid.UUID) (*Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "escalation not found")
	}
	cp := *e
	return &cp, nil
}

func (m *mockEscalationRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Escalation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Escalation
	for _, e := range m.rows {
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.PatientID != "" && e.PatientID != f.PatientID {
			continue
		}
		if f.RequestedBy != uuid.Nil && e.RequestedBy != f.RequestedBy {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockEscalationRepo) ListForPatient(ctx context.Context, patientID string) ([]*Escalation, error) {
	list, _, err := m.List(ctx, Filter{PatientID: patientID}, 1000, 0)
	return list, err
}

func (m *mockEscalationRepo) Decide(_ context.Context, id uuid.UUID, status string, note *string, decidedBy uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok || e.Status != StatusPending {
		return false, nil
	}
	e.Status = status
	e.RejectionNote = note
	e.DecidedBy = &decidedBy
	e.UpdatedAt = at
	m.lastDecided = id
	return true, nil
}

// revertLast undoes the most recent decision, standing in for the rollback
// the real store performs when a later step of the transaction fails.
func (m *mockEscalationRepo) revertLast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rows[m.lastDecided]; ok {
		e.Status = StatusPending
		e.RejectionNote = nil
		e.DecidedBy = nil
	}
}

type mockAssignments struct {
	assigned map[uuid.UUID]map[string]bool
}

func (m *mockAssignments) IsAssigned(_ context.Context, userID uuid.UUID, patientID string) (bool, error) {
	return m.assigned[userID][patientID], nil
}

type mockRiskStore struct {
	mu     sync.Mutex
	levels map[string]risk.Level
	fail   error
}

func (m *mockRiskStore) UpdatePatientRisk(_ context.Context, patientID string, level risk.Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.levels[patientID] = level
	return nil
}

func (m *mockRiskStore) level(patientID string) risk.Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[patientID]
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

func (s *recordingSink) Publish(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) byType(t string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type mockAdmins struct {
	ids []uuid.UUID
}

func (m *mockAdmins) AdminIDs(_ context.Context) ([]uuid.UUID, error) {
	return m.ids, nil
}

type fixture struct {
	svc       *Service
	repo      *mockEscalationRepo
	risks     *mockRiskStore
	sink      *recordingSink
	clinician auth.Actor
	admin     auth.Actor
}

// the passthrough runner mirrors the real one's contract: the repo revert
// stands in for rollback when fn fails after the CAS.
func newFixture() *fixture {
	repo := newMockEscalationRepo()
	clinician := auth.Actor{ID: uuid.New(), Username: "dr.patel", Role: auth.RoleUser}
	admin := auth.Actor{ID: uuid.New(), Username: "admin", Role: auth.RoleAdmin}
	assignments := &mockAssignments{assigned: map[uuid.UUID]map[string]bool{
		clinician.ID: {"P100": true, "P200": true},
	}}
	risks := &mockRiskStore{levels: map[string]risk.Level{"P100": risk.Medium, "P200": risk.Low}}
	sink := &recordingSink{}
	admins := &mockAdmins{ids: []uuid.UUID{admin.ID}}

	f := &fixture{repo: repo, risks: risks, sink: sink, clinician: clinician, admin: admin}
	f.svc = NewService(repo, assignments, risks, sink, admins, f.runTx, zerolog.Nop())
	return f
}

func (f *fixture) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	// An InvalidState failure means the compare-and-set never applied, so
	// there is nothing to roll back. Anything else undoes the decision.
	if err != nil && !apperr.IsKind(err, apperr.InvalidState) {
		f.repo.revertLast()
	}
	return err
}

func (f *fixture) create(t *testing.T, patientID string) *Escalation {
	t.Helper()
	e, err := f.svc.Create(context.Background(), f.clinician, CreateInput{
		PatientID:   patientID,
		OldRisk:     risk.Medium,
		NewRisk:     risk.High,
		Description: "new labs",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return e
}

func TestCreatePending(t *testing.T) {
	f := newFixture()
	e := f.create(t, "P100")

	if e.Status != StatusPending {
		t.Errorf("status = %s, want pending", e.Status)
	}
	if e.RejectionNote != nil {
		t.Errorf("rejection_note set on create: %v", *e.RejectionNote)
	}
	if e.RequestedBy != f.clinician.ID {
		t.Errorf("requested_by = %s, want clinician", e.RequestedBy)
	}

	created := f.sink.byType(EventCreated)
	if len(created) != 1 || created[0].Recipient != f.admin.ID {
		t.Errorf("admins not notified of creation: %+v", created)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()
	base := CreateInput{PatientID: "P100", OldRisk: risk.Medium, NewRisk: risk.High, Description: "new labs"}

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"same risk", func(in *CreateInput) { in.NewRisk = in.OldRisk }},
		{"bogus new risk", func(in *CreateInput) { in.NewRisk = "critical" }},
		{"bogus old risk", func(in *CreateInput) { in.OldRisk = "unknown" }},
		{"empty description", func(in *CreateInput) { in.Description = "   " }},
		{"missing patient", func(in *CreateInput) { in.PatientID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := f.svc.Create(context.Background(), f.clinician, in)
			if !apperr.IsKind(err, apperr.Validation) {
				t.Fatalf("expected Validation, got %v", err)
			}
		})
	}
}

func TestCreateRequiresAssignment(t *testing.T) {
	f := newFixture()
	stranger := auth.Actor{ID: uuid.New(), Username: "dr.smith", Role: auth.RoleUser}

	_, err := f.svc.Create(context.Background(), stranger, CreateInput{
		PatientID:   "P100",
		OldRisk:     risk.Medium,
		NewRisk:     risk.High,
		Description: "new labs",
	})
	if !apperr.IsKind(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestCreateDuplicatePendingConflict(t *testing.T) {
	f := newFixture()
	f.create(t, "P100")

	_, err := f.svc.Create(context.Background(), f.clinician, CreateInput{
		PatientID:   "P100",
		OldRisk:     risk.Medium,
		NewRisk:     risk.Low,
		Description: "second opinion",
	})
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}

	// A different patient is fine.
	if _, err := f.svc.Create(context.Background(), f.clinician, CreateInput{
		PatientID:   "P200",
		OldRisk:     risk.Low,
		NewRisk:     risk.Medium,
		Description: "worsening vitals",
	}); err != nil {
		t.Fatalf("create for other patient: %v", err)
	}
}

func TestAcceptUpdatesRisk(t *testing.T) {
	f := newFixture()
	e := f.create(t, "P100")

	decided, err := f.svc.Decide(context.Background(), f.admin, e.ID, Decision{Accept: true})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != StatusAccepted {
		t.Errorf("status = %s, want accepted", decided.Status)
	}
	if decided.DecidedBy == nil || *decided.DecidedBy != f.admin.ID {
		t.Errorf("decided_by not stamped: %v", decided.DecidedBy)
	}
	if got := f.risks.level("P100"); got != risk.High {
		t.Errorf("patient risk = %s, want high", got)
	}

	// The requester hears about the acceptance.
	accepted := f.sink.byType(EventAccepted)
	if len(accepted) != 1 || accepted[0].Recipient != f.clinician.ID {
		t.Errorf("requester not notified: %+v", accepted)
	}

	// list reflects the transition.
	resp, err := f.svc.List(context.Background(), f.admin, Filter{PatientID: "P100"}, pagination.Params{Limit: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	list := resp.Data.([]*Escalation)
	if len(list) != 1 || list[0].Status != StatusAccepted {
		t.Errorf("list does not reflect decision: %+v", list)
	}
}

func TestRejectRequiresNote(t *testing.T) {
	f := newFixture()
	e := f.create(t, "P200")

	_, err := f.svc.Decide(context.Background(), f.admin, e.ID, Decision{Accept: false, RejectionNote: "  "})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected Validation, got %v", err)
	}

	// Record unchanged.
	got, err := f.svc.Get(context.Background(), f.admin, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPending || got.RejectionNote != nil {
		t.Errorf("record mutated by failed reject: %+v", got)
	}
}

func TestRejectStoresNoteAndNotifies(t *testing.T) {
	f := newFixture()
	e := f.create(t, "P200")

	decided, err := f.svc.Decide(context.Background(), f.admin, e.ID, Decision{Accept: false, RejectionNote: "insufficient evidence"})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != StatusRejected {
		t.Errorf("status = %s, want rejected", decided.Status)
	}
	if decided.RejectionNote == nil || *decided.RejectionNote != "insufficient evidence" {
		t.Errorf("rejection_note = %v", decided.RejectionNote)
	}
	// Risk untouched on reject.
	if got := f.risks.level("P200"); got != risk.Low {
		t.Errorf("patient risk changed on reject: %s", got)
	}
	rejected := f.sink.byType(EventRejected)
	if len(rejected) != 1 || rejected[0].Recipient != f.clinician.ID {
		t.Errorf("requester not notified of rejection: %+v", rejected)
	}
}

func TestDecideForbiddenForNonAdmin(t *testing.T) {
	f := newFixture()
	e := f.create(t, "P100")

	_, err := f.svc.Decide(context.Background(), f.clinician, e.ID, Decision{Accept: true})
	if !apperr.IsKind(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestDecideTwiceInvalidState(t *testing.T) {
	f := newFixture()
	e := f.create(t, "P100")

	if _, err := f.svc.Decide(context.Background(), f.admin, e.ID, Decision{Accept: true}); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	// Retrying either decision on a settled escalation fails the same way.
	if _, err := f.svc.Decide(context.Background(), f.admin, e.ID, Decision{Accept: true}); !apperr.IsKind(err, apperr.InvalidState) {
		t.Fatalf("expected InvalidState on accept retry, got %v", err)
	}
	if _, err := f.svc.Decide(context.Background(), f.admin, e.ID, Decision{Accept: false, RejectionNote: "n"}); !apperr.IsKind(err, apperr.InvalidState) {
		t.Fatalf("expected InvalidState on reject retry, got %v", err)
	}
}

func TestDecideUnknownNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Decide(context.Background(), f.admin, uuid.New(), Decision{Accept: true})
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestAcceptRiskStoreFailureStaysPending(t *testing.T) {
	f := newFixture()
	e := f.create(t, "P100")
	f.risks.fail = apperr.New(apperr.Dependency, "risk store unavailable")

	_, err := f.svc.Decide(context.Background(), f.admin, e.ID, Decision{Accept: true})
	if !apperr.IsKind(err, apperr.Dependency) {
		t.Fatalf("expected Dependency, got %v", err)
	}

	got, err := f.svc.Get(context.Background(), f.admin, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("escalation marked %s despite failed risk update", got.Status)
	}
	if len(f.sink.byType(EventAccepted)) != 0 {
		t.Error("acceptance event emitted for a rolled-back decision")
	}

	// The retry succeeds once the dependency recovers.
	f.risks.fail = nil
	decided, err := f.svc.Decide(context.Background(), f.admin, e.ID, Decision{Accept: true})
	if err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if decided.Status != StatusAccepted || f.risks.level("P100") != risk.High {
		t.Errorf("retry did not apply: %+v risk=%s", decided, f.risks.level("P100"))
	}
}

func TestSinkFailureDoesNotAffectTransition(t *testing.T) {
	f := newFixture()
	e := f.create(t, "P100")
	f.sink.fail = apperr.New(apperr.Dependency, "sink down")

	decided, err := f.svc.Decide(context.Background(), f.admin, e.ID, Decision{Accept: true})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != StatusAccepted {
		t.Errorf("status = %s, want accepted", decided.Status)
	}
	if got := f.risks.level("P100"); got != risk.High {
		t.Errorf("risk = %s, want high", got)
	}
}

func TestConcurrentDecideExactlyOneWinner(t *testing.T) {
	f := newFixture()
	e := f.create(t, "P100")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Decide(context.Background(), f.admin, e.ID, Decision{Accept: true})
		}(i)
	}
	close(start)
	wg.Wait()

	var successes, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperr.IsKind(err, apperr.InvalidState):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || invalid != 1 {
		t.Fatalf("got %d successes and %d InvalidState, want exactly 1 and 1", successes, invalid)
	}
	got, _ := f.svc.Get(context.Background(), f.admin, e.ID)
	if got.Status != StatusAccepted {
		t.Errorf("final status = %s, want accepted", got.Status)
	}
}

func TestResubmissionAfterRejection(t *testing.T) {
	f := newFixture()
	e := f.create(t, "P100")

	if _, err := f.svc.Decide(context.Background(), f.admin, e.ID, Decision{Accept: false, RejectionNote: "need more data"}); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	// A new request for the same patient is allowed once the first settles,
	// and the rejected record stays in the history.
	second := f.create(t, "P100")
	history, err := f.svc.HistoryForPatient(context.Background(), "P100")
	if err != nil {
		t.Fatalf("HistoryForPatient: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].ID != second.ID {
		t.Errorf("newest first ordering violated")
	}
}

func TestListFiltersAndVisibility(t *testing.T) {
	f := newFixture()
	e1 := f.create(t, "P100")
	f.create(t, "P200")
	if _, err := f.svc.Decide(context.Background(), f.admin, e1.ID, Decision{Accept: true}); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	resp, err := f.svc.List(context.Background(), f.admin, Filter{Status: StatusPending}, pagination.Params{Limit: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("pending total = %d, want 1", resp.Total)
	}

	if _, err := f.svc.List(context.Background(), f.admin, Filter{Status: "bogus"}, pagination.Params{Limit: 20}); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected Validation for bad status filter, got %v", err)
	}

	// A non-admin only sees their own requests even with an open filter.
	other := auth.Actor{ID: uuid.New(), Username: "dr.smith", Role: auth.RoleUser}
	resp, err = f.svc.List(context.Background(), other, Filter{}, pagination.Params{Limit: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Total != 0 {
		t.Errorf("stranger sees %d escalations, want 0", resp.Total)
	}
}

func TestGetVisibility(t *testing.T) {
	f := newFixture()
	e := f.create(t, "P100")

	if _, err := f.svc.Get(context.Background(), f.clinician, e.ID); err != nil {
		t.Errorf("requester blocked from own escalation: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), f.admin, e.ID); err != nil {
		t.Errorf("admin blocked: %v", err)
	}
	other := auth.Actor{ID: uuid.New(), Role: auth.RoleUser}
	if _, err := f.svc.Get(context.Background(), other, e.ID); !apperr.IsKind(err, apperr.Forbidden) {
		t.Errorf("expected Forbidden for stranger, got %v", err)
	}
}
