package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/auth"
)

type mockTaskRepo struct {
	tasks map[uuid.UUID]*Task
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: make(map[uuid.UUID]*Task)}
}

func (m *mockTaskRepo) Create(_ context.Context, t *Task) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	m.tasks[t.ID] = t
	return nil
}

func (m *mockTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "task not found")
	}
	cp := *t
	return &cp, nil
}

func (m *mockTaskRepo) ListAssignedTo(_ context.Context, userID uuid.UUID, status string) ([]*Task, error) {
	var out []*Task
	for _, t := range m.tasks {
		if t.AssignedTo == userID && (status == "" || t.Status == status) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTaskRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	t, ok := m.tasks[id]
	if !ok {
		return apperr.New(apperr.NotFound, "task not found")
	}
	t.Status = status
	return nil
}

type recordingNotifier struct {
	sent []struct {
		recipients []uuid.UUID
		title      string
	}
}

func (n *recordingNotifier) Notify(_ context.Context, recipients []uuid.UUID, title, _ string) error {
	n.sent = append(n.sent, struct {
		recipients []uuid.UUID
		title      string
	}{recipients, title})
	return nil
}

func newTaskService() (*Service, *mockTaskRepo, *recordingNotifier) {
	repo := newMockTaskRepo()
	notifier := &recordingNotifier{}
	return NewService(repo, notifier, zerolog.Nop()), repo, notifier
}

func TestCreateNotifiesAssignee(t *testing.T) {
	svc, _, notifier := newTaskService()
	assigner := auth.Actor{ID: uuid.New(), Username: "dr.patel", Role: auth.RoleUser}
	assignee := uuid.New()

	task, err := svc.Create(context.Background(), assigner, CreateInput{
		Title:      "Call patient P100",
		AssignedTo: assignee,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.Status != StatusPending {
		t.Errorf("status = %s, want pending", task.Status)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].recipients[0] != assignee {
		t.Errorf("assignee not notified: %+v", notifier.sent)
	}
}

func TestCreateSelfAssignSkipsNotification(t *testing.T) {
	svc, _, notifier := newTaskService()
	actor := auth.Actor{ID: uuid.New(), Username: "dr.patel", Role: auth.RoleUser}

	_, err := svc.Create(context.Background(), actor, CreateInput{
		Title:      "Review labs",
		AssignedTo: actor.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("self-assignment should not notify, got %d", len(notifier.sent))
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTaskService()
	actor := auth.Actor{ID: uuid.New(), Role: auth.RoleUser}

	if _, err := svc.Create(context.Background(), actor, CreateInput{AssignedTo: uuid.New()}); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected Validation for missing title, got %v", err)
	}
	if _, err := svc.Create(context.Background(), actor, CreateInput{Title: "x"}); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected Validation for missing assignee, got %v", err)
	}
}

func TestCompleteAssigneeOnly(t *testing.T) {
	svc, _, notifier := newTaskService()
	assigner := auth.Actor{ID: uuid.New(), Username: "dr.patel", Role: auth.RoleUser}
	assignee := auth.Actor{ID: uuid.New(), Username: "dr.chen", Role: auth.RoleUser}

	task, err := svc.Create(context.Background(), assigner, CreateInput{
		Title:      "Call patient",
		AssignedTo: assignee.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Complete(context.Background(), assigner, task.ID); !apperr.IsKind(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden for non-assignee, got %v", err)
	}

	done, err := svc.Complete(context.Background(), assignee, task.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil {
		t.Errorf("task not completed: %+v", done)
	}
	// Assigner told about completion, on top of the assignment notice.
	if len(notifier.sent) != 2 || notifier.sent[1].recipients[0] != assigner.ID {
		t.Errorf("assigner not notified of completion: %+v", notifier.sent)
	}

	if _, err := svc.Complete(context.Background(), assignee, task.ID); !apperr.IsKind(err, apperr.InvalidState) {
		t.Fatalf("expected InvalidState for double complete, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	svc, _, _ := newTaskService()
	assigner := auth.Actor{ID: uuid.New(), Username: "dr.patel", Role: auth.RoleUser}
	assignee := auth.Actor{ID: uuid.New(), Username: "dr.chen", Role: auth.RoleUser}
	admin := auth.Actor{ID: uuid.New(), Username: "admin", Role: auth.RoleAdmin}

	task, _ := svc.Create(context.Background(), assigner, CreateInput{Title: "a", AssignedTo: assignee.ID})

	if _, err := svc.Cancel(context.Background(), assignee, task.ID); !apperr.IsKind(err, apperr.Forbidden) {
		t.Fatalf("expected Forbidden for assignee cancel, got %v", err)
	}
	got, err := svc.Cancel(context.Background(), assigner, task.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}

	other, _ := svc.Create(context.Background(), assigner, CreateInput{Title: "b", AssignedTo: assignee.ID})
	if _, err := svc.Cancel(context.Background(), admin, other.ID); err != nil {
		t.Errorf("admin cancel failed: %v", err)
	}
}

func TestMineFilters(t *testing.T) {
	svc, _, _ := newTaskService()
	assigner := auth.Actor{ID: uuid.New(), Username: "dr.patel", Role: auth.RoleUser}
	assignee := auth.Actor{ID: uuid.New(), Username: "dr.chen", Role: auth.RoleUser}

	a, _ := svc.Create(context.Background(), assigner, CreateInput{Title: "a", AssignedTo: assignee.ID})
	_, _ = svc.Create(context.Background(), assigner, CreateInput{Title: "b", AssignedTo: assignee.ID})
	if _, err := svc.Complete(context.Background(), assignee, a.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	pending, err := svc.Mine(context.Background(), assignee, StatusPending)
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
	all, err := svc.Mine(context.Background(), assignee, "")
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}
	if _, err := svc.Mine(context.Background(), assignee, "bogus"); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected Validation for bad filter, got %v", err)
	}
	none, err := svc.Mine(context.Background(), assigner, "")
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("expected empty slice for assigner, got %v %v", none, err)
	}
}
