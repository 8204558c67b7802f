package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/auth"
)

// Notifier fans out in-app notifications. Failures never fail the task
// operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, recipients []uuid.UUID, title, message string) error
}

type Service struct {
	repo     TaskRepository
	notifier Notifier
	log      zerolog.Logger
}

func NewService(repo TaskRepository, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, log: log}
}

// CreateInput carries the fields for assigning a task.
type CreateInput struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	PatientID   *string    `json:"patient_id"`
	AssignedTo  uuid.UUID  `json:"assigned_to"`
	DueDate     *time.Time `json:"due_date"`
}

// Create assigns a task and notifies the assignee.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperr.New(apperr.Validation, "title is required")
	}
	if in.AssignedTo == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "assigned_to is required")
	}

	t := &Task{
		Title:       in.Title,
		Description: in.Description,
		PatientID:   in.PatientID,
		AssignedBy:  actor.ID,
		AssignedTo:  in.AssignedTo,
		Status:      StatusPending,
		DueDate:     in.DueDate,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	if t.AssignedTo != actor.ID {
		msg := fmt.Sprintf("%s assigned you a task: %s", actor.Username, t.Title)
		if err := s.notifier.Notify(ctx, []uuid.UUID{t.AssignedTo}, "New task", msg); err != nil {
			s.log.Warn().Err(err).Str("task_id", t.ID.String()).Msg("task notification failed")
		}
	}
	return t, nil
}

// Mine lists the actor's tasks, optionally filtered by status.
func (s *Service) Mine(ctx context.Context, actor auth.Actor, status string) ([]*Task, error) {
	if status != "" && status != StatusPending && status != StatusCompleted && status != StatusCancelled {
		return nil, apperr.New(apperr.Validation, "invalid task status: %s", status)
	}
	list, err := s.repo.ListAssignedTo(ctx, actor.ID, status)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Task{}
	}
	return list, nil
}

// Complete marks a pending task done. Only the assignee may complete it,
// and completed or cancelled tasks stay as they are.
func (s *Service) Complete(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.AssignedTo != actor.ID {
		return nil, apperr.New(apperr.Forbidden, "only the assignee can complete a task")
	}
	if t.Status != StatusPending {
		return nil, apperr.New(apperr.InvalidState, "task is already %s", t.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusCompleted); err != nil {
		return nil, err
	}
	t.Status = StatusCompleted
	now := time.Now().UTC()
	t.CompletedAt = &now

	if t.AssignedBy != actor.ID {
		msg := fmt.Sprintf("%s completed the task: %s", actor.Username, t.Title)
		if err := s.notifier.Notify(ctx, []uuid.UUID{t.AssignedBy}, "Task completed", msg); err != nil {
			s.log.Warn().Err(err).Str("task_id", t.ID.String()).Msg("task notification failed")
		}
	}
	return t, nil
}

// Cancel drops a pending task. The assigner or an admin may cancel.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && t.AssignedBy != actor.ID {
		return nil, apperr.New(apperr.Forbidden, "only the assigner can cancel a task")
	}
	if t.Status != StatusPending {
		return nil, apperr.New(apperr.InvalidState, "task is already %s", t.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusCancelled); err != nil {
		return nil, err
	}
	t.Status = StatusCancelled
	return t, nil
}
