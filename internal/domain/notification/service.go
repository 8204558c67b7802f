package notification

import (
	"context"

	"github.com/google/uuid"

	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/auth"
	"github.com/readmit/readmit/pkg/pagination"
)

type Service struct {
	repo NotificationRepository
}

func NewService(repo NotificationRepository) *Service {
	return &Service{repo: repo}
}

// Notify creates a notification addressed to the given users. Callers in
// other domains treat failures as non-fatal; the write here is a plain
// insert and does not join the caller's transaction semantics beyond the
// context it is given.
func (s *Service) Notify(ctx context.Context, recipients []uuid.UUID, title, message string) error {
	if len(recipients) == 0 {
		return nil
	}
	if title == "" {
		return apperr.New(apperr.Validation, "notification title is required")
	}
	return s.repo.Create(ctx, &Notification{
		Title:      title,
		Message:    message,
		Recipients: recipients,
	})
}

// ForUser lists the actor's notifications, newest first.
func (s *Service) ForUser(ctx context.Context, actor auth.Actor, page pagination.Params) (*pagination.Response, error) {
	list, total, err := s.repo.ListForUser(ctx, actor.ID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	views := make([]*View, len(list))
	for i, n := range list {
		views[i] = &View{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Read:      n.Read(actor.ID),
			CreatedAt: n.CreatedAt,
		}
	}
	return pagination.NewResponse(views, total, page.Limit, page.Offset), nil
}

// MarkRead records that the actor has read the notification. Marking an
// already-read notification is a no-op.
func (s *Service) MarkRead(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, actor.ID)
}
