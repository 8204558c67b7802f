package user

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/auth"
)

type Service struct {
	users  UserRepository
	tokens *auth.TokenIssuer
}

func NewService(users UserRepository, tokens *auth.TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens}
}

var validRoles = map[string]bool{
	auth.RoleAdmin: true,
	auth.RoleUser:  true,
}

// RegisterInput carries the fields for creating a user account.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates a user account. Admin only; new accounts must change
// their password on first login.
func (s *Service) Register(ctx context.Context, actor auth.Actor, in RegisterInput) (*User, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.Forbidden, "only admins can register users")
	}
	if strings.TrimSpace(in.Username) == "" {
		return nil, apperr.New(apperr.Validation, "username is required")
	}
	if strings.TrimSpace(in.Email) == "" {
		return nil, apperr.New(apperr.Validation, "email is required")
	}
	if len(in.Password) < 8 {
		return nil, apperr.New(apperr.Validation, "password must be at least 8 characters")
	}
	if in.Role == "" {
		in.Role = auth.RoleUser
	}
	if !validRoles[in.Role] {
		return nil, apperr.New(apperr.Validation, "invalid role: %s", in.Role)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Username:           in.Username,
		Email:              in.Email,
		PasswordHash:       hash,
		Role:               in.Role,
		MustChangePassword: true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues an access token. Invalid username
// and invalid password produce the same error so the endpoint does not leak
// which accounts exist.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil || !auth.CheckPassword(u.PasswordHash, password) {
		return "", nil, apperr.New(apperr.Validation, "invalid credentials")
	}
	token, err := s.tokens.Issue(auth.Actor{ID: u.ID, Username: u.Username, Role: u.Role}, u.MustChangePassword)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// ChangePassword verifies the old password and installs the new hash,
// clearing the first-login flag.
func (s *Service) ChangePassword(ctx context.Context, actor auth.Actor, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return apperr.New(apperr.Validation, "new password must be at least 8 characters")
	}
	u, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(u.PasswordHash, oldPassword) {
		return apperr.New(apperr.Validation, "incorrect current password")
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, u.ID, hash, false)
}

// Delete removes a user account by username. Admin only; self-deletion is
// refused so the last admin cannot lock everyone out mid-session.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, username string) error {
	if !actor.IsAdmin() {
		return apperr.New(apperr.Forbidden, "only admins can delete users")
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if u.ID == actor.ID {
		return apperr.New(apperr.Validation, "cannot delete your own account")
	}
	return s.users.Delete(ctx, u.ID)
}

// Get returns a single user.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// List returns users, admin only.
func (s *Service) List(ctx context.Context, actor auth.Actor, limit, offset int) ([]*User, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, apperr.New(apperr.Forbidden, "only admins can list users")
	}
	return s.users.List(ctx, limit, offset)
}

// AdminIDs returns the ids of all administrators, used for notification
// fan-out when an escalation is filed.
func (s *Service) AdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.users.ListAdminIDs(ctx)
}
