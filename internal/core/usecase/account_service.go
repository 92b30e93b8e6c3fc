package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type AccountService struct {
	users    ports.UserRepository
	sessions *SessionService
	audit    *AuditService
	logger   zerolog.Logger
	hashCost int
	now      func() time.Time
}

func NewAccountService(users ports.UserRepository, sessions *SessionService, audit *AuditService, logger zerolog.Logger) *AccountService {
	return &AccountService{
		users:    users,
		sessions: sessions,
		audit:    audit,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type LoginResult struct {
	User    domain.User
	Session domain.Session
	Token   string
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput, client domain.ClientInfo) (domain.User, error) {
	user, err := s.create(ctx, in, domain.RoleMember)
	if err != nil {
		return domain.User{}, err
	}
	s.audit.record(ctx, domain.AuditLogEntry{
		UserID:       user.ID,
		Action:       "auth.register",
		ResourceType: "user",
		ResourceID:   user.ID,
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
		Severity:     domain.SeverityInfo,
	})
	return user, nil
}

// EnsureAdmin creates an admin account unless the email is already registered.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, password string) (domain.User, error) {
	existing, err := s.users.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}
	return s.create(ctx, RegisterInput{Email: email, Password: password, Name: "Administrator"}, domain.RoleAdmin)
}

func (s *AccountService) create(ctx context.Context, in RegisterInput, role domain.Role) (domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" || !strings.Contains(email, "@") || len(in.Password) < minPasswordLength {
		return domain.User{}, domain.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	s.logger.Info().Str("user_id", user.ID).Str("role", string(role)).Msg("user registered")
	return user, nil
}

// Login checks credentials and opens a session. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, email, password string, client domain.ClientInfo) (LoginResult, error) {
	user, err := s.users.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Str("ip", client.IPAddress).Msg("login for unknown email")
			return LoginResult{}, domain.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.audit.LoginFailed(ctx, user.ID, client, "bad_password")
		return LoginResult{}, domain.ErrInvalidCredentials
	}

	session, token, err := s.sessions.Create(ctx, user.ID, client)
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	s.audit.LoginSucceeded(ctx, session)
	return LoginResult{User: user, Session: session, Token: token}, nil
}

func (s *AccountService) Logout(ctx context.Context, session domain.Session, token string) error {
	if _, err := s.sessions.RevokeByToken(ctx, token); err != nil {
		return err
	}
	s.audit.Logout(ctx, session)
	return nil
}

func (s *AccountService) Get(ctx context.Context, id string) (domain.User, error) {
	if id == "" {
		return domain.User{}, domain.ErrInvalidInput
	}
	return s.users.FindByID(ctx, id)
}
