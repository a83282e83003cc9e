package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/rupeeplan/api/internal/domain"
	"github.com/rupeeplan/api/internal/platform/verification"
	"github.com/rupeeplan/api/internal/repositories"
)

const (
	userIDPrefix      = "usr_"
	passwordMinLength = 8
	// bcrypt only hashes the first 72 bytes, so longer passwords are rejected
	// instead of being silently truncated.
	passwordMaxLength = 72

	accountRoleUser = "user"
)

var (
	// ErrAccountInvalidInput indicates validation failures for account operations.
	ErrAccountInvalidInput = errors.New("account: invalid input")
	// ErrAccountNotFound indicates the account could not be located.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrAccountConflict signals a duplicate registration or conflicting update.
	ErrAccountConflict = errors.New("account: conflict")
	// ErrAccountUnauthorized covers failed credentials and rejected verification codes.
	ErrAccountUnauthorized = errors.New("account: unauthorized")
	// ErrAccountNotVerified is returned when a login arrives before the email was confirmed.
	ErrAccountNotVerified = errors.New("account: email not verified")
)

// VerificationCodeStore issues and redeems single-use email verification codes.
type VerificationCodeStore interface {
	Issue(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) error
	TTL() time.Duration
}

// SessionIssuer mints bearer tokens for authenticated accounts.
type SessionIssuer interface {
	Issue(userID, email string, roles []string) (string, time.Time, error)
}

// VerificationMailer delivers the verification code email synchronously.
type VerificationMailer interface {
	SendVerificationCode(ctx context.Context, cmd VerificationCodeCommand) error
}

// AccountServiceDeps bundles collaborators required to construct an AccountService.
type AccountServiceDeps struct {
	Users       repositories.UserRepository
	Codes       VerificationCodeStore
	Sessions    SessionIssuer
	Mailer      VerificationMailer
	BcryptCost  int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type accountService struct {
	users      repositories.UserRepository
	codes      VerificationCodeStore
	sessions   SessionIssuer
	mailer     VerificationMailer
	bcryptCost int
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewAccountService wires dependencies into a concrete AccountService implementation.
func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Users == nil {
		return nil, errors.New("account service: user repository is required")
	}
	if deps.Codes == nil {
		return nil, errors.New("account service: verification code store is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("account service: session issuer is required")
	}
	if deps.Mailer == nil {
		return nil, errors.New("account service: verification mailer is required")
	}

	cost := deps.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return userIDPrefix + ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &accountService{
		users:      deps.Users,
		codes:      deps.Codes,
		sessions:   deps.Sessions,
		mailer:     deps.Mailer,
		bcryptCost: cost,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *accountService) Register(ctx context.Context, cmd RegisterAccountCommand) (UserAccount, error) {
	email, err := normalizeEmailAddress(cmd.Email)
	if err != nil {
		return UserAccount{}, fmt.Errorf("%w: %v", ErrAccountInvalidInput, err)
	}
	fullName, err := normalizePersonName(cmd.FullName)
	if err != nil {
		return UserAccount{}, fmt.Errorf("%w: %v", ErrAccountInvalidInput, err)
	}
	phone, err := normalizePhoneNumber(cmd.Phone)
	if err != nil {
		return UserAccount{}, fmt.Errorf("%w: %v", ErrAccountInvalidInput, err)
	}
	if err := validatePassword(cmd.Password); err != nil {
		return UserAccount{}, fmt.Errorf("%w: %v", ErrAccountInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.bcryptCost)
	if err != nil {
		return UserAccount{}, fmt.Errorf("account: hash password: %w", err)
	}

	now := s.now()
	account := domain.UserAccount{
		ID:            s.newID(),
		Email:         email,
		FullName:      fullName,
		Phone:         phone,
		PasswordHash:  string(hash),
		Roles:         []string{accountRoleUser},
		EmailVerified: false,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.users.Insert(ctx, account); err != nil {
		mapped := s.mapAccountError(err)
		if errors.Is(mapped, ErrAccountConflict) {
			return UserAccount{}, fmt.Errorf("%w: email already registered", ErrAccountConflict)
		}
		return UserAccount{}, fmt.Errorf("account: insert account: %w", err)
	}

	// The account exists either way; a failed delivery is recoverable through
	// the resend endpoint.
	if err := s.sendVerificationCode(ctx, account); err != nil {
		s.logger(ctx, "account.verification_send_failed", map[string]any{
			"userId": account.ID,
			"error":  err.Error(),
		})
	}

	return account, nil
}

func (s *accountService) Login(ctx context.Context, cmd LoginCommand) (Session, error) {
	email, err := normalizeEmailAddress(cmd.Email)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrAccountInvalidInput, err)
	}
	if strings.TrimSpace(cmd.Password) == "" {
		return Session{}, fmt.Errorf("%w: password is required", ErrAccountInvalidInput)
	}

	account, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(s.mapAccountError(err), ErrAccountNotFound) {
			return Session{}, fmt.Errorf("%w: invalid credentials", ErrAccountUnauthorized)
		}
		return Session{}, fmt.Errorf("account: load account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(cmd.Password)); err != nil {
		return Session{}, fmt.Errorf("%w: invalid credentials", ErrAccountUnauthorized)
	}
	if !account.IsActive {
		return Session{}, fmt.Errorf("%w: account is disabled", ErrAccountUnauthorized)
	}
	if !account.EmailVerified {
		return Session{}, ErrAccountNotVerified
	}

	token, expiresAt, err := s.sessions.Issue(account.ID, account.Email, account.Roles)
	if err != nil {
		return Session{}, fmt.Errorf("account: issue session: %w", err)
	}

	now := s.now()
	account.LastLoginAt = &now
	account.UpdatedAt = now
	if updated, err := s.users.Update(ctx, account); err != nil {
		s.logger(ctx, "account.last_login_update_failed", map[string]any{
			"userId": account.ID,
			"error":  err.Error(),
		})
	} else {
		account = updated
	}

	return Session{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

func (s *accountService) RequestVerification(ctx context.Context, cmd RequestVerificationCommand) error {
	email, err := normalizeEmailAddress(cmd.Email)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAccountInvalidInput, err)
	}

	account, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		mapped := s.mapAccountError(err)
		if errors.Is(mapped, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("account: load account: %w", err)
	}
	if account.EmailVerified {
		return fmt.Errorf("%w: email already verified", ErrAccountConflict)
	}

	if err := s.sendVerificationCode(ctx, account); err != nil {
		return fmt.Errorf("account: send verification code: %w", err)
	}
	return nil
}

func (s *accountService) VerifyEmail(ctx context.Context, cmd VerifyEmailCommand) (UserAccount, error) {
	email, err := normalizeEmailAddress(cmd.Email)
	if err != nil {
		return UserAccount{}, fmt.Errorf("%w: %v", ErrAccountInvalidInput, err)
	}
	code := strings.TrimSpace(cmd.Code)
	if code == "" {
		return UserAccount{}, fmt.Errorf("%w: verification code is required", ErrAccountInvalidInput)
	}

	account, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		mapped := s.mapAccountError(err)
		if errors.Is(mapped, ErrAccountNotFound) {
			return UserAccount{}, ErrAccountNotFound
		}
		return UserAccount{}, fmt.Errorf("account: load account: %w", err)
	}

	if err := s.codes.Verify(ctx, email, code); err != nil {
		switch {
		case errors.Is(err, verification.ErrCodeExpired):
			return UserAccount{}, fmt.Errorf("%w: verification code expired", ErrAccountUnauthorized)
		case errors.Is(err, verification.ErrCodeMismatch):
			return UserAccount{}, fmt.Errorf("%w: verification code mismatch", ErrAccountUnauthorized)
		case errors.Is(err, verification.ErrTooManyAttempts):
			return UserAccount{}, fmt.Errorf("%w: too many verification attempts", ErrAccountUnauthorized)
		}
		return UserAccount{}, fmt.Errorf("account: verify code: %w", err)
	}

	if account.EmailVerified {
		return account, nil
	}

	account.EmailVerified = true
	account.UpdatedAt = s.now()
	updated, err := s.users.Update(ctx, account)
	if err != nil {
		return UserAccount{}, fmt.Errorf("account: mark verified: %w", err)
	}

	s.logger(ctx, "account.email_verified", map[string]any{"userId": updated.ID})
	return updated, nil
}

func (s *accountService) GetAccount(ctx context.Context, userID string) (UserAccount, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserAccount{}, fmt.Errorf("%w: user id is required", ErrAccountInvalidInput)
	}

	account, err := s.users.FindByID(ctx, userID)
	if err != nil {
		mapped := s.mapAccountError(err)
		if errors.Is(mapped, ErrAccountNotFound) {
			return UserAccount{}, ErrAccountNotFound
		}
		return UserAccount{}, fmt.Errorf("account: load account: %w", err)
	}
	return account, nil
}

func (s *accountService) sendVerificationCode(ctx context.Context, account domain.UserAccount) error {
	code, err := s.codes.Issue(ctx, account.Email)
	if err != nil {
		return err
	}
	return s.mailer.SendVerificationCode(ctx, VerificationCodeCommand{
		Email:     account.Email,
		FullName:  account.FullName,
		Code:      code,
		ExpiresIn: s.codes.TTL(),
	})
}

func (s *accountService) now() time.Time {
	return s.clock()
}

func (s *accountService) mapAccountError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrAccountNotFound
		case repoErr.IsConflict():
			return ErrAccountConflict
		}
	}
	return err
}

func validatePassword(password string) error {
	if len(password) < passwordMinLength {
		return fmt.Errorf("password must be at least %d characters", passwordMinLength)
	}
	if len(password) > passwordMaxLength {
		return fmt.Errorf("password cannot exceed %d characters", passwordMaxLength)
	}
	return nil
}
