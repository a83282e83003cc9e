package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/rupeeplan/api/internal/domain"
	pfirestore "github.com/rupeeplan/api/internal/platform/firestore"
)

const (
	userCollection       = "users"
	userEmailsCollection = "user_emails"
)

// UserRepository persists user accounts in Firestore. Email uniqueness is
// enforced through a registry collection keyed by the lowercased address,
// written in the same transaction as the account document.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base, provider: provider}, nil
}

// Insert creates the account and claims its email atomically. A conflict
// error is returned when the email is already registered.
func (r *UserRepository) Insert(ctx context.Context, account domain.UserAccount) error {
	if r == nil || r.base == nil || r.provider == nil {
		return errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(account.ID)
	if userID == "" {
		return errors.New("user repository: user id is required")
	}
	emailKey := strings.ToLower(strings.TrimSpace(account.Email))
	if emailKey == "" {
		return errors.New("user repository: email is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	doc := encodeUserDocument(account)

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		userRef, err := r.base.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		emailRef := client.Collection(userEmailsCollection).Doc(emailKey)

		_, err = tx.Get(emailRef)
		switch {
		case err == nil:
			return status.Error(codes.AlreadyExists, "email already registered")
		case status.Code(err) != codes.NotFound:
			return err
		}

		if err := tx.Create(userRef, doc); err != nil {
			return err
		}
		return tx.Create(emailRef, emailRegistryDocument{
			UserRef:   userID,
			CreatedAt: doc.CreatedAt,
		})
	})
}

// Update replaces the account document. The email address is immutable once
// registered because the uniqueness registry is keyed by it.
func (r *UserRepository) Update(ctx context.Context, account domain.UserAccount) (domain.UserAccount, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.UserAccount{}, errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(account.ID)
	if userID == "" {
		return domain.UserAccount{}, errors.New("user repository: user id is required")
	}

	doc := encodeUserDocument(account)
	if err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var existing userDocument
		if err := snap.DataTo(&existing); err != nil {
			return err
		}
		if existing.Email != doc.Email {
			return status.Error(codes.FailedPrecondition, "account email cannot be changed")
		}
		return tx.Set(docRef, doc)
	}); err != nil {
		return domain.UserAccount{}, err
	}

	latest, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return decodeUserDocument(latest.ID, latest.Data, latest.CreateTime, latest.UpdateTime), nil
}

// FindByID loads the account by its identifier.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserAccount, error) {
	if r == nil || r.base == nil {
		return domain.UserAccount{}, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserAccount{}, errors.New("user repository: user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return decodeUserDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// FindByEmail resolves the account through the email registry.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.UserAccount, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.UserAccount{}, errors.New("user repository not initialised")
	}
	emailKey := strings.ToLower(strings.TrimSpace(email))
	if emailKey == "" {
		return domain.UserAccount{}, errors.New("user repository: email is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.UserAccount{}, err
	}
	snap, err := client.Collection(userEmailsCollection).Doc(emailKey).Get(ctx)
	if err != nil {
		return domain.UserAccount{}, pfirestore.WrapError("user_emails.get", err)
	}
	var registry emailRegistryDocument
	if err := snap.DataTo(&registry); err != nil {
		return domain.UserAccount{}, pfirestore.WrapError("user_emails.decode", err)
	}
	return r.FindByID(ctx, registry.UserRef)
}

type userDocument struct {
	Email         string     `firestore:"email"`
	FullName      string     `firestore:"fullName"`
	Phone         string     `firestore:"phone,omitempty"`
	PasswordHash  string     `firestore:"passwordHash"`
	Roles         []string   `firestore:"roles"`
	EmailVerified bool       `firestore:"emailVerified"`
	IsActive      bool       `firestore:"isActive"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
	LastLoginAt   *time.Time `firestore:"lastLoginAt,omitempty"`
}

type emailRegistryDocument struct {
	UserRef   string    `firestore:"userRef"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func encodeUserDocument(account domain.UserAccount) userDocument {
	doc := userDocument{
		Email:         strings.ToLower(strings.TrimSpace(account.Email)),
		FullName:      strings.TrimSpace(account.FullName),
		Phone:         strings.TrimSpace(account.Phone),
		PasswordHash:  account.PasswordHash,
		Roles:         normaliseRoles(account.Roles),
		EmailVerified: account.EmailVerified,
		IsActive:      account.IsActive,
		CreatedAt:     account.CreatedAt.UTC(),
		UpdatedAt:     account.UpdatedAt.UTC(),
		LastLoginAt:   normalizeTimePointer(account.LastLoginAt),
	}
	if doc.Roles == nil {
		doc.Roles = []string{}
	}
	return doc
}

func decodeUserDocument(id string, doc userDocument, createdAt, updatedAt time.Time) domain.UserAccount {
	return domain.UserAccount{
		ID:            strings.TrimSpace(id),
		Email:         strings.TrimSpace(doc.Email),
		FullName:      strings.TrimSpace(doc.FullName),
		Phone:         strings.TrimSpace(doc.Phone),
		PasswordHash:  doc.PasswordHash,
		Roles:         cloneStringSlice(doc.Roles),
		EmailVerified: doc.EmailVerified,
		IsActive:      doc.IsActive,
		CreatedAt:     chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:     chooseTime(doc.UpdatedAt, updatedAt),
		LastLoginAt:   normalizeTimePointer(doc.LastLoginAt),
	}
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func normaliseRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	uniq := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		trimmed := strings.ToLower(strings.TrimSpace(role))
		if trimmed == "" {
			continue
		}
		uniq[trimmed] = struct{}{}
	}
	if len(uniq) == 0 {
		return nil
	}
	normalised := make([]string, 0, len(uniq))
	for role := range uniq {
		normalised = append(normalised, role)
	}
	sort.Strings(normalised)
	return normalised
}

// Ensure the concrete type satisfies the repository interface.
var _ interface {
	Insert(context.Context, domain.UserAccount) error
	Update(context.Context, domain.UserAccount) (domain.UserAccount, error)
	FindByID(context.Context, string) (domain.UserAccount, error)
	FindByEmail(context.Context, string) (domain.UserAccount, error)
} = (*UserRepository)(nil)

// CollectionName exposes the Firestore collection for migration tooling.
func (r *UserRepository) CollectionName() string {
	return userCollection
}

// DocumentPath constructs the document path for the provided user id.
func (r *UserRepository) DocumentPath(userID string) string {
	return fmt.Sprintf("%s/%s", userCollection, strings.TrimSpace(userID))
}
