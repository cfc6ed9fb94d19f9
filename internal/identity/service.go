// Package identity manages user records and credential verification.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cassian/api/internal/store"
	"cassian/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for both an unknown email and a wrong
// password, so a caller cannot probe which accounts exist.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ValidationError marks recoverable input problems during registration.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// UserStore is the slice of persistence the identity service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	UpdateUserProfile(ctx context.Context, user store.User) error
}

type Service struct {
	store UserStore
}

func NewService(userStore UserStore) *Service {
	return &Service{store: userStore}
}

type RegisterRequest struct {
	Email           string
	ConfirmEmail    string
	Username        string
	Password        string
	ConfirmPassword string
}

// Register creates a new user. Email and username uniqueness is enforced by
// the store constraint; a violation surfaces as store.ErrDuplicate.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)

	if email == "" || req.Password == "" || username == "" {
		return store.User{}, ValidationError("email, password, and username are required")
	}
	if email != strings.TrimSpace(req.ConfirmEmail) {
		return store.User{}, ValidationError("emails do not match")
	}
	if req.Password != req.ConfirmPassword {
		return store.User{}, ValidationError("passwords do not match")
	}
	if len(req.Password) < 8 {
		return store.User{}, ValidationError("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, err
	}
	return user, nil
}

// VerifyCredentials checks an email/password pair and returns the matching
// user.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, userID string) (store.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

func (s *Service) GetByUsername(ctx context.Context, username string) (store.User, error) {
	return s.store.GetUserByUsername(ctx, username)
}

// List returns every user's public profile.
func (s *Service) List(ctx context.Context) ([]store.PublicProfile, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	profiles := make([]store.PublicProfile, len(users))
	for i, user := range users {
		profiles[i] = user.Public()
	}
	return profiles, nil
}

type ProfileUpdate struct {
	FullName       *string
	About          *string
	WebsiteURL     *string
	GithubURL      *string
	AvatarURL      *string
	CoverURL       *string
	PreferFullName *bool
}

// UpdateProfile edits profile fields only; identity fields stay immutable.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, err
	}

	if update.FullName != nil {
		user.FullName = *update.FullName
	}
	if update.About != nil {
		user.About = *update.About
	}
	if update.WebsiteURL != nil {
		user.WebsiteURL = *update.WebsiteURL
	}
	if update.GithubURL != nil {
		user.GithubURL = *update.GithubURL
	}
	if update.AvatarURL != nil {
		user.AvatarURL = *update.AvatarURL
	}
	if update.PreferFullName != nil {
		user.PreferFullName = *update.PreferFullName
	}
	if update.CoverURL != nil {
		user.CoverURL = *update.CoverURL
	}

	if err := s.store.UpdateUserProfile(ctx, user); err != nil {
		return store.User{}, err
	}
	return user, nil
}
