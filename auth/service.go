// Package auth registers and logs in users and guards the API with JWTs.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/models"
	"github.com/karthikraju391/farmconnect/otp"
	"github.com/karthikraju391/farmconnect/storage"
	"github.com/shopspring/decimal"
)

// OTPVerifier consumes a one-time code.
type OTPVerifier interface {
	Verify(mobile, code string) error
}

type RegisterRequest struct {
	Username string          `json:"username" validate:"required,min=3,max=30"`
	Mobile   string          `json:"mobile" validate:"required"`
	Password string          `json:"password" validate:"required,min=6,max=72"`
	FullName string          `json:"fullName" validate:"required,max=100"`
	Role     models.Role     `json:"role" validate:"required,oneof=farmer buyer"`
	Location models.Location `json:"location"`
	OTP      string          `json:"otp" validate:"required,numeric,len=6"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session is returned on register and login.
type Session struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

type Service struct {
	log    *slog.Logger
	users  storage.IUserStore
	otp    OTPVerifier
	tokens *Tokens
	now    func() time.Time
}

func NewService(log *slog.Logger, users storage.IUserStore, verifier OTPVerifier, tokens *Tokens) *Service {
	return &Service{log: log, users: users, otp: verifier, tokens: tokens, now: time.Now}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	const op = "auth.Register"
	req.Username = strings.TrimSpace(req.Username)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := models.Validate.Struct(req); err != nil {
		return nil, apperrors.Validation(op, "All fields are required: %v", err)
	}
	if !otp.ValidMobile(req.Mobile) {
		return nil, apperrors.Validation(op, "Please enter a valid 10-digit Indian mobile number")
	}
	if err := s.otp.Verify(req.Mobile, req.OTP); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Validation(op, "%s", apperrors.MessageOf(err))
		}
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.Transient(op, err)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Mobile:       req.Mobile,
		PasswordHash: hash,
		FullName:     req.FullName,
		Role:         req.Role,
		Location:     req.Location,
		Rating:       decimal.Zero,
		IsVerified:   true,
		CreatedAt:    s.now().UTC(),
	}
	if err = s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("User registered", "user", u.ID, "username", u.Username, "role", u.Role)
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	const op = "auth.Login"
	if err := models.Validate.Struct(req); err != nil {
		return nil, apperrors.Validation(op, "Username and password are required")
	}
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthenticated(op, "Invalid username or password")
		}
		return nil, err
	}
	ok, err := ComparePassword(req.Password, u.PasswordHash)
	if err != nil {
		s.log.Error("Stored password hash unreadable", "user", u.ID, "error", err)
		return nil, apperrors.Unauthenticated(op, "Invalid username or password")
	}
	if !ok {
		return nil, apperrors.Unauthenticated(op, "Invalid username or password")
	}
	return s.session(u)
}

func (s *Service) Profile(ctx context.Context, userID string) (models.PublicUser, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.PublicUser{}, err
	}
	return u.Public(), nil
}

func (s *Service) Tokens() *Tokens { return s.tokens }

func (s *Service) session(u *models.User) (*Session, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, apperrors.Transient("auth.session", err)
	}
	return &Session{Token: token, User: u.Public()}, nil
}
