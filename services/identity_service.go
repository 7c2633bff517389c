package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/attendance_chat/apperrors"
	"github.com/anjiri1684/attendance_chat/models"
	"github.com/anjiri1684/attendance_chat/repositories"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
)

// IdentityService answers "who is this token" and "who is this id" for the
// chat core. Tokens are HS256 JWTs carrying the admin id in sub.
type IdentityService struct {
	admins   repositories.IAdminRepository
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewIdentityService(admins repositories.IAdminRepository, secret string, tokenTTL time.Duration) *IdentityService {
	return &IdentityService{
		admins:   admins,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

func (s *IdentityService) IssueToken(admin models.Admin) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"id":    admin.ID.String(),
		"sub":   admin.ID.String(),
		"role":  admin.Role,
		"email": admin.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Login checks the password and issues a token. Unknown emails and wrong
// passwords both come back as ErrUnauthorized.
func (s *IdentityService) Login(ctx context.Context, email, password string) (string, *models.Admin, error) {
	admin, err := s.admins.FindByEmail(ctx, email)
	if errors.Is(err, apperrors.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	}

	token, err := s.IssueToken(*admin)
	if err != nil {
		return "", nil, err
	}
	return token, admin, nil
}

func (s *IdentityService) ParseToken(tokenString string) (jwt.MapClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: no token", apperrors.ErrUnauthorized)
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

// Resolve verifies a raw token and loads the principal behind it.
func (s *IdentityService) Resolve(ctx context.Context, tokenString string) (*models.Principal, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	return s.FromClaims(ctx, claims)
}

// FromClaims loads the principal named by already verified claims. The role
// always comes from the directory, not from the token.
func (s *IdentityService) FromClaims(ctx context.Context, claims jwt.MapClaims) (*models.Principal, error) {
	raw, _ := claims["sub"].(string)
	if raw == "" {
		raw, _ = claims["id"].(string)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: token has no user id", apperrors.ErrUnauthorized)
	}

	principal, err := s.Lookup(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("%w: user not found", apperrors.ErrUnauthorized)
	}
	return principal, err
}

func (s *IdentityService) Lookup(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	admin, err := s.admins.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return lo.ToPtr(admin.Principal()), nil
}

func (s *IdentityService) List(ctx context.Context) ([]models.Principal, error) {
	admins, err := s.admins.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(admins, func(a models.Admin, _ int) models.Principal { return a.Principal() }), nil
}
