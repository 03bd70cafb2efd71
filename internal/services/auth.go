package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/platform/apierr"
	"github.com/venturely/venturely-backend/internal/repos"
	"github.com/venturely/venturely-backend/internal/requestdata"
	"github.com/venturely/venturely-backend/internal/types"
)

type JWTClaims struct {
	jwt.RegisteredClaims
}

type AuthService interface {
	RegisterUser(ctx context.Context, user *types.User) error
	LoginUser(ctx context.Context, email, password string) (string, string, error)
	RefreshUser(ctx context.Context) (string, string, error)
	LogoutUser(ctx context.Context) error
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	GetAccessTTL() time.Duration
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	userTokenRepo repos.UserTokenRepo
	jwtSecretKey  string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewAuthService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) (AuthService, error) {
	if db == nil || log == nil || userRepo == nil || userTokenRepo == nil {
		return nil, fmt.Errorf("db, logger and repos required")
	}
	if strings.TrimSpace(jwtSecretKey) == "" {
		return nil, fmt.Errorf("jwt secret key required")
	}
	return &authService{
		db:            db,
		log:           log.With("service", "AuthService"),
		userRepo:      userRepo,
		userTokenRepo: userTokenRepo,
		jwtSecretKey:  jwtSecretKey,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

func (s *authService) GetAccessTTL() time.Duration { return s.accessTTL }

func (s *authService) RegisterUser(ctx context.Context, user *types.User) error {
	if user == nil {
		return apierr.Validation("missing_user", fmt.Errorf("user required"))
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" {
		return apierr.Validation("missing_email", fmt.Errorf("email required"))
	}
	if strings.TrimSpace(user.Password) == "" {
		return apierr.Validation("missing_password", fmt.Errorf("password required"))
	}

	exists, err := s.userRepo.EmailExists(ctx, nil, user.Email)
	if err != nil {
		return err
	}
	if exists {
		return apierr.Validation("email_in_use", fmt.Errorf("email already registered"))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hashed)
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.userRepo.Create(ctx, tx, []*types.User{user})
		return err
	})
}

func (s *authService) LoginUser(ctx context.Context, email, password string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	users, err := s.userRepo.GetByEmails(ctx, nil, []string{email})
	if err != nil {
		return "", "", err
	}
	if len(users) == 0 {
		return "", "", apierr.Validation("invalid_credentials", fmt.Errorf("unknown email or wrong password"))
	}
	user := users[0]
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", "", apierr.Validation("invalid_credentials", fmt.Errorf("unknown email or wrong password"))
	}

	var accessToken, refreshToken string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.userTokenRepo.GetByUserIDs(ctx, tx, []uuid.UUID{user.ID})
		if err != nil {
			return err
		}
		stale := make([]uuid.UUID, 0, len(existing))
		now := time.Now()
		for _, tok := range existing {
			if tok.ExpiresAt.Before(now) {
				stale = append(stale, tok.ID)
			}
		}
		if err := s.userTokenRepo.DeleteByIDs(ctx, tx, stale); err != nil {
			return err
		}

		accessToken, err = s.generateAccessToken(user)
		if err != nil {
			return err
		}
		refreshToken = uuid.New().String()

		_, err = s.userTokenRepo.Create(ctx, tx, []*types.UserToken{{
			ID:           uuid.New(),
			UserID:       user.ID,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    now.Add(s.refreshTTL),
		}})
		return err
	})
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (s *authService) RefreshUser(ctx context.Context) (string, string, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || strings.TrimSpace(rd.RefreshToken) == "" {
		return "", "", apierr.Validation("missing_refresh_token", fmt.Errorf("refresh token required"))
	}

	var accessToken, refreshToken string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tokens, err := s.userTokenRepo.GetByRefreshTokens(ctx, tx, []string{rd.RefreshToken})
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			return apierr.Validation("invalid_refresh_token", fmt.Errorf("unknown refresh token"))
		}
		old := tokens[0]
		if old.ExpiresAt.Before(time.Now()) {
			_ = s.userTokenRepo.DeleteByIDs(ctx, tx, []uuid.UUID{old.ID})
			return apierr.Validation("refresh_token_expired", fmt.Errorf("refresh token expired"))
		}

		users, err := s.userRepo.GetByIDs(ctx, tx, []uuid.UUID{old.UserID})
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return apierr.NotFound("user_not_found", fmt.Errorf("token user missing"))
		}
		user := users[0]

		accessToken, err = s.generateAccessToken(user)
		if err != nil {
			return err
		}
		refreshToken = uuid.New().String()

		if _, err := s.userTokenRepo.Create(ctx, tx, []*types.UserToken{{
			ID:           uuid.New(),
			UserID:       user.ID,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    time.Now().Add(s.refreshTTL),
		}}); err != nil {
			return err
		}
		return s.userTokenRepo.DeleteByIDs(ctx, tx, []uuid.UUID{old.ID})
	})
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (s *authService) LogoutUser(ctx context.Context) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || strings.TrimSpace(rd.TokenString) == "" {
		return apierr.Validation("missing_token", fmt.Errorf("access token required"))
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tokens, err := s.userTokenRepo.GetByAccessTokens(ctx, tx, []string{rd.TokenString})
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(tokens))
		for _, tok := range tokens {
			ids = append(ids, tok.ID)
		}
		return s.userTokenRepo.DeleteByIDs(ctx, tx, ids)
	})
}

func (s *authService) generateAccessToken(user *types.User) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecretKey))
}

// SetContextFromToken validates the access token and attaches the caller's
// identity to the context for downstream handlers.
func (s *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecretKey), nil
	})
	if err != nil || !token.Valid {
		return ctx, apierr.Validation("invalid_token", fmt.Errorf("invalid access token"))
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, apierr.Validation("invalid_token", fmt.Errorf("invalid token subject"))
	}

	rd := &requestdata.RequestData{
		TokenString: tokenString,
		UserID:      userID,
	}
	tokens, err := s.userTokenRepo.GetByAccessTokens(ctx, nil, []string{tokenString})
	if err != nil {
		s.log.Warn("Failed to load refresh token for request", "error", err)
	} else if len(tokens) > 0 {
		rd.RefreshToken = tokens[0].RefreshToken
	}

	return requestdata.WithRequestData(ctx, rd), nil
}
