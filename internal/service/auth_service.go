package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, personID int64) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, personID int64, ts time.Time) error
	UpdatePassword(ctx context.Context, personID int64, passwordHash string, updatedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID int64) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
	FindAPIToken(ctx context.Context, key string) (*models.APIToken, error)
	ReplaceAPIToken(ctx context.Context, token *models.APIToken) error
	DeleteAPIToken(ctx context.Context, userID int64) error
	CreateResetToken(ctx context.Context, token *models.PasswordResetToken) error
	FindResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error)
	DeleteResetTokens(ctx context.Context, userID int64) error
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type authPersonRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Person, error)
	FindByEmail(ctx context.Context, email string) (*models.Person, error)
	ManagedIDs(ctx context.Context, id int64) ([]int64, error)
	Create(ctx context.Context, person *models.Person) error
}

// OIDCExchanger trades an authorization code for the verified email of the
// signed-in identity.
type OIDCExchanger interface {
	ExchangeEmail(ctx context.Context, code string) (string, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	ResetTokenTTL      time.Duration
	Issuer             string
	Audience           []string
	SingleSession      bool
	TokenCacheSize     int
	TokenCacheTTL      time.Duration
}

// CreateSuperuserRequest is the payload of the createsuperuser command. A
// person with the email is created when none exists yet.
type CreateSuperuserRequest struct {
	Email       string      `validate:"required,email"`
	Password    string      `validate:"required,min=8"`
	FirstName   string      `validate:"required,max=50"`
	LastName    string      `validate:"required,max=50"`
	DateOfBirth models.Date `validate:"-"`
	Sex         models.Sex  `validate:"omitempty,oneof=M F"`
}

// TokenCollection reports how many expired tokens a garbage collection run removed.
type TokenCollection struct {
	ResetTokens   int64
	RefreshTokens int64
}

// AuthService provides authentication use cases.
type AuthService struct {
	repo      authUserRepository
	persons   authPersonRepository
	tx        txRunner
	oidc      OIDCExchanger
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	tokens    *expirable.LRU[string, int64]
	clock     Clock
}

// NewAuthService constructs an AuthService instance. oidc may be nil when no
// identity provider is configured.
func NewAuthService(repo authUserRepository, persons authPersonRepository, tx txRunner, oidc OIDCExchanger, notifier Notifier, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.TokenCacheSize <= 0 {
		config.TokenCacheSize = 1024
	}
	if config.TokenCacheTTL <= 0 {
		config.TokenCacheTTL = time.Minute
	}
	if config.ResetTokenTTL <= 0 {
		config.ResetTokenTTL = 24 * time.Hour
	}
	return &AuthService{
		repo:      repo,
		persons:   persons,
		tx:        tx,
		oidc:      oidc,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		config:    config,
		tokens:    expirable.NewLRU[string, int64](config.TokenCacheSize, nil, config.TokenCacheTTL),
		clock:     systemClock,
	}
}

// WithClock overrides the time source.
func (s *AuthService) WithClock(clock Clock) *AuthService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (s *AuthService) now() time.Time { return s.clock().UTC() }

// Login authenticates a user by password and returns issued tokens.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}

	if user.PasswordHash == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	return s.startSession(ctx, user, req.IP, req.UserAgent)
}

// LoginOIDC exchanges an identity provider code and signs in the user owning
// the person with the verified email.
func (s *AuthService) LoginOIDC(ctx context.Context, req models.OIDCLoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid oidc payload")
	}
	if s.oidc == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "oidc login is not configured")
	}

	email, err := s.oidc.ExchangeEmail(ctx, req.Code)
	if err != nil {
		s.logger.Warn("oidc code exchange failed", zap.Error(err))
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "identity provider rejected the login")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "no account for this identity")
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}

	return s.startSession(ctx, user, req.IP, req.UserAgent)
}

func (s *AuthService) startSession(ctx context.Context, user *models.User, ip, userAgent string) (*models.LoginResponse, error) {
	person, err := s.persons.FindByID(ctx, user.PersonID)
	if err != nil {
		return nil, repoError(err, "person not found", "failed to load person")
	}

	if s.config.SingleSession {
		if err := s.repo.RevokeUserRefreshTokens(ctx, user.PersonID); err != nil {
			s.logger.Warn("failed to revoke previous refresh tokens", zap.Error(err))
		}
	}

	accessToken, _, err := s.generateAccessToken(user, person, person.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}

	refreshToken, err := s.issueRefreshToken(ctx, user.PersonID, ip, userAgent)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLastLogin(ctx, user.PersonID, s.now()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	s.logger.Info("user signed in", zap.Int64("user_id", user.PersonID), zap.String("ip", ip))

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     s.now(),
		User:         userInfo(user, person, person.ID),
	}, nil
}

func (s *AuthService) issueRefreshToken(ctx context.Context, userID int64, ip, userAgent string) (*models.RefreshToken, error) {
	value, err := randomToken()
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create refresh token")
	}
	token := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     value,
		ExpiresAt: s.now().Add(s.config.RefreshTokenExpiry),
		CreatedAt: s.now(),
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := s.repo.CreateRefreshToken(ctx, token); err != nil {
		return nil, appErrors.Internal(err, "failed to persist refresh token")
	}
	return token, nil
}

// RefreshToken exchanges a refresh token for a new token pair. The new access
// token acts as the user's own person.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid refresh payload")
	}

	stored, err := s.repo.FindRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Internal(err, "failed to fetch refresh token")
	}
	if stored.Revoked || s.now().After(stored.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	user, err := s.repo.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	person, err := s.persons.FindByID(ctx, user.PersonID)
	if err != nil {
		return nil, repoError(err, "person not found", "failed to load person")
	}

	if err := s.repo.RevokeRefreshToken(ctx, stored.ID, s.now()); err != nil {
		s.logger.Warn("failed to revoke used refresh token", zap.Error(err))
	}

	accessToken, _, err := s.generateAccessToken(user, person, person.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to generate access token")
	}
	next, err := s.issueRefreshToken(ctx, user.PersonID, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	return &models.RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: next.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     s.now(),
	}, nil
}

// Logout revokes the provided refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, userID int64) error {
	stored, err := s.repo.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return appErrors.Internal(err, "failed to load refresh token")
	}
	if stored.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}
	if err := s.repo.RevokeRefreshToken(ctx, stored.ID, s.now()); err != nil {
		return appErrors.Internal(err, "failed to revoke refresh token")
	}
	return nil
}

// ChangePassword changes the password of the given user.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid change password payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return repoError(err, "user not found", "failed to load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}
	return s.setPassword(ctx, userID, req.NewPassword)
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Internal(err, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash), s.now()); err != nil {
		return repoError(err, "user not found", "failed to update password")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password change", zap.Error(err))
	}
	return nil
}

// ForgotPassword emails a single-use reset code. Unknown addresses succeed
// silently.
func (s *AuthService) ForgotPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid forgot password payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return appErrors.Internal(err, "failed to fetch user")
	}

	value, err := randomToken()
	if err != nil {
		return appErrors.Internal(err, "failed to create reset token")
	}
	token := &models.PasswordResetToken{
		Token:     value,
		UserID:    user.PersonID,
		ExpiresAt: s.now().Add(s.config.ResetTokenTTL),
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateResetToken(ctx, token); err != nil {
		return appErrors.Internal(err, "failed to persist reset token")
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, passwordResetMessage(req.Email, value, s.config.ResetTokenTTL))
	}
	return nil
}

// ResetPassword consumes a reset code and sets the new password.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ConfirmResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid reset password payload")
	}

	stored, err := s.repo.FindResetToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Invalid("token", "reset token is invalid")
		}
		return appErrors.Internal(err, "failed to load reset token")
	}
	if s.now().After(stored.ExpiresAt) {
		return appErrors.Invalid("token", "reset token has expired")
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.setPassword(ctx, stored.UserID, req.NewPassword); err != nil {
			return err
		}
		if err := s.repo.DeleteResetTokens(ctx, stored.UserID); err != nil {
			return appErrors.Internal(err, "failed to consume reset token")
		}
		return nil
	})
}

// SwitchPerson issues an access token acting as personID, which must be the
// user's own person or one it manages.
func (s *AuthService) SwitchPerson(ctx context.Context, principal *models.Principal, req models.SwitchPersonRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid switch payload")
	}
	if principal == nil || principal.User == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}

	managed, err := s.persons.ManagedIDs(ctx, principal.User.PersonID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load managed persons")
	}
	if req.PersonID != principal.User.PersonID && !containsID(managed, req.PersonID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "person is not managed by the user")
	}

	own, err := s.persons.FindByID(ctx, principal.User.PersonID)
	if err != nil {
		return nil, repoError(err, "person not found", "failed to load person")
	}
	accessToken, _, err := s.generateAccessToken(principal.User, own, req.PersonID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	return &models.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    s.now(),
		User:        userInfo(principal.User, own, req.PersonID),
	}, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, jwt.WithTimeFunc(s.clock))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Principal resolves the identity behind validated access token claims.
func (s *AuthService) Principal(ctx context.Context, claims *models.JWTClaims) (*models.Principal, error) {
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user no longer exists")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return s.principal(ctx, user, claims.ActivePersonID, false)
}

// AuthenticateToken resolves an "Authorization: Token <key>" header value.
func (s *AuthService) AuthenticateToken(ctx context.Context, key string) (*models.Principal, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing token")
	}

	userID, ok := s.tokens.Get(key)
	if !ok {
		token, err := s.repo.FindAPIToken(ctx, key)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
			}
			return nil, appErrors.Internal(err, "failed to load token")
		}
		userID = token.UserID
		s.tokens.Add(key, userID)
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.tokens.Remove(key)
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return s.principal(ctx, user, user.PersonID, true)
}

func (s *AuthService) principal(ctx context.Context, user *models.User, activeID int64, viaToken bool) (*models.Principal, error) {
	person, err := s.persons.FindByID(ctx, user.PersonID)
	if err != nil {
		return nil, repoError(err, "person not found", "failed to load person")
	}
	managed, err := s.persons.ManagedIDs(ctx, user.PersonID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load managed persons")
	}

	active := person
	if activeID != 0 && activeID != person.ID {
		if !containsID(managed, activeID) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "active person is no longer managed")
		}
		if active, err = s.persons.FindByID(ctx, activeID); err != nil {
			return nil, repoError(err, "active person not found", "failed to load active person")
		}
	}

	return &models.Principal{
		User:             user,
		Person:           person,
		ActivePerson:     active,
		ManagedPersonIDs: managed,
		ViaToken:         viaToken,
	}, nil
}

// IssueAPIToken replaces the user's REST token with a fresh 40-hex key.
func (s *AuthService) IssueAPIToken(ctx context.Context, userID int64) (*models.APIToken, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return nil, appErrors.Internal(err, "failed to generate token")
	}
	token := &models.APIToken{Key: hex.EncodeToString(buf), UserID: userID, CreatedAt: s.now()}
	if err := s.repo.ReplaceAPIToken(ctx, token); err != nil {
		return nil, repoError(err, "user not found", "failed to store token")
	}
	s.forgetTokens(userID)
	return token, nil
}

// RevokeAPIToken deletes the user's REST token.
func (s *AuthService) RevokeAPIToken(ctx context.Context, userID int64) error {
	if err := s.repo.DeleteAPIToken(ctx, userID); err != nil {
		return appErrors.Internal(err, "failed to revoke token")
	}
	s.forgetTokens(userID)
	return nil
}

func (s *AuthService) forgetTokens(userID int64) {
	for _, key := range s.tokens.Keys() {
		if id, ok := s.tokens.Peek(key); ok && id == userID {
			s.tokens.Remove(key)
		}
	}
}

// CreateSuperuser creates a superuser, creating its person when the email
// is not yet known.
func (s *AuthService) CreateSuperuser(ctx context.Context, req CreateSuperuserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid superuser payload")
	}

	var user *models.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		person, err := s.persons.FindByEmail(ctx, req.Email)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			email := req.Email
			sex := req.Sex
			if sex == "" {
				sex = models.SexMale
			}
			person = &models.Person{
				Email:       &email,
				FirstName:   req.FirstName,
				LastName:    req.LastName,
				DateOfBirth: req.DateOfBirth.Time,
				Sex:         sex,
				PersonType:  models.PersonTypeAdult,
			}
			if err := s.persons.Create(ctx, person); err != nil {
				return repoError(err, "", "failed to create person")
			}
		case err != nil:
			return appErrors.Internal(err, "failed to look up person")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return appErrors.Internal(err, "failed to hash password")
		}
		user = &models.User{PersonID: person.ID, PasswordHash: string(hash), IsSuperuser: true}
		if err := s.repo.Create(ctx, user); err != nil {
			return repoError(err, "", "failed to create user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("superuser created", zap.Int64("user_id", user.PersonID))
	return user, nil
}

// CollectExpiredTokens deletes expired reset and refresh tokens.
func (s *AuthService) CollectExpiredTokens(ctx context.Context) (TokenCollection, error) {
	var out TokenCollection
	var err error
	if out.ResetTokens, err = s.repo.DeleteExpiredResetTokens(ctx, s.now()); err != nil {
		return out, appErrors.Internal(err, "failed to delete expired reset tokens")
	}
	if out.RefreshTokens, err = s.repo.DeleteExpiredRefreshTokens(ctx, s.now()); err != nil {
		return out, appErrors.Internal(err, "failed to delete expired refresh tokens")
	}
	return out, nil
}

func (s *AuthService) generateAccessToken(user *models.User, person *models.Person, activePersonID int64) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID:         user.PersonID,
		ActivePersonID: activePersonID,
		Email:          person.EmailAddress(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   strconv.FormatInt(user.PersonID, 10),
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func userInfo(user *models.User, person *models.Person, activePersonID int64) models.UserInfo {
	return models.UserInfo{
		ID:             user.PersonID,
		ActivePersonID: activePersonID,
		Email:          person.EmailAddress(),
		FullName:       person.FullName(),
		IsSuperuser:    user.IsSuperuser,
		Permissions:    user.Permissions,
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
