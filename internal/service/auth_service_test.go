package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type mockAuthRepo struct {
	users           map[int64]*models.User
	emails          map[string]int64
	refreshTokens   map[string]*models.RefreshToken
	resetTokens     map[string]*models.PasswordResetToken
	apiTokens       map[string]*models.APIToken
	apiTokenLookups int
	lastLogin       map[int64]time.Time
	revokedUsers    []int64
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:         map[int64]*models.User{},
		emails:        map[string]int64{},
		refreshTokens: map[string]*models.RefreshToken{},
		resetTokens:   map[string]*models.PasswordResetToken{},
		apiTokens:     map[string]*models.APIToken{},
		lastLogin:     map[int64]time.Time{},
	}
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	id, ok := m.emails[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m.users[id], nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, personID int64) (*models.User, error) {
	u, ok := m.users[personID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	m.users[user.PersonID] = user
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, personID int64, ts time.Time) error {
	m.lastLogin[personID] = ts
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, personID int64, passwordHash string, updatedAt time.Time) error {
	u, ok := m.users[personID]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID int64) error {
	m.revokedUsers = append(m.revokedUsers, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for k, token := range m.refreshTokens {
		if token.ExpiresAt.Before(now) {
			delete(m.refreshTokens, k)
			n++
		}
	}
	return n, nil
}

func (m *mockAuthRepo) FindAPIToken(ctx context.Context, key string) (*models.APIToken, error) {
	m.apiTokenLookups++
	t, ok := m.apiTokens[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (m *mockAuthRepo) ReplaceAPIToken(ctx context.Context, token *models.APIToken) error {
	_ = m.DeleteAPIToken(ctx, token.UserID)
	m.apiTokens[token.Key] = token
	return nil
}

func (m *mockAuthRepo) DeleteAPIToken(ctx context.Context, userID int64) error {
	for k, t := range m.apiTokens {
		if t.UserID == userID {
			delete(m.apiTokens, k)
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	m.resetTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	t, ok := m.resetTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (m *mockAuthRepo) DeleteResetTokens(ctx context.Context, userID int64) error {
	for k, t := range m.resetTokens {
		if t.UserID == userID {
			delete(m.resetTokens, k)
		}
	}
	return nil
}

func (m *mockAuthRepo) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for k, t := range m.resetTokens {
		if t.ExpiresAt.Before(now) {
			delete(m.resetTokens, k)
			n++
		}
	}
	return n, nil
}

type mockAuthPersons struct {
	persons map[int64]*models.Person
	managed map[int64][]int64
	nextID  int64
}

func (m *mockAuthPersons) FindByID(ctx context.Context, id int64) (*models.Person, error) {
	p, ok := m.persons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (m *mockAuthPersons) FindByEmail(ctx context.Context, email string) (*models.Person, error) {
	for _, p := range m.persons {
		if p.EmailAddress() == email {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthPersons) ManagedIDs(ctx context.Context, id int64) ([]int64, error) {
	return m.managed[id], nil
}

func (m *mockAuthPersons) Create(ctx context.Context, person *models.Person) error {
	m.nextID++
	person.ID = m.nextID
	m.persons[person.ID] = person
	return nil
}

type stubExchanger struct {
	email string
	err   error
}

func (s stubExchanger) ExchangeEmail(ctx context.Context, code string) (string, error) {
	return s.email, s.err
}

func newAuthFixture(t *testing.T) (*AuthService, *mockAuthRepo, *mockAuthPersons, *recordingNotifier) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)

	email := "jana@example.com"
	repo := newMockAuthRepo()
	repo.users[1] = &models.User{PersonID: 1, PasswordHash: string(hash), Permissions: []string{"groups"}}
	repo.emails[email] = 1

	persons := &mockAuthPersons{
		persons: map[int64]*models.Person{
			1: {ID: 1, Email: &email, FirstName: "Jana", LastName: "Nováková", PersonType: models.PersonTypeParent},
			2: {ID: 2, FirstName: "Petr", LastName: "Novák", PersonType: models.PersonTypeChild},
			3: {ID: 3, FirstName: "Cizí", LastName: "Osoba", PersonType: models.PersonTypeChild},
		},
		managed: map[int64][]int64{1: {2}},
		nextID:  10,
	}
	notifier := &recordingNotifier{}
	svc := NewAuthService(repo, persons, passthroughTx{}, stubExchanger{email: email}, notifier, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		ResetTokenTTL:      time.Hour,
	})
	return svc, repo, persons, notifier
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "jana@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, int64(1), res.User.ActivePersonID)
	assert.Equal(t, "Jana Nováková", res.User.FullName)
	assert.Contains(t, repo.lastLogin, int64(1))
	assert.Len(t, repo.refreshTokens, 1)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "jana@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "password"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginOIDC(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	res, err := svc.LoginOIDC(context.Background(), models.OIDCLoginRequest{Code: "abc"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.User.ID)

	svc.oidc = stubExchanger{err: errors.New("invalid_grant")}
	_, err = svc.LoginOIDC(context.Background(), models.OIDCLoginRequest{Code: "abc"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshTokenRotates(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)
	repo.refreshTokens["token"] = &models.RefreshToken{ID: "rt1", UserID: 1, Token: "token", ExpiresAt: time.Now().Add(time.Hour)}

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogoutChecksOwner(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)
	repo.refreshTokens["token"] = &models.RefreshToken{ID: "rt1", UserID: 1, Token: "token", ExpiresAt: time.Now().Add(time.Hour)}

	err := svc.Logout(context.Background(), "token", 2)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Logout(context.Background(), "token", 1))
	assert.True(t, repo.refreshTokens["token"].Revoked)
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)
	oldHash := repo.users[1].PasswordHash

	err := svc.ChangePassword(context.Background(), 1, models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "newpassword"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.ChangePassword(context.Background(), 1, models.ChangePasswordRequest{OldPassword: "password", NewPassword: "newpassword"}))
	assert.NotEqual(t, oldHash, repo.users[1].PasswordHash)
	assert.Equal(t, []int64{1}, repo.revokedUsers)
}

func TestAuthServicePasswordResetFlow(t *testing.T) {
	svc, repo, _, notifier := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.ForgotPassword(ctx, models.ResetPasswordRequest{Email: "ghost@example.com"}))
	assert.Empty(t, notifier.messages)

	require.NoError(t, svc.ForgotPassword(ctx, models.ResetPasswordRequest{Email: "jana@example.com"}))
	require.Len(t, repo.resetTokens, 1)
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, []string{"jana@example.com"}, notifier.messages[0].To)

	var code string
	for k := range repo.resetTokens {
		code = k
	}
	assert.Contains(t, notifier.messages[0].Body, code)

	require.NoError(t, svc.ResetPassword(ctx, models.ConfirmResetPasswordRequest{Token: code, NewPassword: "brandnew1"}))
	assert.Empty(t, repo.resetTokens)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[1].PasswordHash), []byte("brandnew1")))

	err := svc.ResetPassword(ctx, models.ConfirmResetPasswordRequest{Token: code, NewPassword: "brandnew2"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceResetTokenExpired(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)
	repo.resetTokens["old"] = &models.PasswordResetToken{Token: "old", UserID: 1, ExpiresAt: time.Now().Add(-time.Minute)}

	err := svc.ResetPassword(context.Background(), models.ConfirmResetPasswordRequest{Token: "old", NewPassword: "brandnew1"})
	require.Error(t, err)
	assert.Equal(t, "reset token has expired", appErrors.FromError(err).Message)
}

func TestAuthServiceSwitchPerson(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)
	principal := &models.Principal{User: repo.users[1]}

	res, err := svc.SwitchPerson(context.Background(), principal, models.SwitchPersonRequest{PersonID: 2})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, int64(2), claims.ActivePersonID)

	_, err = svc.SwitchPerson(context.Background(), principal, models.SwitchPersonRequest{PersonID: 3})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthServicePrincipalFromClaims(t *testing.T) {
	svc, _, persons, _ := newAuthFixture(t)

	p, err := svc.Principal(context.Background(), &models.JWTClaims{UserID: 1, ActivePersonID: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ActivePerson.ID)
	assert.Equal(t, []int64{2}, p.ManagedPersonIDs)
	assert.False(t, p.ActingAsSelf())

	persons.managed[1] = nil
	_, err = svc.Principal(context.Background(), &models.JWTClaims{UserID: 1, ActivePersonID: 2})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceAPITokenCachedAndRevoked(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)
	ctx := context.Background()

	token, err := svc.IssueAPIToken(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, token.Key, 40)

	p, err := svc.AuthenticateToken(ctx, token.Key)
	require.NoError(t, err)
	assert.True(t, p.ViaToken)
	assert.Equal(t, int64(1), p.ActivePerson.ID)

	_, err = svc.AuthenticateToken(ctx, token.Key)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.apiTokenLookups)

	require.NoError(t, svc.RevokeAPIToken(ctx, 1))
	_, err = svc.AuthenticateToken(ctx, token.Key)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceCreateSuperuser(t *testing.T) {
	svc, repo, persons, _ := newAuthFixture(t)

	user, err := svc.CreateSuperuser(context.Background(), CreateSuperuserRequest{
		Email:     "admin@example.com",
		Password:  "adminadmin",
		FirstName: "Admin",
		LastName:  "Klubu",
	})
	require.NoError(t, err)
	assert.True(t, user.IsSuperuser)
	assert.Equal(t, int64(11), user.PersonID)
	assert.Equal(t, "admin@example.com", persons.persons[11].EmailAddress())
	assert.Contains(t, repo.users, int64(11))
}

func TestAuthServiceCollectExpiredTokens(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)
	repo.resetTokens["a"] = &models.PasswordResetToken{Token: "a", ExpiresAt: time.Now().Add(-time.Hour)}
	repo.resetTokens["b"] = &models.PasswordResetToken{Token: "b", ExpiresAt: time.Now().Add(time.Hour)}
	repo.refreshTokens["r"] = &models.RefreshToken{Token: "r", ExpiresAt: time.Now().Add(-time.Hour)}

	out, err := svc.CollectExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TokenCollection{ResetTokens: 1, RefreshTokens: 1}, out)
	assert.Contains(t, repo.resetTokens, "b")
}
