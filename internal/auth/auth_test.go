package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/repository"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 15, 60)

	token, exp, err := tm.GenerateToken("op-1", domain.SubjectTypeOperator, true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.SubjectID)
	assert.Equal(t, domain.SubjectTypeOperator, claims.Subject)
	assert.True(t, claims.Privileged)
}

func TestIntegrationTokensAreNeverPrivileged(t *testing.T) {
	tm := NewTokenManager("secret", 15, 60)

	token, exp, err := tm.GenerateToken("chat-bot", domain.SubjectTypeIntegration, true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.False(t, claims.Privileged)
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	token, _, err := NewTokenManager("one", 15, 15).GenerateToken("op-1", domain.SubjectTypeOperator, false)
	require.NoError(t, err)

	_, err = NewTokenManager("two", 15, 15).ParseToken(token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "s3cret"))
	assert.Error(t, ComparePassword(hash, "wrong"))
}

func newGuardedApp(t *testing.T, guards ...fiber.Handler) (*fiber.App, *TokenManager) {
	t.Helper()
	store := repository.NewMemoryStore(nil)
	ctx := context.Background()
	require.NoError(t, store.CreateOperator(ctx, &domain.Operator{ID: "op-1", DisplayName: "One"}))
	require.NoError(t, store.CreateOperator(ctx, &domain.Operator{ID: "admin", DisplayName: "Admin", IsPrivileged: true}))

	tm := NewTokenManager("secret", 15, 15)
	mw := NewAuthMiddleware(tm, store)
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		domainErr := apperrors.ToDomainError(err)
		return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
	}})
	handlers := append([]fiber.Handler{mw.Handle}, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.SendString(principal.Actor().OperatorID)
	})
	app.Get("/", handlers...)
	return app, tm
}

func doGet(t *testing.T, app *fiber.App, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestMiddlewareGuards(t *testing.T) {
	app, tm := newGuardedApp(t, RequirePrivileged())

	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, "garbage").StatusCode)

	plain, _, err := tm.GenerateToken("op-1", domain.SubjectTypeOperator, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, doGet(t, app, plain).StatusCode)

	admin, _, err := tm.GenerateToken("admin", domain.SubjectTypeOperator, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doGet(t, app, admin).StatusCode)

	ghost, _, err := tm.GenerateToken("ghost", domain.SubjectTypeOperator, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, ghost).StatusCode)
}

func TestIntegrationGuard(t *testing.T) {
	app, tm := newGuardedApp(t, RequireIntegration())

	bot, _, err := tm.GenerateToken("chat-bot", domain.SubjectTypeIntegration, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doGet(t, app, bot).StatusCode)

	op, _, err := tm.GenerateToken("op-1", domain.SubjectTypeOperator, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, doGet(t, app, op).StatusCode)
}
