package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type mapLoader struct {
	events map[int64]*models.Event
	loaded []int64
}

func (l *mapLoader) Load(ctx context.Context, kind permissions.EntityKind, id int64, e *permissions.Entities) error {
	l.loaded = append(l.loaded, id)
	event, ok := l.events[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	e.Event = event
	return nil
}

func performAuthorize(t *testing.T, principal *models.Principal, loader EntityLoader, action, path string) (*httptest.ResponseRecorder, *permissions.Entities) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var entities *permissions.Entities
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if principal != nil {
			c.Set(ContextPrincipalKey, principal)
		}
	})
	r.PATCH("/events/:id", Authorize(permissions.Default(), loader, action), func(c *gin.Context) {
		entities = EntitiesFrom(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, path, nil))
	return w, entities
}

func principalWith(codenames ...string) *models.Principal {
	person := &models.Person{ID: 1}
	return &models.Principal{User: &models.User{PersonID: 1, Permissions: codenames}, Person: person, ActivePerson: person}
}

func TestAuthorizeEventManage(t *testing.T) {
	loader := &mapLoader{events: map[int64]*models.Event{
		5: {ID: 5, Category: models.CategorySwimming},
	}}

	w, entities := performAuthorize(t, principalWith(permissions.TrainingsSwimming), loader, permissions.ActionEventManage, "/events/5")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, entities.Event)
	assert.Equal(t, int64(5), entities.Event.ID)

	w, _ = performAuthorize(t, principalWith(permissions.TrainingsClimbing), loader, permissions.ActionEventManage, "/events/5")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthorizeMissingEntity(t *testing.T) {
	loader := &mapLoader{events: map[int64]*models.Event{}}

	w, _ := performAuthorize(t, principalWith(permissions.TrainingsSwimming), loader, permissions.ActionEventManage, "/events/9")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = performAuthorize(t, principalWith(permissions.TrainingsSwimming), loader, permissions.ActionEventManage, "/events/abc")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []int64{9}, loader.loaded)
}

func TestAuthorizeRequiresPrincipal(t *testing.T) {
	w, _ := performAuthorize(t, nil, &mapLoader{}, permissions.ActionEventManage, "/events/5")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthorizeUnknownActionPanics(t *testing.T) {
	assert.Panics(t, func() {
		Authorize(permissions.Default(), &mapLoader{}, "events.teleport")
	})
}
