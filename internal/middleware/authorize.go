package middleware

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/permissions"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

const (
	// ContextEntitiesKey stores the *permissions.Entities loaded for the route.
	ContextEntitiesKey = "entities"
	// ContextActionKey stores the authorized action name.
	ContextActionKey = "action"
)

// EntityLoader loads one entity, and its parents, bound from a path parameter.
type EntityLoader interface {
	Load(ctx context.Context, kind permissions.EntityKind, id int64, e *permissions.Entities) error
}

// Authorize binds the action's path parameters to entities and evaluates its
// predicate. Unknown actions panic at route registration.
func Authorize(registry *permissions.Registry, loader EntityLoader, action string) gin.HandlerFunc {
	descriptor, ok := registry.Lookup(action)
	if !ok {
		panic(fmt.Sprintf("middleware: unknown action %q", action))
	}
	params := make([]string, 0, len(descriptor.Params))
	for name := range descriptor.Params {
		params = append(params, name)
	}
	sort.Strings(params)

	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		entities := &permissions.Entities{}
		for _, name := range params {
			id, err := strconv.ParseInt(c.Param(name), 10, 64)
			if err != nil || id <= 0 {
				response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "resource not found"))
				c.Abort()
				return
			}
			if err := loader.Load(c.Request.Context(), descriptor.Params[name], id, entities); err != nil {
				response.Error(c, err)
				c.Abort()
				return
			}
		}

		if !descriptor.Predicate(principal, entities) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Set(ContextEntitiesKey, entities)
		c.Set(ContextActionKey, action)
		c.Next()
	}
}

// EntitiesFrom returns the entities loaded by Authorize.
func EntitiesFrom(c *gin.Context) *permissions.Entities {
	if value, ok := c.Get(ContextEntitiesKey); ok {
		if entities, ok := value.(*permissions.Entities); ok {
			return entities
		}
	}
	return &permissions.Entities{}
}
