package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Headers resolved at the boundary. Authentication happens upstream;
// these arrive already verified.
const (
	IdempotencyKeyHeader = "X-Idempotency-Key"
	UserIDHeader         = "X-User-ID"
	UserRoleHeader       = "X-User-Role"
)

const (
	idempotencyKeyCtxKey = "idempotency_key"
	userIDCtxKey         = "user_id"
	userRoleCtxKey       = "user_role"
)

// Identity extracts the acting user and optional idempotency key from
// request headers into the gin context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader(IdempotencyKeyHeader); key != "" {
			c.Set(idempotencyKeyCtxKey, key)
		}
		if id := c.GetHeader(UserIDHeader); id != "" {
			c.Set(userIDCtxKey, id)
		}
		if role := c.GetHeader(UserRoleHeader); role != "" {
			c.Set(userRoleCtxKey, role)
		}
		c.Next()
	}
}

// GetIdempotencyKey returns the request's idempotency key, or nil when the
// caller did not send one.
func GetIdempotencyKey(c *gin.Context) *string {
	if key := c.GetString(idempotencyKeyCtxKey); key != "" {
		return &key
	}
	return nil
}

// GetUserID returns the acting user's ID, or uuid.Nil when absent or
// malformed.
func GetUserID(c *gin.Context) uuid.UUID {
	raw := c.GetString(userIDCtxKey)
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// GetUserRole returns the acting user's role, defaulting to "user"
func GetUserRole(c *gin.Context) string {
	if role := c.GetString(userRoleCtxKey); role != "" {
		return role
	}
	return "user"
}
