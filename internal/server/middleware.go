package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/trackline/trackline/internal/audit/domain"
	"github.com/trackline/trackline/internal/auditcontext"
	"github.com/trackline/trackline/internal/auth/session"
)

const actorIDKey = "actor_id"

// AuthRequired resolves the session cookie to a user and stashes the actor
// both in gin's keys and in the request context for audit attribution.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := session.ReadToken(c)
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		sess, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := auditcontext.WithActor(c.Request.Context(), auditdomain.ActorTypeUser, sess.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(actorIDKey, sess.UserID)

		c.Next()
	}
}

func actorID(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(actorIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	return id, ok
}

// mustActorID is for handlers behind AuthRequired; a missing actor means the
// route was wired without the middleware.
func mustActorID(c *gin.Context) (snowflake.ID, bool) {
	id, ok := actorID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return 0, false
	}
	return id, true
}
