package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/session"
)

// Gin context keys set on accepted requests.
const (
	UserKey    = "user"
	SessionKey = "session"
)

// Gin is the gin form of [RequireSession]. Besides the request context it sets the
// [UserKey] and [SessionKey] keys.
func Gin(v Validator, d TokenDecoder, opts ...Option) gin.HandlerFunc {
	g := newGuard(v, d, opts)
	return func(c *gin.Context) {
		id, result, _ := g.authenticate(c.Request, c.ClientIP())
		switch result {
		case outcomeAccepted:
			attachGin(c, id)
			c.Next()
		case outcomeFailed:
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(http.StatusInternalServerError))
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(http.StatusUnauthorized))
		}
	}
}

// GinOptional is the gin form of [Optional].
func GinOptional(v Validator, d TokenDecoder, opts ...Option) gin.HandlerFunc {
	g := newGuard(v, d, opts)
	return func(c *gin.Context) {
		if id, result, _ := g.authenticate(c.Request, c.ClientIP()); result == outcomeAccepted {
			attachGin(c, id)
		}
		c.Next()
	}
}

func attachGin(c *gin.Context, id *crossauth.Identity) {
	c.Request = c.Request.WithContext(withIdentity(c.Request.Context(), id))
	c.Set(UserKey, &id.User)
	c.Set(SessionKey, &id.Session)
}

// GinUser returns the user set by [Gin] or [GinOptional].
func GinUser(c *gin.Context) (*crossauth.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*crossauth.User)
	return u, ok && u != nil
}

// GinSession returns the session set by [Gin] or [GinOptional].
func GinSession(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*session.Session)
	return s, ok && s != nil
}
