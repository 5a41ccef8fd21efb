package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/internal/rate"
	"github.com/MrEthical07/crossauth/middleware"
	"github.com/MrEthical07/crossauth/session"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string         `json:"token"`
	User  crossauth.User `json:"user"`
}

type sessionResponse struct {
	Session session.Session `json:"session"`
	User    crossauth.User  `json:"user"`
}

type messageData struct {
	Message string `json:"message"`
}

type dataResponse struct {
	Data messageData `json:"data"`
}

const (
	messageHint      = "Message route make post request with auth"
	messageAnonymous = "Not Authenticated"
	messageProtected = "this route is protected by middleware"
)

func requestContext(c *gin.Context) context.Context {
	ctx := crossauth.WithClientIP(c.Request.Context(), c.ClientIP())
	return crossauth.WithUserAgent(ctx, c.Request.UserAgent())
}

func abortError(c *gin.Context, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, middleware.ErrorBody{Error: msg})
}

// statusFor maps Manager errors to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, crossauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, crossauth.ErrUserExists):
		return http.StatusUnprocessableEntity, "User already exists"
	case errors.Is(err, crossauth.ErrInvalidRole):
		return http.StatusBadRequest, "Invalid role"
	case errors.Is(err, crossauth.ErrInvalidRegistration):
		return http.StatusBadRequest, "Invalid email or password"
	case errors.Is(err, crossauth.ErrAccountWithoutSession):
		return http.StatusServiceUnavailable, "Account created, please sign in"
	case errors.Is(err, crossauth.ErrUnauthenticated):
		return http.StatusUnauthorized, ""
	case errors.Is(err, crossauth.ErrStorage):
		return http.StatusServiceUnavailable, ""
	default:
		return http.StatusInternalServerError, ""
	}
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "error", err)
	}
	abortError(c, status, msg)
}

func (s *Server) setSessionCookie(c *gin.Context, token string) error {
	ck, err := s.codec.Encode(token)
	if err != nil {
		return err
	}
	http.SetCookie(c.Writer, ck)
	return nil
}

func (s *Server) handleSignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := s.manager.Register(requestContext(c), crossauth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		s.fail(c, "sign-up", err)
		return
	}
	if err := s.setSessionCookie(c, id.Session.Token); err != nil {
		s.fail(c, "sign-up cookie", err)
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: id.Session.Token, User: id.User})
}

func (s *Server) handleSignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := requestContext(c)
	ip := c.ClientIP()
	if s.throttled(ctx, req.Email, ip) {
		abortError(c, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return
	}

	id, err := s.manager.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, crossauth.ErrInvalidCredentials) {
			s.recordFailure(ctx, req.Email, ip)
		}
		s.fail(c, "sign-in", err)
		return
	}
	if s.throttle != nil {
		if err := s.throttle.ResetLogin(ctx, req.Email, ip); err != nil {
			s.logger.Warn("sign-in throttle reset failed", "error", err)
		}
	}
	if err := s.setSessionCookie(c, id.Session.Token); err != nil {
		s.fail(c, "sign-in cookie", err)
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: id.Session.Token, User: id.User})
}

// throttled reports whether email or ip is over budget. Throttle backend failures let
// the attempt through.
func (s *Server) throttled(ctx context.Context, email, ip string) bool {
	if s.throttle == nil {
		return false
	}
	err := s.throttle.CheckLogin(ctx, email, ip)
	switch {
	case err == nil:
		return false
	case errors.Is(err, rate.ErrRateLimited):
		return true
	default:
		s.logger.Warn("sign-in throttle unavailable", "error", err)
		return false
	}
}

func (s *Server) recordFailure(ctx context.Context, email, ip string) {
	if s.throttle == nil {
		return
	}
	err := s.throttle.IncrementLogin(ctx, email, ip)
	if err != nil && !errors.Is(err, rate.ErrRateLimited) {
		s.logger.Warn("sign-in throttle record failed", "error", err)
	}
}

// handleSignOut always clears the cookie. A missing or malformed cookie is not an error.
func (s *Server) handleSignOut(c *gin.Context) {
	http.SetCookie(c.Writer, s.codec.Clear())

	token, err := s.codec.DecodeRequest(c.Request)
	if err == nil {
		if err := s.manager.Revoke(requestContext(c), token); err != nil {
			s.fail(c, "sign-out", err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleGetSession(c *gin.Context) {
	user, okUser := middleware.GinUser(c)
	sess, okSess := middleware.GinSession(c)
	if !okUser || !okSess {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Session: *sess, User: *user})
}

func (s *Server) handleRevokeSessions(c *gin.Context) {
	user, ok := middleware.GinUser(c)
	if !ok {
		abortError(c, http.StatusUnauthorized, "")
		return
	}
	n, err := s.manager.RevokeAllForUser(requestContext(c), user.ID)
	if err != nil {
		s.fail(c, "revoke-sessions", err)
		return
	}
	http.SetCookie(c.Writer, s.codec.Clear())
	c.JSON(http.StatusOK, gin.H{"success": true, "revoked": n})
}

func (s *Server) handleGetMessage(c *gin.Context) {
	c.JSON(http.StatusOK, dataResponse{Data: messageData{Message: messageHint}})
}

func (s *Server) handlePostMessage(c *gin.Context) {
	if _, ok := middleware.GinUser(c); !ok {
		c.JSON(http.StatusOK, dataResponse{Data: messageData{Message: messageAnonymous}})
		return
	}
	c.JSON(http.StatusOK, dataResponse{Data: messageData{Message: messageHint}})
}

func (s *Server) handleProtected(c *gin.Context) {
	if _, ok := middleware.GinUser(c); !ok {
		c.JSON(http.StatusOK, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, dataResponse{Data: messageData{Message: messageProtected}})
}
