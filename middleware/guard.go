package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/cookie"
)

// Validator resolves a session token. [crossauth.Manager] implements it.
type Validator interface {
	Validate(ctx context.Context, token string) (crossauth.Identity, error)
}

// TokenDecoder extracts a session token from a request. [cookie.Codec] implements it.
type TokenDecoder interface {
	DecodeRequest(r *http.Request) (string, error)
}

// Option configures a guard.
type Option func(*guard)

// WithLogger sets the logger for rejected and failed requests.
func WithLogger(logger *slog.Logger) Option {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

type guard struct {
	validator Validator
	decoder   TokenDecoder
	logger    *slog.Logger
}

func newGuard(v Validator, d TokenDecoder, opts []Option) *guard {
	g := &guard{
		validator: v,
		decoder:   d,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeRejected
	outcomeFailed
)

// authenticate runs one pass of the per-request state machine. clientIP is the
// caller address as the surrounding router sees it.
func (g *guard) authenticate(r *http.Request, clientIP string) (*crossauth.Identity, outcome, error) {
	if g.validator == nil || g.decoder == nil {
		return nil, outcomeFailed, crossauth.ErrManagerNotReady
	}

	token, err := g.decoder.DecodeRequest(r)
	if err != nil {
		if errors.Is(err, cookie.ErrMalformed) {
			g.logger.Info("rejected malformed session cookie",
				slog.String("path", r.URL.Path),
				slog.String("ip", clientIP),
			)
		}
		return nil, outcomeRejected, err
	}

	ctx := crossauth.WithUserAgent(crossauth.WithClientIP(r.Context(), clientIP), r.UserAgent())
	id, err := g.validator.Validate(ctx, token)
	switch {
	case err == nil:
		return &id, outcomeAccepted, nil
	case errors.Is(err, crossauth.ErrUnauthenticated):
		return nil, outcomeRejected, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, outcomeRejected, err
	default:
		g.logger.Error("session validation failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		return nil, outcomeFailed, err
	}
}

// RequireSession rejects requests without a valid session cookie and attaches the
// resolved identity to the request context otherwise.
func RequireSession(v Validator, d TokenDecoder, opts ...Option) func(http.Handler) http.Handler {
	g := newGuard(v, d, opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, result, _ := g.authenticate(r, remoteIP(r))
			switch result {
			case outcomeAccepted:
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
			case outcomeFailed:
				WriteError(w, http.StatusInternalServerError)
			default:
				WriteError(w, http.StatusUnauthorized)
			}
		})
	}
}

// Optional attaches an identity when the request carries a valid session and passes
// every request through. Store failures are logged and treated as anonymous.
func Optional(v Validator, d TokenDecoder, opts ...Option) func(http.Handler) http.Handler {
	g := newGuard(v, d, opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, result, _ := g.authenticate(r, remoteIP(r))
			if result == outcomeAccepted {
				r = r.WithContext(withIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ErrorBody is the JSON envelope written for rejected requests.
type ErrorBody struct {
	Data  any    `json:"data"`
	Error string `json:"error"`
}

// WriteError writes the standard error envelope for status.
func WriteError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody(status))
}

func errorBody(status int) ErrorBody {
	return ErrorBody{Data: nil, Error: http.StatusText(status)}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
