package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/cookie"
	"github.com/MrEthical07/crossauth/credstore"
)

const unauthorizedBody = `{"data":null,"error":"Unauthorized"}`

type countingValidator struct {
	next  Validator
	calls atomic.Int64
}

func (v *countingValidator) Validate(ctx context.Context, token string) (crossauth.Identity, error) {
	v.calls.Add(1)
	return v.next.Validate(ctx, token)
}

type failingValidator struct{ err error }

func (v failingValidator) Validate(context.Context, string) (crossauth.Identity, error) {
	return crossauth.Identity{}, v.err
}

type guardFixture struct {
	manager   *crossauth.Manager
	validator *countingValidator
	codec     *cookie.Codec
	userID    string
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	cfg := crossauth.DefaultConfig()
	cfg.Password = crossauth.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	store := credstore.NewMemory()
	_, err := store.CreateUser(context.Background(), crossauth.User{ID: "u-1", Email: "ada@example.com", Role: crossauth.RoleUser})
	require.NoError(t, err)

	m, err := crossauth.New().WithConfig(cfg).WithStore(store).Build()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	codec, err := cookie.NewCodec(cookie.Options{Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)

	return &guardFixture{
		manager:   m,
		validator: &countingValidator{next: m},
		codec:     codec,
		userID:    "u-1",
	}
}

func (f *guardFixture) sessionCookie(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	sess, err := f.manager.Issue(context.Background(), f.userID)
	require.NoError(t, err)
	ck, err := f.codec.Encode(sess.Token)
	require.NoError(t, err)
	return ck, sess.Token
}

func identityEcho(t *testing.T, called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		sess, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, user.ID, sess.UserID)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireSessionAcceptsValidCookie(t *testing.T) {
	f := newGuardFixture(t)
	ck, _ := f.sessionCookie(t)

	var called bool
	h := RequireSession(f.validator, f.codec)(identityEcho(t, &called))

	req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
	req.AddCookie(ck)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireSessionNoCookieRejectsWithoutLookup(t *testing.T) {
	f := newGuardFixture(t)

	var called bool
	h := RequireSession(f.validator, f.codec)(identityEcho(t, &called))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/protected", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, unauthorizedBody, rec.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, int64(0), f.validator.calls.Load())
}

func TestRequireSessionMalformedCookieRejectsWithoutLookup(t *testing.T) {
	f := newGuardFixture(t)

	var called bool
	h := RequireSession(f.validator, f.codec)(identityEcho(t, &called))

	req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
	req.AddCookie(&http.Cookie{Name: cookie.DefaultName, Value: "forged"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, unauthorizedBody, rec.Body.String())
	assert.Equal(t, int64(0), f.validator.calls.Load())
}

func TestRequireSessionRevokedSessionRejected(t *testing.T) {
	f := newGuardFixture(t)
	ck, token := f.sessionCookie(t)
	require.NoError(t, f.manager.Revoke(context.Background(), token))

	var called bool
	h := RequireSession(f.validator, f.codec)(identityEcho(t, &called))

	req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
	req.AddCookie(ck)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, unauthorizedBody, rec.Body.String())
}

func TestRequireSessionStorageFailureIs500(t *testing.T) {
	f := newGuardFixture(t)
	ck, _ := f.sessionCookie(t)

	storeDown := failingValidator{err: errors.Join(crossauth.ErrStorage, errors.New("dial tcp: refused"))}
	var called bool
	h := RequireSession(storeDown, f.codec)(identityEcho(t, &called))

	req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
	req.AddCookie(ck)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"data":null,"error":"Internal Server Error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "refused")
}

func TestRequireSessionNilDependenciesFailClosed(t *testing.T) {
	var called bool
	h := RequireSession(nil, nil)(identityEcho(t, &called))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOptionalPassesAnonymousThrough(t *testing.T) {
	f := newGuardFixture(t)

	var anonymous bool
	h := Optional(f.validator, f.codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := IdentityFromContext(r.Context())
		anonymous = !ok
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/message", nil))
	assert.True(t, anonymous)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOptionalAttachesIdentity(t *testing.T) {
	f := newGuardFixture(t)
	ck, _ := f.sessionCookie(t)

	var userID string
	h := Optional(f.validator, f.codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := UserFromContext(r.Context()); ok {
			userID = u.ID
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/message", nil)
	req.AddCookie(ck)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, f.userID, userID)
}

func TestRequestsValidateIndependently(t *testing.T) {
	f := newGuardFixture(t)
	ck, _ := f.sessionCookie(t)

	var called bool
	h := RequireSession(f.validator, f.codec)(identityEcho(t, &called))

	withCookie := httptest.NewRequest(http.MethodGet, "/", nil)
	withCookie.AddCookie(ck)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withCookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	called = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestContextAccessorsEmptyBeforeAcceptance(t *testing.T) {
	ctx := context.Background()
	_, ok := IdentityFromContext(ctx)
	assert.False(t, ok)
	_, ok = UserFromContext(ctx)
	assert.False(t, ok)
	_, ok = SessionFromContext(ctx)
	assert.False(t, ok)
}
