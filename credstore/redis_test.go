package credstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/crossauth"
)

func newRedisStoreTest(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, WithNow(func() time.Time { return contractNow })), mr
}

func TestRedisContract(t *testing.T) {
	runContract(t, func(t *testing.T) crossauth.CredentialStore {
		s, _ := newRedisStoreTest(t)
		return s
	})
}

func TestRedisSessionKeyExpiresWithSession(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	ctx := context.Background()

	sess := contractSession(t, "u-1")
	require.NoError(t, s.CreateSession(ctx, sess))
	assert.Equal(t, time.Hour, mr.TTL("cau:sess:"+sess.Token))

	mr.FastForward(time.Hour)
	_, err := s.GetSession(ctx, sess.Token)
	require.Error(t, err)
}

func TestRedisRejectsExpiredSession(t *testing.T) {
	s, _ := newRedisStoreTest(t)
	sess := contractSession(t, "u-1")
	sess.ExpiresAt = contractNow.Add(-time.Second)

	require.Error(t, s.CreateSession(context.Background(), sess))
}

func TestRedisUserDocumentKeepsHash(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	u := contractUser("u-1", "ada@example.com")
	_, err := s.CreateUser(context.Background(), u)
	require.NoError(t, err)

	raw, err := mr.Get("cau:user:u-1")
	require.NoError(t, err)
	assert.Contains(t, raw, `"password_hash"`)

	id, err := mr.Get("cau:email:ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", id)
}

func TestRedisFailuresWrapErrStorage(t *testing.T) {
	s, mr := newRedisStoreTest(t)
	mr.Close()

	_, err := s.GetUserByID(context.Background(), "u-1")
	require.ErrorIs(t, err, crossauth.ErrStorage)
	_, err = s.GetSession(context.Background(), "tok")
	require.ErrorIs(t, err, crossauth.ErrStorage)
	require.ErrorIs(t, s.DeleteSession(context.Background(), "tok"), crossauth.ErrStorage)
}
