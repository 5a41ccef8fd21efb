package credstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/session"
)

// scriptedDB answers every statement with the same canned outcome, so the pq error
// mapping can be checked without a database.
type scriptedDB struct {
	err  error
	cols []string
	rows [][]driver.Value
}

func (s *scriptedDB) Connect(context.Context) (driver.Conn, error) { return scriptedConn{s}, nil }
func (s *scriptedDB) Driver() driver.Driver                        { return scriptedDriver{} }

type scriptedDriver struct{}

func (scriptedDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use the connector") }

type scriptedConn struct{ db *scriptedDB }

func (scriptedConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (scriptedConn) Close() error                        { return nil }
func (scriptedConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }

func (c scriptedConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	if c.db.err != nil {
		return nil, c.db.err
	}
	return driver.RowsAffected(len(c.db.rows)), nil
}

func (c scriptedConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	if c.db.err != nil {
		return nil, c.db.err
	}
	return &scriptedRows{cols: c.db.cols, rows: c.db.rows}, nil
}

type scriptedRows struct {
	cols []string
	rows [][]driver.Value
	next int
}

func (r *scriptedRows) Columns() []string { return r.cols }
func (r *scriptedRows) Close() error      { return nil }

func (r *scriptedRows) Next(dest []driver.Value) error {
	if r.next >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.next])
	r.next++
	return nil
}

func newScriptedPostgres(t *testing.T, db *scriptedDB) *Postgres {
	t.Helper()
	pool := sql.OpenDB(db)
	t.Cleanup(func() { _ = pool.Close() })
	return NewPostgres(pool)
}

func TestPostgresCreateUserMapsUniqueViolation(t *testing.T) {
	p := newScriptedPostgres(t, &scriptedDB{err: &pq.Error{Code: uniqueViolation, Message: "duplicate key"}})

	now := time.Now().UTC()
	_, err := p.CreateUser(context.Background(), crossauth.User{
		ID: "u-1", Email: "ada@example.com", Role: crossauth.RoleUser, CreatedAt: now, UpdatedAt: now,
	})
	require.ErrorIs(t, err, crossauth.ErrUserExists)
	assert.NotErrorIs(t, err, crossauth.ErrStorage)
}

func TestPostgresOtherErrorsWrapErrStorage(t *testing.T) {
	pqErr := &pq.Error{Code: "53300", Message: "too many connections"}
	p := newScriptedPostgres(t, &scriptedDB{err: pqErr})
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := p.CreateUser(ctx, crossauth.User{ID: "u-1", Email: "ada@example.com", CreatedAt: now, UpdatedAt: now})
	require.ErrorIs(t, err, crossauth.ErrStorage)
	var got *pq.Error
	require.ErrorAs(t, err, &got)
	assert.Equal(t, pq.ErrorCode("53300"), got.Code)

	_, err = p.GetUserByID(ctx, "u-1")
	require.ErrorIs(t, err, crossauth.ErrStorage)
	assert.NotErrorIs(t, err, crossauth.ErrUserNotFound)

	_, err = p.GetSession(ctx, "tok")
	require.ErrorIs(t, err, crossauth.ErrStorage)
	assert.NotErrorIs(t, err, session.ErrNotFound)

	require.ErrorIs(t, p.DeleteSession(ctx, "tok"), crossauth.ErrStorage)
	_, err = p.DeleteUserSessions(ctx, "u-1")
	require.ErrorIs(t, err, crossauth.ErrStorage)
}

func TestPostgresMissingRowsMapToNotFound(t *testing.T) {
	p := newScriptedPostgres(t, &scriptedDB{cols: []string{"id"}})
	ctx := context.Background()

	_, err := p.GetUserByID(ctx, "u-1")
	require.ErrorIs(t, err, crossauth.ErrUserNotFound)

	_, err = p.GetUserByEmail(ctx, "ada@example.com")
	require.ErrorIs(t, err, crossauth.ErrUserNotFound)

	_, err = p.GetSession(ctx, "tok")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestPostgresDeleteUserSessionsReturnsTokens(t *testing.T) {
	p := newScriptedPostgres(t, &scriptedDB{
		cols: []string{"token"},
		rows: [][]driver.Value{{"tok-a"}, {"tok-b"}},
	})

	tokens, err := p.DeleteUserSessions(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a", "tok-b"}, tokens)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: uniqueViolation}))
	assert.True(t, isUniqueViolation(storageErr(&pq.Error{Code: uniqueViolation})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("duplicate key")))
}
