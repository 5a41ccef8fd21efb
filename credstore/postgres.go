package credstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/session"
)

const uniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id             TEXT PRIMARY KEY,
		email          TEXT NOT NULL UNIQUE,
		name           TEXT NOT NULL DEFAULT '',
		role           TEXT NOT NULL DEFAULT 'USER',
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		image          TEXT NOT NULL DEFAULT '',
		password_hash  TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token      TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
}

// Postgres stores users and sessions in a relational database through lib/pq.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens and pings dsn. The caller owns the returned store and must Close it.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing pool. Close closes db.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the users and sessions tables if they are missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping checks the connection pool.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return storageErr(err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (p *Postgres) CreateUser(ctx context.Context, u crossauth.User) (crossauth.User, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, email_verified, image, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, u.Name, string(u.Role), u.EmailVerified, u.Image, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return crossauth.User{}, crossauth.ErrUserExists
		}
		return crossauth.User{}, storageErr(err)
	}
	return u, nil
}

const selectUser = `
	SELECT id, email, name, role, email_verified, image, password_hash, created_at, updated_at
	FROM users`

func scanUser(row *sql.Row) (crossauth.User, error) {
	var (
		u    crossauth.User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.EmailVerified, &u.Image, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crossauth.User{}, crossauth.ErrUserNotFound
		}
		return crossauth.User{}, storageErr(err)
	}
	u.Role = crossauth.Role(role)
	return u, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (crossauth.User, error) {
	return scanUser(p.db.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id))
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (crossauth.User, error) {
	return scanUser(p.db.QueryRowContext(ctx, selectUser+` WHERE email = $1`, email))
}

func (p *Postgres) CreateSession(ctx context.Context, sess *session.Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.Token, sess.UserID, sess.CreatedAt, sess.ExpiresAt, sess.IPAddress, sess.UserAgent,
	)
	if err != nil {
		return storageErr(err)
	}
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, token string) (*session.Session, error) {
	sess := &session.Session{Token: token}
	err := p.db.QueryRowContext(ctx, `
		SELECT user_id, created_at, expires_at, ip_address, user_agent
		FROM sessions
		WHERE token = $1`, token,
	).Scan(&sess.UserID, &sess.CreatedAt, &sess.ExpiresAt, &sess.IPAddress, &sess.UserAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, storageErr(err)
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	return sess, nil
}

func (p *Postgres) DeleteSession(ctx context.Context, token string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return storageErr(err)
	}
	return nil
}

func (p *Postgres) DeleteUserSessions(ctx context.Context, userID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `DELETE FROM sessions WHERE user_id = $1 RETURNING token`, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, storageErr(err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return tokens, nil
}

// DeleteExpired removes sessions that expired before the database's current time.
func (p *Postgres) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, storageErr(err)
	}
	return res.RowsAffected()
}

var _ crossauth.CredentialStore = (*Postgres)(nil)
