package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rentwheels/internal/apierr"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, email, password_hash, display_name, avatar_url, provider, provider_subject, created_at, updated_at, last_login_at`

// FindAccountByEmail looks up an account by email address.
func (r *PostgresRepository) FindAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

// FindAccountBySubject looks up an account by its federated provider subject.
func (r *PostgresRepository) FindAccountBySubject(ctx context.Context, provider, subject string) (*Account, error) {
	return r.findAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE provider = $1 AND provider_subject = $2`, provider, subject)
}

// FindAccountByID looks up an account by primary key.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.findAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *PostgresRepository) findAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	var account Account
	if err := r.db.GetContext(ctx, &account, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// CreateAccount inserts a new account.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	const query = `INSERT INTO accounts (` + accountColumns + `)
		VALUES (:id, :email, :password_hash, :display_name, :avatar_url, :provider, :provider_subject, :created_at, :updated_at, :last_login_at)`

	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return Account{}, apierr.ErrEmailInUse
		}
		return Account{}, err
	}
	return account, nil
}

// UpdateAccount persists profile, provider link and login time changes.
func (r *PostgresRepository) UpdateAccount(ctx context.Context, account Account) error {
	const query = `
		UPDATE accounts
		SET display_name = :display_name,
		    avatar_url = :avatar_url,
		    provider = :provider,
		    provider_subject = :provider_subject,
		    updated_at = :updated_at,
		    last_login_at = :last_login_at
		WHERE id = :id
	`

	res, err := r.db.NamedExecContext(ctx, query, account)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return apierr.ErrNotFound
	}
	return nil
}

// CreateSession inserts a new session.
func (r *PostgresRepository) CreateSession(ctx context.Context, session Session, tokenHash string) error {
	const query = `
		INSERT INTO identity_sessions (id, account_id, session_token_hash, expires_at, created_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.AccountID,
		tokenHash,
		session.ExpiresAt,
		session.CreatedAt,
		session.UserAgent,
		session.IPAddress,
	)
	return err
}

// FindSessionByTokenHash looks up a session and its account by token hash.
func (r *PostgresRepository) FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, *Account, error) {
	const query = `
		SELECT
			s.id AS session_id, s.account_id, s.expires_at, s.created_at AS session_created_at, s.user_agent, s.ip_address,
			a.id, a.email, a.password_hash, a.display_name, a.avatar_url, a.provider, a.provider_subject,
			a.created_at, a.updated_at, a.last_login_at
		FROM identity_sessions s
		JOIN accounts a ON s.account_id = a.id
		WHERE s.session_token_hash = $1
	`

	var row sessionAccountRow
	if err := r.db.GetContext(ctx, &row, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	session := row.toSession()
	account := row.Account
	return &session, &account, nil
}

// DeleteSession removes a session.
func (r *PostgresRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM identity_sessions WHERE id = $1`, id)
	return err
}

// DeleteExpiredSessions removes every session that expired before now.
func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM identity_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type sessionAccountRow struct {
	SessionID        uuid.UUID `db:"session_id"`
	AccountID        uuid.UUID `db:"account_id"`
	ExpiresAt        time.Time `db:"expires_at"`
	SessionCreatedAt time.Time `db:"session_created_at"`
	UserAgent        string    `db:"user_agent"`
	IPAddress        string    `db:"ip_address"`
	Account
}

func (r sessionAccountRow) toSession() Session {
	return Session{
		ID:        r.SessionID,
		AccountID: r.AccountID,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.SessionCreatedAt,
		UserAgent: r.UserAgent,
		IPAddress: r.IPAddress,
	}
}
