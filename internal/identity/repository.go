package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists users. Lookups return ErrNotFound when nothing matches;
// writes return ErrDuplicate when they would produce a second verified account
// for the same email or phone.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	// FindVerified returns a verified user holding either the email or the phone.
	FindVerified(ctx context.Context, email, phone string) (User, error)
	FindVerifiedByEmail(ctx context.Context, email string) (User, error)
	// CountUnverified counts unverified users holding either the email or the phone.
	CountUnverified(ctx context.Context, email, phone string) (int, error)
	// LatestUnverified returns the most recently created unverified user
	// holding either the email or the phone.
	LatestUnverified(ctx context.Context, email, phone string) (User, error)
	// FindByResetToken returns the user with the given reset token hash whose
	// reset window is still open at now.
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (User, error)
	Update(ctx context.Context, user User) error
	SetResetToken(ctx context.Context, id, tokenHash string, expire time.Time) error
}

const uniqueViolation = "23505"

const userColumns = `id, name, email, phone, password_hash, account_verified,
        verification_code, verification_code_expire, reset_password_token, reset_password_expire, created_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		userID, user.Name, user.Email, user.Phone, user.PasswordHash, user.AccountVerified,
		user.VerificationCode, utcPtr(user.VerificationCodeExpire),
		user.ResetPasswordToken, utcPtr(user.ResetPasswordExpire), user.CreatedAt.UTC())
	return mapWriteError(err)
}

// FindByID fetches a user by primary key.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

// FindVerified fetches a verified user by email or phone.
func (r *PostgresRepository) FindVerified(ctx context.Context, email, phone string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users
        WHERE account_verified AND (email = $1 OR phone = $2) LIMIT 1`, email, phone))
}

// FindVerifiedByEmail fetches a verified user by email.
func (r *PostgresRepository) FindVerifiedByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users
        WHERE account_verified AND email = $1`, email))
}

// CountUnverified counts pending registrations sharing the email or phone.
func (r *PostgresRepository) CountUnverified(ctx context.Context, email, phone string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM users
        WHERE NOT account_verified AND (email = $1 OR phone = $2)`, email, phone).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unverified: %w", err)
	}
	return n, nil
}

// LatestUnverified fetches the newest pending registration for the email or phone.
func (r *PostgresRepository) LatestUnverified(ctx context.Context, email, phone string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users
        WHERE NOT account_verified AND (email = $1 OR phone = $2)
        ORDER BY created_at DESC LIMIT 1`, email, phone))
}

// FindByResetToken fetches the user owning an unexpired reset token hash.
func (r *PostgresRepository) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users
        WHERE reset_password_token = $1 AND reset_password_expire > $2`, tokenHash, now.UTC()))
}

// Update rewrites every mutable column of the user.
func (r *PostgresRepository) Update(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET name = $2, email = $3, phone = $4, password_hash = $5,
        account_verified = $6, verification_code = $7, verification_code_expire = $8,
        reset_password_token = $9, reset_password_expire = $10
        WHERE id = $1`,
		userID, user.Name, user.Email, user.Phone, user.PasswordHash, user.AccountVerified,
		user.VerificationCode, utcPtr(user.VerificationCodeExpire),
		user.ResetPasswordToken, utcPtr(user.ResetPasswordExpire))
	if err != nil {
		return mapWriteError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetResetToken stores a reset token hash and expiry without touching other columns.
func (r *PostgresRepository) SetResetToken(ctx context.Context, id, tokenHash string, expire time.Time) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET reset_password_token = $2, reset_password_expire = $3 WHERE id = $1`,
		userID, tokenHash, expire.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id          uuid.UUID
		user        User
		code        pgtype.Int4
		codeExpire  pgtype.Timestamptz
		resetToken  pgtype.Text
		resetExpire pgtype.Timestamptz
		createdAt   time.Time
	)
	err := row.Scan(&id, &user.Name, &user.Email, &user.Phone, &user.PasswordHash, &user.AccountVerified,
		&code, &codeExpire, &resetToken, &resetExpire, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = createdAt.UTC()
	if code.Valid {
		v := int(code.Int32)
		user.VerificationCode = &v
	}
	if codeExpire.Valid {
		t := codeExpire.Time.UTC()
		user.VerificationCodeExpire = &t
	}
	if resetToken.Valid {
		s := resetToken.String
		user.ResetPasswordToken = &s
	}
	if resetExpire.Valid {
		t := resetExpire.Time.UTC()
		user.ResetPasswordExpire = &t
	}
	return user, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
