package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/notevault/internal/account"
	"github.com/MrEthical07/notevault/lockout"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, name, email, password_hash, mfa_enabled, mfa_secret, encryption_salt,
	login_attempts, lock_until, last_login, created_at, updated_at`

// recordAttemptSQL applies lockout.Policy.Next in one statement so
// concurrent failures for the same account are serialized by the row lock.
// A success never clears a lock that is still active.
// $2 success, $3 now, $4 threshold, $5 lock expiry for a lock set now.
const recordAttemptSQL = `
UPDATE users SET
	login_attempts = CASE
		WHEN $2 AND (lock_until IS NULL OR lock_until <= $3) THEN 0
		WHEN $2 THEN login_attempts
		WHEN lock_until IS NOT NULL AND lock_until <= $3 THEN 1
		ELSE login_attempts + 1
	END,
	lock_until = CASE
		WHEN $2 AND (lock_until IS NULL OR lock_until <= $3) THEN NULL
		WHEN $2 THEN lock_until
		WHEN lock_until IS NOT NULL AND lock_until <= $3 THEN
			CASE WHEN 1 >= $4 THEN $5::timestamptz ELSE NULL END
		WHEN lock_until IS NOT NULL THEN lock_until
		WHEN login_attempts + 1 >= $4 THEN $5::timestamptz
		ELSE NULL
	END,
	updated_at = NOW()
WHERE id = $1
RETURNING login_attempts, lock_until`

func (s *Store) CreateUser(ctx context.Context, in account.CreateUserInput) (*account.User, error) {
	query := `
		INSERT INTO users (id, name, email, password_hash, mfa_secret)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, query,
		uuid.NewString(), in.Name, account.NormalizeEmail(in.Email), in.PasswordHash, in.MFASecret)
	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, account.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*account.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.getUser(ctx, query, account.NormalizeEmail(email))
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*account.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, account.ErrUserNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.getUser(ctx, query, userID)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*account.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	codes, err := loadBackupCodes(ctx, s.pool, user.ID)
	if err != nil {
		return nil, err
	}
	user.MFA.BackupCodes = codes
	return user, nil
}

func (s *Store) RecordLoginAttempt(ctx context.Context, userID string, success bool, policy lockout.Policy, now time.Time) (lockout.State, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return lockout.State{}, account.ErrUserNotFound
	}
	var state lockout.State
	err := s.pool.QueryRow(ctx, recordAttemptSQL,
		userID, success, now, policy.Threshold, policy.LockUntilFor(now),
	).Scan(&state.Attempts, &state.LockUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockout.State{}, account.ErrUserNotFound
		}
		return lockout.State{}, fmt.Errorf("record login attempt: %w", err)
	}
	return state, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.execOne(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, hash)
}

func (s *Store) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.execOne(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, userID, at)
}

func (s *Store) EnableMFA(ctx context.Context, userID string, codes []account.BackupCode) (bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, account.ErrUserNotFound
	}

	enabled := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET mfa_enabled = TRUE, updated_at = NOW() WHERE id = $1 AND NOT mfa_enabled`, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return s.ensureUser(ctx, tx, userID)
		}

		batch := &pgx.Batch{}
		for _, c := range codes {
			batch.Queue(`INSERT INTO backup_codes (user_id, code_hash) VALUES ($1, $2)`, userID, c.Hash[:])
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		enabled = true
		return nil
	})
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			return false, err
		}
		return false, fmt.Errorf("enable mfa: %w", err)
	}
	return enabled, nil
}

func (s *Store) ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, account.ErrUserNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE backup_codes SET used = TRUE, used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND NOT used`, userID, hash[:])
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetEncryptionSalt(ctx context.Context, userID, salt string) (bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, account.ErrUserNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET encryption_salt = $2, updated_at = NOW()
		WHERE id = $1 AND encryption_salt = ''`, userID, salt)
	if err != nil {
		return false, fmt.Errorf("set encryption salt: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := s.ensureUser(ctx, s.pool, userID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) execOne(ctx context.Context, query string, userID string, args ...any) error {
	if _, err := uuid.Parse(userID); err != nil {
		return account.ErrUserNotFound
	}
	tag, err := s.pool.Exec(ctx, query, append([]any{userID}, args...)...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrUserNotFound
	}
	return nil
}

func (s *Store) ensureUser(ctx context.Context, q querier, userID string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return account.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*account.User, error) {
	var u account.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.MFA.Enabled,
		&u.MFA.Secret,
		&u.EncryptionSalt,
		&u.LoginAttempts,
		&u.LockUntil,
		&u.LastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func loadBackupCodes(ctx context.Context, q querier, userID string) ([]account.BackupCode, error) {
	rows, err := q.Query(ctx, `SELECT code_hash, used FROM backup_codes WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("load backup codes: %w", err)
	}
	defer rows.Close()

	var codes []account.BackupCode
	for rows.Next() {
		var (
			raw  []byte
			code account.BackupCode
		)
		if err := rows.Scan(&raw, &code.Used); err != nil {
			return nil, fmt.Errorf("scan backup code: %w", err)
		}
		copy(code.Hash[:], raw)
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load backup codes: %w", err)
	}
	return codes, nil
}
