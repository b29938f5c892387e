package flows

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"

	"github.com/MrEthical07/notevault/internal/account"
	"github.com/MrEthical07/notevault/internal/audit"
)

// BackupCodeAlphabet omits 0, 1, I and O so codes survive being read aloud.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// BackupCodeDeps captures backup-code login dependencies.
type BackupCodeDeps struct {
	Common

	CheckFailures     func(ctx context.Context, userID string) error
	RecordFailure     func(ctx context.Context, userID string) error
	ResetFailures     func(ctx context.Context, userID string) error
	IsRateLimited     func(error) bool
	ConsumeBackupCode func(ctx context.Context, userID string, hash [32]byte) (bool, error)
}

// RunConsumeBackupCode spends one recovery code for user. It shares the MFA
// failure limiter with TOTP codes.
func RunConsumeBackupCode(ctx context.Context, user *account.User, code string, deps BackupCodeDeps) error {
	deps.normalize()
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	if deps.ConsumeBackupCode == nil {
		return deps.Errors.EngineNotReady
	}
	if user == nil || !user.MFA.Enabled {
		return deps.Errors.MFANotEnrolled
	}

	if deps.CheckFailures != nil {
		if err := deps.CheckFailures(ctx, user.ID); err != nil {
			if deps.IsRateLimited(err) {
				deps.MetricInc(deps.Metrics.MFARateLimited)
				deps.EmitAudit(ctx, audit.MFARateLimited, false, user.ID, deps.Errors.MFARateLimited, nil)
				return deps.Errors.MFARateLimited
			}
			return fmt.Errorf("%w: %v", deps.Errors.MFAUnavailable, err)
		}
	}

	canonical := CanonicalizeBackupCode(code)
	ok := false
	if canonical != "" {
		var err error
		ok, err = deps.ConsumeBackupCode(ctx, user.ID, BackupCodeHash(user.ID, canonical))
		if err != nil {
			return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
	}
	if !ok {
		deps.MetricInc(deps.Metrics.BackupCodeFailed)
		deps.EmitAudit(ctx, audit.BackupCodeFailed, false, user.ID, deps.Errors.BackupCodeInvalid, nil)
		if deps.RecordFailure != nil {
			if err := deps.RecordFailure(ctx, user.ID); err != nil && !deps.IsRateLimited(err) {
				return fmt.Errorf("%w: %v", deps.Errors.MFAUnavailable, err)
			}
		}
		return deps.Errors.BackupCodeInvalid
	}

	if deps.ResetFailures != nil {
		if err := deps.ResetFailures(ctx, user.ID); err != nil {
			deps.Warn("mfa limiter reset failed", "user_id", user.ID, "error", err)
		}
	}
	deps.MetricInc(deps.Metrics.BackupCodeUsed)
	deps.EmitAudit(ctx, audit.BackupCodeUsed, true, user.ID, nil, func() map[string]string {
		return map[string]string{"remaining": fmt.Sprint(user.RemainingBackupCodes() - 1)}
	})
	return nil
}

// GenerateBackupCodes returns count hashed records and their formatted
// plaintext codes, in the same order.
func GenerateBackupCodes(userID string, count, length int, randomIndex func(int) (int, error)) ([]account.BackupCode, []string, error) {
	if count <= 0 || length <= 0 {
		return nil, nil, fmt.Errorf("invalid backup code shape %dx%d", count, length)
	}
	records := make([]account.BackupCode, 0, count)
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw, err := NewBackupCode(length, randomIndex)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, account.BackupCode{Hash: BackupCodeHash(userID, CanonicalizeBackupCode(raw))})
		codes = append(codes, FormatBackupCode(raw))
	}
	return records, codes, nil
}

func NewBackupCode(length int, randomIndex func(int) (int, error)) (string, error) {
	if randomIndex == nil {
		randomIndex = cryptoRandomIndex
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(BackupCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n])
	}
	return b.String(), nil
}

func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// BackupCodeHash binds a canonical code to its owner so equal codes of two
// users never share a hash.
func BackupCodeHash(userID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
