package storage

import (
	"context"
	"fmt"
)

// AcquireLock claims the named lease in a single conditional statement. The
// row is claimable iff it does not exist, has expired, or is already held by
// the same holder. Any other state returns ErrLeaseHeld.
func (s *SQLiteStore) AcquireLock(ctx context.Context, name, holder string, now, ttlSec int64) error {
	res, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO locks (name, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			holder = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE locks.expires_at <= excluded.acquired_at OR locks.holder = excluded.holder`,
		name, holder, now, now+ttlSec)
	if err != nil {
		return fmt.Errorf("acquire lock %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// ReleaseLock drops the lease if still held by holder. Best-effort: a missed
// release simply lets the lease expire.
func (s *SQLiteStore) ReleaseLock(ctx context.Context, name, holder string) error {
	_, err := s.writeDB.ExecContext(ctx, `DELETE FROM locks WHERE name = ? AND holder = ?`, name, holder)
	if err != nil {
		return fmt.Errorf("release lock %q: %w", name, err)
	}
	return nil
}
