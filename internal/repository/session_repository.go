package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
	"github.com/fairyhunter13/rcn-reward-engine/internal/service"
	"github.com/fairyhunter13/rcn-reward-engine/pkg/database"
)

const sessionColumns = `session_id, shop_id, customer_address, requested_amount, max_amount, status, created_at, expires_at, resolved_at`

// SessionRepository provides data access for redemption sessions using pgx.
type SessionRepository struct {
	pool PoolInterface
}

// NewSessionRepository creates a new SessionRepository with the given pool.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// NewSessionRepositoryWithPool creates a new SessionRepository with a custom pool interface.
// This is primarily used for testing.
func NewSessionRepositoryWithPool(pool PoolInterface) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.RedemptionSession, error) {
	var s model.RedemptionSession
	var status string
	err := row.Scan(
		&s.SessionID,
		&s.ShopID,
		&s.CustomerAddress,
		&s.RequestedAmount,
		&s.MaxAmount,
		&status,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = model.SessionStatus(status)
	return &s, nil
}

// Insert stores a new pending session.
func (r *SessionRepository) Insert(ctx context.Context, s *model.RedemptionSession) error {
	query := `INSERT INTO redemption_sessions
		(session_id, shop_id, customer_address, requested_amount, max_amount, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		s.SessionID, s.ShopID, s.CustomerAddress, s.RequestedAmount, s.MaxAmount,
		string(s.Status), s.CreatedAt, s.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return service.ErrInvalidRequest
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID retrieves a session without locking.
// Returns nil, nil if the session is not found.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*model.RedemptionSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM redemption_sessions WHERE session_id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return s, nil
}

// GetForUpdate retrieves a session with a row lock (SELECT FOR UPDATE).
// Concurrent approve and reject calls on the same session queue behind this lock.
// Returns service.ErrSessionNotFound if the session doesn't exist.
func (r *SessionRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, sessionID string) (*model.RedemptionSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM redemption_sessions WHERE session_id = $1 FOR UPDATE`
	s, err := scanSession(tx.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session for update %s: %w", sessionID, err)
	}
	return s, nil
}

// Transition moves a session from one status to another.
// It is a compare-and-set: if the stored status is no longer from,
// nothing changes and service.ErrInvalidSessionState is returned.
func (r *SessionRepository) Transition(ctx context.Context, tx database.TxQuerier, sessionID string, from, to model.SessionStatus, at time.Time) error {
	query := `UPDATE redemption_sessions SET status = $3, resolved_at = $4
		WHERE session_id = $1 AND status = $2`
	tag, err := tx.Exec(ctx, query, sessionID, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("transition session %s to %s: %w", sessionID, to, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrInvalidSessionState
	}
	return nil
}

// ListPendingByCustomer returns the customer's pending sessions that have not expired at now.
// On success, returns an empty slice (not nil) when there are none.
func (r *SessionRepository) ListPendingByCustomer(ctx context.Context, address string, now time.Time) ([]model.RedemptionSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM redemption_sessions
		WHERE customer_address = $1 AND status = 'pending' AND expires_at > $2
		ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, address, now)
	if err != nil {
		return nil, fmt.Errorf("list pending sessions for %s: %w", address, err)
	}
	defer rows.Close()

	sessions := []model.RedemptionSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

// ExpireStale marks every pending session whose expiry is at or before now as expired.
// Returns the number of sessions expired.
func (r *SessionRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE redemption_sessions SET status = 'expired', resolved_at = $1
		WHERE status = 'pending' AND expires_at <= $1`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
