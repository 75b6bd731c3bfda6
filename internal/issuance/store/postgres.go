package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	ledger "credpass/internal/ledger/models"
)

// Postgres persists intents in issuance_intents. The primary key on
// request_id makes the claim a single conditional insert.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgres constructs a PostgreSQL-backed intent store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

const intentColumns = `id, request_id, owner, metadata_uri, expiry_ts, state, tx_hash, token_id, last_error, claimed_at, updated_at`

func (s *Postgres) Claim(ctx context.Context, intent Intent) (bool, error) {
	query := `
		INSERT INTO issuance_intents (` + intentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, NULL, '', $7, $8)
		ON CONFLICT (request_id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		intent.ID,
		int64(intent.RequestID),
		intent.Owner.Hex(),
		intent.MetadataURI,
		intent.ExpiryTs,
		string(intent.State),
		intent.ClaimedAt,
		s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("claim intent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim intent: %w", err)
	}
	return n == 1, nil
}

func (s *Postgres) Get(ctx context.Context, requestID ledger.RequestID) (*Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM issuance_intents WHERE request_id = $1`
	intent, err := scanIntent(s.db.QueryRowContext(ctx, query, int64(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get intent: %w", err)
	}
	return intent, nil
}

func (s *Postgres) MarkSubmitted(ctx context.Context, requestID ledger.RequestID, tx common.Hash) error {
	return s.update(ctx, `state = $2, tx_hash = $3`, requestID, string(StateSubmitted), tx.Hex())
}

func (s *Postgres) MarkSettled(ctx context.Context, requestID ledger.RequestID, tokenID ledger.TokenID) error {
	return s.update(ctx, `state = $2, token_id = $3`, requestID, string(StateSettled), int64(tokenID))
}

func (s *Postgres) MarkFailed(ctx context.Context, requestID ledger.RequestID, reason string) error {
	return s.update(ctx, `state = $2, last_error = $3`, requestID, string(StateFailed), reason)
}

// update applies set to an existing row; $1 is the request id and the
// timestamp is always the last placeholder.
func (s *Postgres) update(ctx context.Context, set string, requestID ledger.RequestID, args ...any) error {
	args = append([]any{int64(requestID)}, args...)
	args = append(args, s.now())
	query := fmt.Sprintf(`UPDATE issuance_intents SET %s, updated_at = $%d WHERE request_id = $1`, set, len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update intent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update intent: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Release(ctx context.Context, requestID ledger.RequestID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM issuance_intents WHERE request_id = $1`, int64(requestID))
	if err != nil {
		return fmt.Errorf("release intent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release intent: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Pending(ctx context.Context) ([]Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM issuance_intents WHERE state <> $1 ORDER BY request_id`
	rows, err := s.db.QueryContext(ctx, query, string(StateSettled))
	if err != nil {
		return nil, fmt.Errorf("list pending intents: %w", err)
	}
	defer rows.Close()

	var out []Intent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		out = append(out, *intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending intents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*Intent, error) {
	var (
		intent    Intent
		requestID int64
		owner     string
		state     string
		txHash    sql.NullString
		tokenID   sql.NullInt64
	)
	err := row.Scan(
		&intent.ID,
		&requestID,
		&owner,
		&intent.MetadataURI,
		&intent.ExpiryTs,
		&state,
		&txHash,
		&tokenID,
		&intent.LastError,
		&intent.ClaimedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	intent.RequestID = ledger.RequestID(requestID)
	intent.Owner = common.HexToAddress(owner)
	intent.State = State(state)
	if txHash.Valid {
		h := common.HexToHash(txHash.String)
		intent.TxHash = &h
	}
	if tokenID.Valid {
		t := ledger.TokenID(tokenID.Int64)
		intent.TokenID = &t
	}
	return &intent, nil
}

var _ Store = (*Postgres)(nil)
