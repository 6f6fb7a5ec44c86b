package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"semear/internal/credential"
	"semear/internal/did"
	"semear/internal/identity"
	"semear/pkg/platform/sentinel"
	txcontext "semear/pkg/platform/tx"
)

// Schema creates the credentials table. Migrate applies it idempotently.
const Schema = `
CREATE TABLE IF NOT EXISTS credentials (
	id            UUID PRIMARY KEY,
	ref           TEXT NOT NULL UNIQUE,
	cpf           CHAR(11) NOT NULL,
	producer_name TEXT NOT NULL,
	subject_did   TEXT NOT NULL,
	token         TEXT NOT NULL,
	product       TEXT NOT NULL,
	quantity      DOUBLE PRECISION NOT NULL,
	unit          TEXT NOT NULL,
	issued_at     TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS credentials_cpf_idx ON credentials (cpf);
CREATE INDEX IF NOT EXISTS credentials_subject_idx ON credentials (subject_did);
`

const uniqueViolation = "23505"

const selectColumns = `SELECT id, ref, cpf, producer_name, subject_did, token, product, quantity, unit, issued_at, expires_at, created_at FROM credentials`

// PostgresStore persists credentials in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the schema if it does not exist. The statements run in one
// transaction so a failed migration leaves no partial schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.execer(ctx).ExecContext(ctx, Schema); err != nil {
			return fmt.Errorf("migrate credentials: %w", err)
		}
		return nil
	})
}

// DefaultTxTimeout applies when RunInTx is called without a deadline.
const DefaultTxTimeout = 5 * time.Second

// RunInTx runs fn in a transaction. Store calls made with the context passed
// to fn join that transaction. fn's error rolls it back.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTxTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db)
}

func (s *PostgresStore) Save(ctx context.Context, rec credential.Record) error {
	query := `
		INSERT INTO credentials (id, ref, cpf, producer_name, subject_did, token, product, quantity, unit, issued_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		rec.ID.String(),
		string(rec.Ref),
		rec.Number.String(),
		rec.ProducerName,
		rec.SubjectDID.String(),
		rec.Token,
		rec.Product,
		rec.Quantity,
		rec.Unit,
		rec.IssuedAt,
		rec.ExpiresAt,
		rec.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id credential.ID) (credential.Record, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id.String())
	rec, err := scanRecord(row)
	if err != nil {
		return credential.Record{}, notFoundOr(err, "find credential by id")
	}
	return rec, nil
}

func (s *PostgresStore) FindByRef(ctx context.Context, ref credential.Ref) (credential.Record, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectColumns+` WHERE ref = $1`, string(ref))
	rec, err := scanRecord(row)
	if err != nil {
		return credential.Record{}, notFoundOr(err, "find credential by ref")
	}
	return rec, nil
}

func (s *PostgresStore) FindByNumber(ctx context.Context, n identity.Number) ([]credential.Record, error) {
	return s.query(ctx, "find credentials by cpf", selectColumns+` WHERE cpf = $1 ORDER BY issued_at DESC`, n.String())
}

func (s *PostgresStore) FindBySubjects(ctx context.Context, subjects []did.DID) ([]credential.Record, error) {
	if len(subjects) == 0 {
		return []credential.Record{}, nil
	}
	raw := make([]string, len(subjects))
	for i, d := range subjects {
		raw[i] = d.String()
	}
	return s.query(ctx, "find credentials by subject", selectColumns+` WHERE subject_did = ANY($1) ORDER BY issued_at DESC`, pq.Array(raw))
}

func (s *PostgresStore) Stats(ctx context.Context) (credential.Stats, error) {
	var stats credential.Stats
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT cpf) FROM credentials`).
		Scan(&stats.TotalCredentials, &stats.UniqueProducers)
	if err != nil {
		return credential.Stats{}, fmt.Errorf("credential stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) query(ctx context.Context, op, query string, args ...any) ([]credential.Record, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]credential.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (credential.Record, error) {
	var (
		rec                      credential.Record
		id, ref, cpf, subjectDID string
	)
	err := row.Scan(&id, &ref, &cpf, &rec.ProducerName, &subjectDID, &rec.Token,
		&rec.Product, &rec.Quantity, &rec.Unit, &rec.IssuedAt, &rec.ExpiresAt, &rec.CreatedAt)
	if err != nil {
		return credential.Record{}, err
	}
	rec.ID = credential.ID(id)
	rec.Ref = credential.Ref(ref)
	rec.Number = identity.Number(cpf)
	rec.SubjectDID = did.DID(subjectDID)
	return rec, nil
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
