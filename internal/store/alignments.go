package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"scorecard/api/internal/schema"
)

const alignmentColumns = `id::text, functional_type, functional_id, ord_type, ord_id, strength, rationale, created_by, created_at, updated_at`

type AlignmentInput struct {
	FunctionalType string
	FunctionalID   string
	OrdType        string
	OrdID          string
	Strength       string
	Rationale      string
	CreatedBy      string
}

type AlignmentPatch struct {
	Strength  *string
	Rationale *string
}

func (s *PostgresStore) CreateAlignment(ctx context.Context, in AlignmentInput) (Alignment, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO alignments (id, functional_type, functional_id, ord_type, ord_id, strength, rationale, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+alignmentColumns,
		uuid.NewString(), in.FunctionalType, in.FunctionalID, in.OrdType, in.OrdID, in.Strength, in.Rationale, in.CreatedBy)
	alignment, err := scanAlignment(row)
	if isUniqueViolation(err) {
		return Alignment{}, fmt.Errorf("alignment %s/%s -> %s/%s: %w", in.FunctionalType, in.FunctionalID, in.OrdType, in.OrdID, ErrDuplicate)
	}
	if err != nil {
		return Alignment{}, fmt.Errorf("insert alignment: %w", err)
	}
	return alignment, nil
}

func (s *PostgresStore) GetAlignment(ctx context.Context, id string) (Alignment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Alignment{}, fmt.Errorf("get alignment %s: %w", id, sql.ErrNoRows)
	}
	alignment, err := scanAlignment(s.db.QueryRowContext(ctx, `SELECT `+alignmentColumns+` FROM alignments WHERE id = $1`, id))
	if err != nil {
		return Alignment{}, fmt.Errorf("get alignment %s: %w", id, err)
	}
	return alignment, nil
}

func (s *PostgresStore) UpdateAlignment(ctx context.Context, id string, patch AlignmentPatch) (Alignment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Alignment{}, fmt.Errorf("update alignment %s: %w", id, sql.ErrNoRows)
	}
	var b setBuilder
	b.setString("strength", patch.Strength)
	b.setString("rationale", patch.Rationale)
	if !b.empty() {
		if err := s.inTx(ctx, func(tx *sql.Tx) error { return b.exec(ctx, tx, TableAlignments, id) }); err != nil {
			return Alignment{}, err
		}
	}
	return s.GetAlignment(ctx, id)
}

func (s *PostgresStore) DeleteAlignment(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("delete alignment %s: %w", id, sql.ErrNoRows)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM alignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete alignment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("delete alignment %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// AlignmentsForNode lists edges touching the node on either side, newest first.
func (s *PostgresStore) AlignmentsForNode(ctx context.Context, nodeType schema.NodeType, id string) ([]Alignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alignmentColumns+` FROM alignments
		WHERE (functional_type = $1 AND functional_id = $2) OR (ord_type = $1 AND ord_id = $2)
		ORDER BY created_at DESC, id
	`, string(nodeType), id)
	if err != nil {
		return nil, fmt.Errorf("query alignments: %w", err)
	}
	defer rows.Close()

	alignments := make([]Alignment, 0)
	for rows.Next() {
		alignment, err := scanAlignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alignment: %w", err)
		}
		alignments = append(alignments, alignment)
	}
	return alignments, rows.Err()
}

func (s *PostgresStore) ListAlignments(ctx context.Context) ([]Alignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alignmentColumns+` FROM alignments ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query alignments: %w", err)
	}
	defer rows.Close()

	alignments := make([]Alignment, 0)
	for rows.Next() {
		alignment, err := scanAlignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alignment: %w", err)
		}
		alignments = append(alignments, alignment)
	}
	return alignments, rows.Err()
}

func (s *PostgresStore) CountAlignments(ctx context.Context, nodeType schema.NodeType, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alignments
		WHERE (functional_type = $1 AND functional_id = $2) OR (ord_type = $1 AND ord_id = $2)
	`, string(nodeType), id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count alignments: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlignment(row scanner) (Alignment, error) {
	var a Alignment
	err := row.Scan(&a.ID, &a.FunctionalType, &a.FunctionalID, &a.OrdType, &a.OrdID, &a.Strength, &a.Rationale, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
