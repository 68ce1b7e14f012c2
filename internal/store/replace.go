package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceStats counts the rows written by ReplaceHierarchy.
type ReplaceStats struct {
	Pillars    int `json:"pillars"`
	Categories int `json:"categories"`
	Goals      int `json:"goals"`
	Programs   int `json:"programs"`
}

var idSequences = []struct {
	table    Table
	sequence string
}{
	{TablePillars, "pillar_id_seq"},
	{TableCategories, "category_id_seq"},
	{TableGoals, "goal_id_seq"},
	{TablePrograms, "program_id_seq"},
}

// ReplaceHierarchy deletes the four hierarchy tables and inserts the snapshot
// rows with their own ids, in slice order, inside one transaction. Each id
// sequence is then moved past the highest numeric suffix so later creates do
// not collide with imported ids. Alignments and progress history are kept.
func (s *PostgresStore) ReplaceHierarchy(ctx context.Context, snapshot Snapshot) (ReplaceStats, error) {
	var stats ReplaceStats
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []Table{TablePrograms, TableGoals, TableCategories, TablePillars} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+string(table)); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		for _, p := range snapshot.Pillars {
			if _, err := tx.ExecContext(ctx, `INSERT INTO pillars (id, name, function_name) VALUES ($1, $2, $3)`, p.ID, p.Name, p.Function); err != nil {
				return fmt.Errorf("insert pillar %s: %w", p.ID, err)
			}
			stats.Pillars++
		}
		for _, c := range snapshot.Categories {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO categories (id, name, status, comments, pillar_id) VALUES ($1, $2, $3, $4, $5)
			`, c.ID, c.Name, c.Status, c.Comments, c.PillarID); err != nil {
				return fmt.Errorf("insert category %s: %w", c.ID, err)
			}
			stats.Categories++
		}
		for _, g := range snapshot.Goals {
			sponsors, err := encodeSponsors(g.Sponsors)
			if err != nil {
				return fmt.Errorf("encode goal %s sponsors: %w", g.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO goals (
					id, text, status, comments,
					q1_objective, q2_objective, q3_objective, q4_objective,
					q1_status, q2_status, q3_status, q4_status,
					sponsors, progress_updates, category_id, pillar_id
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15, $16)
			`,
				g.ID, g.Text, g.Status, g.Comments,
				g.Objectives.Q1, g.Objectives.Q2, g.Objectives.Q3, g.Objectives.Q4,
				g.Statuses.Q1, g.Statuses.Q2, g.Statuses.Q3, g.Statuses.Q4,
				sponsors, g.ProgressUpdates, g.CategoryID, g.PillarID,
			); err != nil {
				return fmt.Errorf("insert goal %s: %w", g.ID, err)
			}
			stats.Goals++
		}
		for _, p := range snapshot.Programs {
			sponsors, err := encodeSponsors(p.Sponsors)
			if err != nil {
				return fmt.Errorf("encode program %s sponsors: %w", p.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO programs (
					id, text,
					q1_objective, q2_objective, q3_objective, q4_objective,
					q1_status, q2_status, q3_status, q4_status,
					q1_progress, q2_progress, q3_progress, q4_progress,
					sponsors, progress_updates, goal_id, category_id, pillar_id
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb, $16, $17, $18, $19)
			`,
				p.ID, p.Text,
				p.Objectives.Q1, p.Objectives.Q2, p.Objectives.Q3, p.Objectives.Q4,
				p.Statuses.Q1, p.Statuses.Q2, p.Statuses.Q3, p.Statuses.Q4,
				p.Progress.Q1, p.Progress.Q2, p.Progress.Q3, p.Progress.Q4,
				sponsors, p.ProgressUpdates, p.GoalID, p.CategoryID, p.PillarID,
			); err != nil {
				return fmt.Errorf("insert program %s: %w", p.ID, err)
			}
			stats.Programs++
		}

		for _, seq := range idSequences {
			query := fmt.Sprintf(`
				SELECT setval('%s', GREATEST(m, 1), m > 0)
				FROM (SELECT COALESCE(MAX(SUBSTRING(id FROM '([0-9]+)$')::bigint), 0) AS m FROM %s) suffixes
			`, seq.sequence, seq.table)
			if _, err := tx.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("advance %s: %w", seq.sequence, err)
			}
		}
		return nil
	})
	if err != nil {
		return ReplaceStats{}, err
	}
	return stats, nil
}

// HierarchyCounts returns the row count of each hierarchy table.
func (s *PostgresStore) HierarchyCounts(ctx context.Context) (ReplaceStats, error) {
	var stats ReplaceStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM pillars),
			(SELECT COUNT(*) FROM categories),
			(SELECT COUNT(*) FROM goals),
			(SELECT COUNT(*) FROM programs)
	`).Scan(&stats.Pillars, &stats.Categories, &stats.Goals, &stats.Programs)
	if err != nil {
		return ReplaceStats{}, fmt.Errorf("count hierarchy: %w", err)
	}
	return stats, nil
}
