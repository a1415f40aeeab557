package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// MergeConfig defines a staged merge into Table.
type MergeConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // columns carried by each row
	ConflictKeys []string // columns forming the unique constraint
	// SetClauses are raw "col = expr" assignments for the conflict branch.
	// Expressions may reference EXCLUDED and the target table by name. Nil
	// overwrites every non-key column from EXCLUDED.
	SetClauses []string
}

// MergeResult counts rows by what the merge did to them.
type MergeResult struct {
	Inserted int
	Updated  int
}

// Merge stages rows in a temp table with COPY and merges them into the
// target with one INSERT ... SELECT ... ON CONFLICT statement, inside tx.
// The caller owns the transaction. Rows must not repeat a conflict key.
func Merge(ctx context.Context, tx pgx.Tx, cfg MergeConfig, rows [][]any) (MergeResult, error) {
	var res MergeResult
	if len(rows) == 0 {
		return res, nil
	}
	if len(cfg.Columns) == 0 {
		return res, eris.New("db: merge: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return res, eris.New("db: merge: no conflict keys specified")
	}

	stage := stageTable(cfg.Table)
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{stage}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return res, eris.Wrapf(err, "db: merge: create stage for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return res, eris.Wrapf(err, "db: merge: COPY into stage for %s", cfg.Table)
	}

	rs, err := tx.Query(ctx, mergeSQL(cfg, stage))
	if err != nil {
		return res, eris.Wrapf(err, "db: merge: INSERT ON CONFLICT for %s", cfg.Table)
	}
	defer rs.Close()
	for rs.Next() {
		var inserted bool
		if err := rs.Scan(&inserted); err != nil {
			return res, eris.Wrap(err, "db: merge: scan")
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	return res, eris.Wrap(rs.Err(), "db: merge: iterate")
}

func mergeSQL(cfg MergeConfig, stage string) string {
	set := cfg.SetClauses
	if set == nil {
		keys := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			keys[k] = true
		}
		for _, c := range cfg.Columns {
			if !keys[c] {
				id := pgx.Identifier{c}.Sanitize()
				set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", id, id))
			}
		}
	}
	cols := quoteAndJoin(cfg.Columns)
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s RETURNING (xmax = 0)",
		sanitizeTable(cfg.Table),
		cols,
		cols,
		pgx.Identifier{stage}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys),
		strings.Join(set, ", "),
	)
}

func stageTable(table string) string {
	return "_stage_" + strings.ReplaceAll(table, ".", "_")
}

// sanitizeTable handles schema-qualified table names like "crm.leads".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
