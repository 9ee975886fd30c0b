package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"

	"streamretry/internal/declare"
)

// Catalog stores retry declarations. Rows keep the order in which they were saved,
// so a loaded table applies in the same order as the saved one.
type Catalog struct {
	db *sql.DB
}

// NewCatalog wraps a database that already has the catalog schema.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// OpenCatalog opens the catalog at path, migrating it first. MemoryPath gives a
// private in-memory catalog.
func OpenCatalog(ctx context.Context, path string) (*Catalog, MigrationInfo, error) {
	if path == MemoryPath {
		db, err := NewInMemoryDB(ctx)
		if err != nil {
			return nil, MigrationInfo{}, err
		}
		info, err := migrateDB(db)
		if err != nil {
			_ = db.Close()
			return nil, info, err
		}
		return NewCatalog(db), info, nil
	}

	info, err := ApplyMigrations(path)
	if err != nil {
		return nil, info, err
	}
	db, err := NewDB(ctx, path)
	if err != nil {
		return nil, info, err
	}
	return NewCatalog(db), info, nil
}

// DB returns the underlying database.
func (c *Catalog) DB() *sql.DB { return c.db }

// Close closes the database.
func (c *Catalog) Close() error { return c.db.Close() }

// Load reads every declaration.
func (c *Catalog) Load(ctx context.Context) (declare.Table, error) {
	var t declare.Table

	rows, err := c.db.QueryContext(ctx, `SELECT name, parent FROM categories ORDER BY position, name`)
	if err != nil {
		return t, fmt.Errorf("catalog: load categories: %w", err)
	}
	err = scanAll(rows, func(r *sql.Rows) error {
		var row declare.CategoryRow
		if err := r.Scan(&row.Name, &row.Parent); err != nil {
			return err
		}
		t.Categories = append(t.Categories, row)
		return nil
	})
	if err != nil {
		return t, fmt.Errorf("catalog: load categories: %w", err)
	}

	rows, err = c.db.QueryContext(ctx, `SELECT name, policy FROM executors ORDER BY position, name`)
	if err != nil {
		return t, fmt.Errorf("catalog: load executors: %w", err)
	}
	err = scanAll(rows, func(r *sql.Rows) error {
		var (
			row    declare.ExecutorRow
			policy string
		)
		if err := r.Scan(&row.Name, &policy); err != nil {
			return err
		}
		p, err := decodePolicy(sql.NullString{String: policy, Valid: true})
		if err != nil {
			return fmt.Errorf("executor %s: %w", row.Name, err)
		}
		row.Policy = *p
		t.Executors = append(t.Executors, row)
		return nil
	})
	if err != nil {
		return t, fmt.Errorf("catalog: load executors: %w", err)
	}

	rows, err = c.db.QueryContext(ctx, `SELECT type_id, recover, policy FROM type_declarations ORDER BY position, type_id`)
	if err != nil {
		return t, fmt.Errorf("catalog: load types: %w", err)
	}
	err = scanAll(rows, func(r *sql.Rows) error {
		var (
			row    declare.TypeRow
			policy sql.NullString
		)
		if err := r.Scan(&row.Type, &row.Recover, &policy); err != nil {
			return err
		}
		p, err := decodePolicy(policy)
		if err != nil {
			return fmt.Errorf("type %s: %w", row.Type, err)
		}
		row.Policy = p
		t.Types = append(t.Types, row)
		return nil
	})
	if err != nil {
		return t, fmt.Errorf("catalog: load types: %w", err)
	}

	rows, err = c.db.QueryContext(ctx, `
		SELECT type_id, name, params, returns, recover, policy
		FROM method_declarations ORDER BY position, type_id, name`)
	if err != nil {
		return t, fmt.Errorf("catalog: load methods: %w", err)
	}
	err = scanAll(rows, func(r *sql.Rows) error {
		var (
			row    declare.MethodRow
			params string
			policy sql.NullString
		)
		if err := r.Scan(&row.Type, &row.Name, &params, &row.Returns, &row.Recover, &policy); err != nil {
			return err
		}
		if params != "" {
			row.Params = strings.Split(params, ",")
		}
		p, err := decodePolicy(policy)
		if err != nil {
			return fmt.Errorf("method %s.%s: %w", row.Type, row.Name, err)
		}
		row.Policy = p
		t.Methods = append(t.Methods, row)
		return nil
	})
	if err != nil {
		return t, fmt.Errorf("catalog: load methods: %w", err)
	}

	return t, nil
}

// Save validates t and upserts its rows in one transaction. Rows not in t are kept.
func (c *Catalog) Save(ctx context.Context, t declare.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return c.withinTx(ctx, func(tx *sql.Tx) error {
		base, err := nextPositions(ctx, tx)
		if err != nil {
			return err
		}

		for i, row := range t.Categories {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO categories (name, parent, position) VALUES (?, ?, ?)
				ON CONFLICT (name) DO UPDATE SET parent = excluded.parent, updated_at = CURRENT_TIMESTAMP`,
				row.Name, row.Parent, base+i)
			if err != nil {
				return fmt.Errorf("category %s: %w", row.Name, err)
			}
		}

		for i, row := range t.Executors {
			policy, err := encodePolicy(&row.Policy)
			if err != nil {
				return fmt.Errorf("executor %s: %w", row.Name, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO executors (name, policy, position) VALUES (?, ?, ?)
				ON CONFLICT (name) DO UPDATE SET policy = excluded.policy, updated_at = CURRENT_TIMESTAMP`,
				row.Name, policy, base+i)
			if err != nil {
				return fmt.Errorf("executor %s: %w", row.Name, err)
			}
		}

		for i, row := range t.Types {
			policy, err := encodePolicy(row.Policy)
			if err != nil {
				return fmt.Errorf("type %s: %w", row.Type, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO type_declarations (type_id, recover, policy, position) VALUES (?, ?, ?, ?)
				ON CONFLICT (type_id) DO UPDATE SET
					recover = excluded.recover, policy = excluded.policy, updated_at = CURRENT_TIMESTAMP`,
				row.Type, row.Recover, policy, base+i)
			if err != nil {
				return fmt.Errorf("type %s: %w", row.Type, err)
			}
		}

		for i, row := range t.Methods {
			policy, err := encodePolicy(row.Policy)
			if err != nil {
				return fmt.Errorf("method %s.%s: %w", row.Type, row.Name, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO method_declarations (type_id, name, params, returns, recover, policy, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (type_id, name, params) DO UPDATE SET
					returns = excluded.returns, recover = excluded.recover,
					policy = excluded.policy, updated_at = CURRENT_TIMESTAMP`,
				row.Type, row.Name, strings.Join(row.Params, ","), row.Returns, row.Recover, policy, base+i)
			if err != nil {
				return fmt.Errorf("method %s.%s: %w", row.Type, row.Name, err)
			}
		}
		return nil
	})
}

// Clear deletes every declaration.
func (c *Catalog) Clear(ctx context.Context) error {
	return c.withinTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"method_declarations", "type_declarations", "executors", "categories"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func (c *Catalog) withinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("catalog: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

// nextPositions returns a position greater than any stored one, so that newly
// saved rows sort after existing rows.
func nextPositions(ctx context.Context, tx *sql.Tx) (int, error) {
	var maxPos int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(p), -1) + 1 FROM (
			SELECT MAX(position) AS p FROM categories
			UNION ALL SELECT MAX(position) FROM executors
			UNION ALL SELECT MAX(position) FROM type_declarations
			UNION ALL SELECT MAX(position) FROM method_declarations
		)`).Scan(&maxPos)
	if err != nil {
		return 0, fmt.Errorf("positions: %w", err)
	}
	return maxPos, nil
}

func scanAll(rows *sql.Rows, fn func(*sql.Rows) error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func encodePolicy(p *declare.Policy) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	b, err := yaml.Marshal(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodePolicy(s sql.NullString) (*declare.Policy, error) {
	if !s.Valid {
		return nil, nil
	}
	p := new(declare.Policy)
	if err := yaml.UnmarshalStrict([]byte(s.String), p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return p, nil
}
