package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/storage/database"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// base gives every repository its connection and transaction lookup.
type base struct {
	db *sqlx.DB
}

func (b base) exec(ctx context.Context) sqlx.ExtContext {
	return database.Execer(ctx, b.db)
}

func (b base) get(ctx context.Context, dest interface{}, query sq.Sqlizer) error {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, b.exec(ctx), dest, sqlStr, args...)
}

func (b base) selectAll(ctx context.Context, dest interface{}, query sq.Sqlizer) error {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, b.exec(ctx), dest, sqlStr, args...)
}

// run executes a write and returns the number of affected rows.
func (b base) run(ctx context.Context, query sq.Sqlizer) (int, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := b.exec(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// runOne executes a write that must affect exactly one row, notFound otherwise.
func (b base) runOne(ctx context.Context, query sq.Sqlizer, notFound error) error {
	n, err := b.run(ctx, query)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (b base) exists(ctx context.Context, table string, cond sq.Sqlizer) (bool, error) {
	var found bool
	query := psql.Select("1").From(table).Where(cond).Limit(1).Prefix("SELECT EXISTS (").Suffix(")")
	err := b.get(ctx, &found, query)
	return found, err
}

// count counts the rows of table matching cond.
func (b base) count(ctx context.Context, table string, cond sq.Sqlizer) (int, error) {
	var n int
	err := b.get(ctx, &n, psql.Select("COUNT(*)").From(table).Where(cond))
	return n, err
}

// page runs q against table: it counts every match, then selects the window into dest.
// columns whitelists the fields q may reference.
func (b base) page(ctx context.Context, table string, columns map[string]string, q core.Query, dest interface{}) (int, error) {
	cond, err := conditions(q, columns)
	if err != nil {
		return 0, err
	}
	total, err := b.count(ctx, table, cond)
	if err != nil {
		return 0, errors.Wrap(err, "counting rows")
	}

	orderBy, err := ordering(q, columns)
	if err != nil {
		return 0, err
	}
	sel := psql.Select(table + ".*").From(table).Where(cond).OrderBy(orderBy...)
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		sel = sel.Offset(uint64(q.Offset))
	}
	if err = b.selectAll(ctx, dest, sel); err != nil {
		return 0, errors.Wrap(err, "selecting rows")
	}
	return total, nil
}

func column(columns map[string]string, field string) (string, error) {
	col, ok := columns[field]
	if !ok {
		return "", errors.Errorf("unknown field %q", field)
	}
	return col, nil
}

func conditions(q core.Query, columns map[string]string) (sq.And, error) {
	cond := sq.And{}
	for _, p := range q.Where {
		col, err := column(columns, p.Field)
		if err != nil {
			return nil, err
		}
		switch p.Op {
		case core.OpEq, "":
			cond = append(cond, sq.Eq{col: p.Value})
		case core.OpIn:
			cond = append(cond, sq.Eq{col: p.Value})
		case core.OpGTE:
			cond = append(cond, sq.GtOrEq{col: p.Value})
		case core.OpLTE:
			cond = append(cond, sq.LtOrEq{col: p.Value})
		case core.OpAnyPrefix:
			prefixes, _ := p.Value.([]string)
			anyOf := sq.Or{}
			for _, prefix := range prefixes {
				anyOf = append(anyOf, sq.Expr(
					fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(%s) AS elem WHERE elem LIKE ?)", col),
					escapeLike(prefix)+"%",
				))
			}
			cond = append(cond, anyOf)
		default:
			return nil, errors.Errorf("unsupported operator %q", p.Op)
		}
	}

	if q.Search != "" && len(q.SearchFields) > 0 {
		search := sq.Or{}
		pattern := "%" + escapeLike(q.Search) + "%"
		for _, field := range q.SearchFields {
			col, err := column(columns, field)
			if err != nil {
				return nil, err
			}
			search = append(search, sq.ILike{col: pattern})
		}
		cond = append(cond, search)
	}
	return cond, nil
}

func ordering(q core.Query, columns map[string]string) ([]string, error) {
	ords := q.StableOrdering()
	orderBy := make([]string, 0, len(ords))
	for _, ord := range ords {
		col, err := column(columns, ord.Field)
		if err != nil {
			return nil, err
		}
		orderBy = append(orderBy, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	return orderBy, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// notFound maps sql.ErrNoRows to notFoundErr.
func notFound(err error, notFoundErr error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFoundErr
	}
	if core.IsNotFound(err) {
		return err
	}
	return errors.Wrap(err, msg)
}

// distinct collects the distinct non-empty keys of rows.
func distinct[T any](rows []T, key func(T) string) []string {
	seen := make(map[string]bool, len(rows))
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// qualified prefixes every column with table.
func qualified(table string, fields ...string) map[string]string {
	columns := make(map[string]string, len(fields)+1)
	columns[core.IDField] = table + "." + core.IDField
	for _, f := range fields {
		columns[f] = table + "." + f
	}
	return columns
}
