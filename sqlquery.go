package reservebase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xwb1989/sqlparser"
)

// Table names exposed by the SQL engine and the key prefixes they scan
var tablePrefixes = map[string]string{
	"reservations": "reservation::",
	"users":        "user::",
	"logs":         "log::",
}

// SQLQueryEngine is the native query path: it evaluates SQL SELECT
// statements over the JSON documents in the store. Statements are built
// internally with bind variables; user input never reaches the SQL text.
//
// The engine scans the table's key prefix and filters in memory. That is
// acceptable at current data volumes; the per-key indexes remain the
// fallback when the scan path is unavailable.
type SQLQueryEngine struct {
	store  *Store
	logger Logger
}

// NewSQLQueryEngine creates a SQL engine over the store
func NewSQLQueryEngine(store *Store) *SQLQueryEngine {
	return &SQLQueryEngine{
		store:  store,
		logger: store.logger,
	}
}

// QueryReservations answers a reservation filter through the SQL path
func (e *SQLQueryEngine) QueryReservations(ctx context.Context, f ReservationFilter) ([]*Reservation, error) {
	var clauses []string
	binds := map[string]interface{}{}

	if f.Status != "" {
		clauses = append(clauses, "status = :status")
		binds["status"] = f.Status
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "createdBy = :createdBy")
		binds["createdBy"] = f.CreatedBy
	}
	if f.GuestName != "" {
		clauses = append(clauses, "lower(guestName) LIKE :guestName")
		binds["guestName"] = "%" + strings.ToLower(f.GuestName) + "%"
	}
	if f.StartDate != nil {
		clauses = append(clauses, "expectedArrivalTime >= :startDate")
		binds["startDate"] = f.StartDate.Format(time.RFC3339Nano)
	}
	if f.EndDate != nil {
		clauses = append(clauses, "expectedArrivalTime <= :endDate")
		binds["endDate"] = f.EndDate.Format(time.RFC3339Nano)
	}

	sql := "SELECT * FROM reservations"
	if len(clauses) > 0 {
		sql += " WHERE " + strings.Join(clauses, " AND ")
	}

	raws, err := e.selectRaw(ctx, sql, binds)
	if err != nil {
		return nil, err
	}
	return decodeRows[Reservation](raws)
}

// QueryUsersByRole answers a role lookup through the SQL path
func (e *SQLQueryEngine) QueryUsersByRole(ctx context.Context, role string) ([]*User, error) {
	raws, err := e.selectRaw(ctx,
		"SELECT * FROM users WHERE role = :role",
		map[string]interface{}{"role": role},
	)
	if err != nil {
		return nil, err
	}
	return decodeRows[User](raws)
}

// QueryLogsByReservation answers an audit-trail lookup through the SQL path
func (e *SQLQueryEngine) QueryLogsByReservation(ctx context.Context, reservationID string) ([]*ChangeLog, error) {
	raws, err := e.selectRaw(ctx,
		"SELECT * FROM logs WHERE reservationId = :reservationId",
		map[string]interface{}{"reservationId": reservationID},
	)
	if err != nil {
		return nil, err
	}
	return decodeRows[ChangeLog](raws)
}

// selectRaw parses a SELECT, scans the table's key prefix, and returns the
// raw JSON of every document matching the WHERE clause
func (e *SQLQueryEngine) selectRaw(ctx context.Context, sql string, binds map[string]interface{}) ([][]byte, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, fmt.Errorf("unsupported statement type: %T", stmt)
	}
	if len(sel.From) != 1 {
		return nil, fmt.Errorf("only single table SELECT supported")
	}

	tableName, err := getTableName(sel.From[0])
	if err != nil {
		return nil, err
	}
	prefix, ok := tablePrefixes[tableName]
	if !ok {
		return nil, fmt.Errorf("unknown table: %s", tableName)
	}

	keys, err := e.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	results := make([][]byte, 0, len(keys))
	for _, key := range keys {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		data, err := e.store.Backend().Get(ctx, key)
		if err != nil {
			if IsNotFound(err) {
				// Deleted between list and get
				continue
			}
			return nil, err
		}

		var row map[string]interface{}
		if err := json.Unmarshal(data, &row); err != nil {
			e.logger.Warn("skipping undecodable document", "key", key, "error", err)
			continue
		}

		if sel.Where == nil || matchesWhere(row, sel.Where.Expr, binds) {
			results = append(results, data)
		}
	}

	return results, nil
}

func decodeRows[T any](raws [][]byte) ([]*T, error) {
	results := make([]*T, 0, len(raws))
	for _, raw := range raws {
		var entity T
		if err := json.Unmarshal(raw, &entity); err != nil {
			return nil, err
		}
		results = append(results, &entity)
	}
	return results, nil
}

func getTableName(expr sqlparser.TableExpr) (string, error) {
	switch t := expr.(type) {
	case *sqlparser.AliasedTableExpr:
		if tbl, ok := t.Expr.(sqlparser.TableName); ok {
			return tbl.Name.String(), nil
		}
	}
	return "", fmt.Errorf("could not determine table name")
}

func matchesWhere(row map[string]interface{}, expr sqlparser.Expr, binds map[string]interface{}) bool {
	switch e := expr.(type) {
	case *sqlparser.ComparisonExpr:
		left := evalOperand(row, e.Left, binds)
		right := evalOperand(row, e.Right, binds)
		return compareValues(left, right, e.Operator)
	case *sqlparser.AndExpr:
		return matchesWhere(row, e.Left, binds) && matchesWhere(row, e.Right, binds)
	case *sqlparser.OrExpr:
		return matchesWhere(row, e.Left, binds) || matchesWhere(row, e.Right, binds)
	case *sqlparser.ParenExpr:
		return matchesWhere(row, e.Expr, binds)
	}
	return true
}

func evalOperand(row map[string]interface{}, expr sqlparser.Expr, binds map[string]interface{}) interface{} {
	switch e := expr.(type) {
	case *sqlparser.ColName:
		return row[e.Name.String()]
	case *sqlparser.SQLVal:
		switch e.Type {
		case sqlparser.StrVal, sqlparser.IntVal, sqlparser.FloatVal:
			return string(e.Val)
		case sqlparser.ValArg:
			return binds[strings.TrimPrefix(string(e.Val), ":")]
		}
	case *sqlparser.FuncExpr:
		if strings.ToLower(e.Name.String()) == "lower" && len(e.Exprs) == 1 {
			if arg, ok := e.Exprs[0].(*sqlparser.AliasedExpr); ok {
				inner := evalOperand(row, arg.Expr, binds)
				return strings.ToLower(fmt.Sprintf("%v", inner))
			}
		}
	case *sqlparser.NullVal:
		return nil
	}
	return nil
}

// compareValues applies a comparison operator, trying timestamp and numeric
// interpretations before falling back to string comparison
func compareValues(left, right interface{}, op string) bool {
	ls := fmt.Sprintf("%v", left)
	rs := fmt.Sprintf("%v", right)

	if op == sqlparser.LikeStr {
		return matchLike(ls, rs)
	}
	if op == sqlparser.NotLikeStr {
		return !matchLike(ls, rs)
	}

	var cmp int
	if lt, lerr := time.Parse(time.RFC3339Nano, ls); lerr == nil {
		if rt, rerr := time.Parse(time.RFC3339Nano, rs); rerr == nil {
			cmp = lt.Compare(rt)
			return applyOrder(cmp, op)
		}
	}
	if lf, lerr := strconv.ParseFloat(ls, 64); lerr == nil {
		if rf, rerr := strconv.ParseFloat(rs, 64); rerr == nil {
			switch {
			case lf < rf:
				cmp = -1
			case lf > rf:
				cmp = 1
			}
			return applyOrder(cmp, op)
		}
	}
	return applyOrder(strings.Compare(ls, rs), op)
}

func applyOrder(cmp int, op string) bool {
	switch op {
	case sqlparser.EqualStr:
		return cmp == 0
	case sqlparser.NotEqualStr:
		return cmp != 0
	case sqlparser.LessThanStr:
		return cmp < 0
	case sqlparser.LessEqualStr:
		return cmp <= 0
	case sqlparser.GreaterThanStr:
		return cmp > 0
	case sqlparser.GreaterEqualStr:
		return cmp >= 0
	}
	return false
}

// matchLike supports the leading/trailing % patterns the engine generates
func matchLike(value, pattern string) bool {
	switch {
	case strings.HasPrefix(pattern, "%") && strings.HasSuffix(pattern, "%"):
		return strings.Contains(value, strings.Trim(pattern, "%"))
	case strings.HasPrefix(pattern, "%"):
		return strings.HasSuffix(value, strings.TrimPrefix(pattern, "%"))
	case strings.HasSuffix(pattern, "%"):
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "%"))
	default:
		return value == pattern
	}
}
