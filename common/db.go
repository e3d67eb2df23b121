package common

import (
	"dice-server/common/logger"

	g "github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var (
	dialect = g.Dialect("mysql")
)

// Count 统计满足条件的行数
func Count(db *sqlx.DB, table string, ex ...exp.Expression) (int, error) {

	var count int
	query, _, _ := dialect.Select(g.COUNT("*")).From(table).Where(ex...).ToSQL()
	err := db.Get(&count, query)
	if err != nil {
		logger.Warn("count failed", zap.String("table", table), zap.Error(err))
	}

	return count, err
}

// SumInfo 对指定字段求和，空结果集返回 0
func SumInfo(db *sqlx.DB, table, name string, ex ...exp.Expression) (float64, error) {

	var sum float64
	query, _, _ := dialect.Select(g.COALESCE(g.SUM(name), 0)).From(table).Where(ex...).ToSQL()
	err := db.Get(&sum, query)
	if err != nil {
		logger.Warn("sum failed", zap.String("table", table), zap.Error(err))
	}

	return sum, err
}
