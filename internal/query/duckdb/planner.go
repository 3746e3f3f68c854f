package duckdb

import (
	"github.com/quantumlink/quantumlink/internal/query"
	"github.com/quantumlink/quantumlink/internal/sqlbuild"
)

// BuildQuery turns a chain plan into one SELECT with a LEFT JOIN per
// reference. The master keeps all of its rows and columns (A.*); each pulled
// column is renamed to R{i}_{column}.
func BuildQuery(plan query.ChainPlan) (*sqlbuild.SelectStmt, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	master := Resolve(plan.Master)
	stmt := sqlbuild.Select().
		Column(sqlbuild.Star(query.MasterAlias), "").
		From(master.Scan, query.MasterAlias)

	for i, ref := range plan.References {
		alias := query.ReferenceAlias(i)
		source := Resolve(ref.Path)

		for _, column := range ref.Pull {
			stmt = stmt.Column(sqlbuild.Col(alias, column), query.OutputColumnName(alias, column))
		}

		terms := make([]sqlbuild.Expr, 0, len(ref.Match))
		for _, pair := range ref.Match {
			terms = append(terms, sqlbuild.Eq(
				sqlbuild.Col(query.MasterAlias, pair.MasterColumn),
				sqlbuild.Col(alias, pair.ReferenceColumn),
			))
		}
		stmt = stmt.LeftJoin(source.Scan, alias, sqlbuild.And(terms...))
	}

	return stmt, nil
}

// RenderQuery returns the SQL text of a plan without executing it.
func RenderQuery(plan query.ChainPlan) (string, error) {
	stmt, err := BuildQuery(plan)
	if err != nil {
		return "", err
	}
	sqlText, err := stmt.SQL()
	if err != nil {
		return "", &query.Error{Kind: query.KindPlan, Op: "render query", Err: err}
	}
	return sqlText, nil
}
