package sqlbuild

import (
	"fmt"
	"strconv"
	"strings"
)

type projection struct {
	expr  Expr
	alias string
}

type relation struct {
	source Expr
	alias  string
}

type joinClause struct {
	relation
	on Expr
}

// SelectStmt is a SELECT over one relation plus any number of LEFT JOINs.
// Methods return modified copies, so a base statement can be reused.
type SelectStmt struct {
	columns  []projection
	from     *relation
	joins    []joinClause
	limit    int
	hasLimit bool
}

func Select() *SelectStmt {
	return &SelectStmt{}
}

// Column projects expr, renamed to alias when alias is not empty.
func (s *SelectStmt) Column(expr Expr, alias string) *SelectStmt {
	clone := s.clone()
	clone.columns = append(clone.columns, projection{expr: expr, alias: alias})
	return clone
}

func (s *SelectStmt) From(source Expr, alias string) *SelectStmt {
	clone := s.clone()
	clone.from = &relation{source: source, alias: alias}
	return clone
}

func (s *SelectStmt) LeftJoin(source Expr, alias string, on Expr) *SelectStmt {
	clone := s.clone()
	clone.joins = append(clone.joins, joinClause{relation: relation{source: source, alias: alias}, on: on})
	return clone
}

// Limit caps the row count. LIMIT 0 is legal and yields only the schema; a
// negative n removes the cap.
func (s *SelectStmt) Limit(n int) *SelectStmt {
	clone := s.clone()
	clone.limit = n
	clone.hasLimit = n >= 0
	return clone
}

func (s *SelectStmt) JoinCount() int {
	return len(s.joins)
}

func (s *SelectStmt) SQL() (string, error) {
	var b strings.Builder
	if err := s.writeSQL(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (s *SelectStmt) writeSQL(b *strings.Builder) error {
	if len(s.columns) == 0 {
		return fmt.Errorf("select has no columns")
	}
	if s.from == nil {
		return fmt.Errorf("select has no FROM relation")
	}

	b.WriteString("SELECT ")
	for i, column := range s.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := writeExpr(b, column.expr); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
		if column.alias != "" {
			b.WriteString(" AS ")
			b.WriteString(QuoteIdent(column.alias))
		}
	}

	b.WriteString(" FROM ")
	if err := s.from.writeSQL(b); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	for _, join := range s.joins {
		b.WriteString(" LEFT JOIN ")
		if err := join.relation.writeSQL(b); err != nil {
			return fmt.Errorf("join %s: %w", join.alias, err)
		}
		b.WriteString(" ON ")
		if err := writeExpr(b, join.on); err != nil {
			return fmt.Errorf("join %s condition: %w", join.alias, err)
		}
	}
	if s.hasLimit {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.limit))
	}
	return nil
}

func (s *SelectStmt) clone() *SelectStmt {
	clone := *s
	clone.columns = append([]projection(nil), s.columns...)
	clone.joins = append([]joinClause(nil), s.joins...)
	return &clone
}

func (r relation) writeSQL(b *strings.Builder) error {
	if err := writeExpr(b, r.source); err != nil {
		return err
	}
	if r.alias == "" {
		return nil
	}
	b.WriteString(" AS ")
	return writeBareWord(b, r.alias)
}

type copyOption struct {
	name  string
	value Expr
}

// CopyStmt writes a query result to a file: COPY (query) TO 'path' (options).
type CopyStmt struct {
	query   *SelectStmt
	path    string
	options []copyOption
}

func Copy(query *SelectStmt, path string) *CopyStmt {
	return &CopyStmt{query: query, path: path}
}

// Option appends an option. A nil value renders the bare option name.
func (c *CopyStmt) Option(name string, value Expr) *CopyStmt {
	clone := *c
	clone.options = append(append([]copyOption(nil), c.options...), copyOption{name: name, value: value})
	return &clone
}

func (c *CopyStmt) SQL() (string, error) {
	if c.query == nil {
		return "", fmt.Errorf("copy has no query")
	}
	if strings.TrimSpace(c.path) == "" {
		return "", fmt.Errorf("copy has no target path")
	}

	var b strings.Builder
	b.WriteString("COPY (")
	if err := c.query.writeSQL(&b); err != nil {
		return "", err
	}
	b.WriteString(") TO ")
	b.WriteString(QuoteString(c.path))
	if len(c.options) > 0 {
		b.WriteString(" (")
		for i, option := range c.options {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := writeBareWord(&b, option.name); err != nil {
				return "", err
			}
			if option.value != nil {
				b.WriteByte(' ')
				if err := writeExpr(&b, option.value); err != nil {
					return "", err
				}
			}
		}
		b.WriteByte(')')
	}
	return b.String(), nil
}

// Set renders SET name = value.
func Set(name string, value Expr) (string, error) {
	var b strings.Builder
	b.WriteString("SET ")
	if err := writeBareWord(&b, name); err != nil {
		return "", err
	}
	b.WriteString(" = ")
	if err := writeExpr(&b, value); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Load renders LOAD extension.
func Load(extension string) (string, error) {
	if !IsBareWord(extension) {
		return "", fmt.Errorf("invalid extension name %q", extension)
	}
	return "LOAD " + extension, nil
}

// Install renders INSTALL extension.
func Install(extension string) (string, error) {
	if !IsBareWord(extension) {
		return "", fmt.Errorf("invalid extension name %q", extension)
	}
	return "INSTALL " + extension, nil
}
