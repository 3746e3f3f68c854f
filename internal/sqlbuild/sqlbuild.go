// Package sqlbuild renders DuckDB statements from small expression trees.
// Identifiers and string literals are quoted when rendered, so values coming
// from file paths or column headers never become SQL text on their own.
package sqlbuild

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var bareWordPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Expr is a renderable SQL fragment. Only this package can implement it.
type Expr interface {
	writeSQL(b *strings.Builder) error
}

type identExpr struct {
	qualifier string
	name      string
}

// Ident is a double-quoted identifier. Embedded quotes are doubled.
func Ident(name string) Expr {
	return identExpr{name: name}
}

// Col references a column of an aliased relation: alias."name".
func Col(alias, name string) Expr {
	return identExpr{qualifier: alias, name: name}
}

func (e identExpr) writeSQL(b *strings.Builder) error {
	if e.qualifier != "" {
		if err := writeBareWord(b, e.qualifier); err != nil {
			return err
		}
		b.WriteByte('.')
	}
	b.WriteString(QuoteIdent(e.name))
	return nil
}

type starExpr struct {
	qualifier string
}

// Star selects every column of alias, or of the whole FROM clause when alias
// is empty.
func Star(alias string) Expr {
	return starExpr{qualifier: alias}
}

func (e starExpr) writeSQL(b *strings.Builder) error {
	if e.qualifier != "" {
		if err := writeBareWord(b, e.qualifier); err != nil {
			return err
		}
		b.WriteByte('.')
	}
	b.WriteByte('*')
	return nil
}

type stringExpr string

// String is a single-quoted string literal.
func String(value string) Expr {
	return stringExpr(value)
}

func (e stringExpr) writeSQL(b *strings.Builder) error {
	b.WriteString(QuoteString(string(e)))
	return nil
}

type boolExpr bool

func Bool(value bool) Expr {
	return boolExpr(value)
}

func (e boolExpr) writeSQL(b *strings.Builder) error {
	if e {
		b.WriteString("true")
	} else {
		b.WriteString("false")
	}
	return nil
}

type intExpr int64

func Int(value int64) Expr {
	return intExpr(value)
}

func (e intExpr) writeSQL(b *strings.Builder) error {
	b.WriteString(strconv.FormatInt(int64(e), 10))
	return nil
}

type keywordExpr string

// Keyword is a bare word such as PARQUET or CSV. It must be a plain
// identifier-shaped token.
func Keyword(word string) Expr {
	return keywordExpr(word)
}

func (e keywordExpr) writeSQL(b *strings.Builder) error {
	return writeBareWord(b, string(e))
}

type namedArg struct {
	name  string
	value Expr
}

// FuncExpr is a function call with positional and named arguments.
type FuncExpr struct {
	name  string
	args  []Expr
	named []namedArg
}

func Func(name string, args ...Expr) *FuncExpr {
	return &FuncExpr{name: name, args: args}
}

// Named returns a copy of the call with name = value appended.
func (f *FuncExpr) Named(name string, value Expr) *FuncExpr {
	clone := *f
	clone.named = append(append([]namedArg(nil), f.named...), namedArg{name: name, value: value})
	return &clone
}

func (f *FuncExpr) writeSQL(b *strings.Builder) error {
	if err := writeBareWord(b, f.name); err != nil {
		return err
	}
	b.WriteByte('(')
	first := true
	for _, arg := range f.args {
		if !first {
			b.WriteString(", ")
		}
		first = false
		if err := writeExpr(b, arg); err != nil {
			return err
		}
	}
	for _, arg := range f.named {
		if !first {
			b.WriteString(", ")
		}
		first = false
		if err := writeBareWord(b, arg.name); err != nil {
			return err
		}
		b.WriteString(" = ")
		if err := writeExpr(b, arg.value); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

type binaryExpr struct {
	op    string
	left  Expr
	right Expr
}

func Eq(left, right Expr) Expr {
	return binaryExpr{op: "=", left: left, right: right}
}

func (e binaryExpr) writeSQL(b *strings.Builder) error {
	if err := writeExpr(b, e.left); err != nil {
		return err
	}
	b.WriteString(" " + e.op + " ")
	return writeExpr(b, e.right)
}

type andExpr []Expr

// And conjoins terms. It needs at least one term: an empty conjunction would
// silently turn a join into a cross join.
func And(terms ...Expr) Expr {
	return andExpr(terms)
}

func (e andExpr) writeSQL(b *strings.Builder) error {
	if len(e) == 0 {
		return fmt.Errorf("empty conjunction")
	}
	for i, term := range e {
		if i > 0 {
			b.WriteString(" AND ")
		}
		if err := writeExpr(b, term); err != nil {
			return err
		}
	}
	return nil
}

// Render returns the SQL text of a single expression.
func Render(expr Expr) (string, error) {
	var b strings.Builder
	if err := writeExpr(&b, expr); err != nil {
		return "", err
	}
	return b.String(), nil
}

// QuoteIdent double-quotes an identifier.
func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// QuoteString single-quotes a string literal.
func QuoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

// IsBareWord reports whether value can be written without quoting.
func IsBareWord(value string) bool {
	return bareWordPattern.MatchString(value)
}

func writeExpr(b *strings.Builder, expr Expr) error {
	if expr == nil {
		return fmt.Errorf("nil expression")
	}
	return expr.writeSQL(b)
}

func writeBareWord(b *strings.Builder, word string) error {
	if !IsBareWord(word) {
		return fmt.Errorf("invalid bare word %q", word)
	}
	b.WriteString(word)
	return nil
}
