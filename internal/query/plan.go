package query

import (
	"fmt"
	"strings"
)

const MasterAlias = "A"

// ReferenceAlias returns the positional alias of the i-th reference.
func ReferenceAlias(i int) string {
	return fmt.Sprintf("R%d", i)
}

// OutputColumnName is the projected name of a pulled reference column.
func OutputColumnName(alias, column string) string {
	return alias + "_" + column
}

// NewChainPlan validates and returns a plan. Every reference needs at least
// one match pair; without one the join would degrade into a cross join.
func NewChainPlan(master string, references ...JoinSpec) (ChainPlan, error) {
	plan := ChainPlan{Master: master, References: references}
	if err := plan.Validate(); err != nil {
		return ChainPlan{}, err
	}
	return plan, nil
}

func (p ChainPlan) Validate() error {
	if strings.TrimSpace(p.Master) == "" {
		return &Error{Kind: KindPlan, Op: "validate master", Err: ErrEmptyPath}
	}
	for i, ref := range p.References {
		alias := ReferenceAlias(i)
		if strings.TrimSpace(ref.Path) == "" {
			return &Error{Kind: KindPlan, Op: "validate reference " + alias, Err: ErrEmptyPath}
		}
		if len(ref.Match) == 0 {
			return &Error{Kind: KindPlan, Op: "validate reference " + alias, Path: ref.Path, Err: ErrNoMatchPairs}
		}
		for j, pair := range ref.Match {
			if pair.MasterColumn == "" || pair.ReferenceColumn == "" {
				return &Error{Kind: KindPlan, Op: fmt.Sprintf("validate reference %s match pair %d", alias, j), Path: ref.Path, Err: ErrEmptyColumn}
			}
		}
		seen := make(map[string]struct{}, len(ref.Pull))
		for _, column := range ref.Pull {
			if column == "" {
				return &Error{Kind: KindPlan, Op: "validate reference " + alias + " pull columns", Path: ref.Path, Err: ErrEmptyColumn}
			}
			if _, ok := seen[column]; ok {
				return &Error{Kind: KindPlan, Op: "validate reference " + alias + " pull column " + column, Path: ref.Path, Err: ErrDuplicateColumn}
			}
			seen[column] = struct{}{}
		}
	}
	return nil
}

// OutputColumns lists the columns a plan adds to the master, in order.
func (p ChainPlan) OutputColumns() []string {
	columns := make([]string, 0)
	for i, ref := range p.References {
		alias := ReferenceAlias(i)
		for _, column := range ref.Pull {
			columns = append(columns, OutputColumnName(alias, column))
		}
	}
	return columns
}

// DuplicateColumns returns the names that occur more than once in columns, in
// first-repeat order. A master column already named like a pulled column
// (R0_note) shows up here.
func DuplicateColumns(columns []string) []string {
	seen := make(map[string]int, len(columns))
	var duplicates []string
	for _, column := range columns {
		seen[column]++
		if seen[column] == 2 {
			duplicates = append(duplicates, column)
		}
	}
	return duplicates
}

// Paths returns the master path followed by every reference path.
func (p ChainPlan) Paths() []string {
	paths := make([]string, 0, len(p.References)+1)
	paths = append(paths, p.Master)
	for _, ref := range p.References {
		paths = append(paths, ref.Path)
	}
	return paths
}
