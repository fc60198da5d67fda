package guard

import "fmt"

// CostPolicy inspects an otherwise valid statement for expense patterns.
// Check returns an empty string to pass or a retry reason.
type CostPolicy interface {
	Check(sql string, refs references) string
	Name() string
}

// PermissivePolicy accepts everything. The default.
type PermissivePolicy struct{}

func (PermissivePolicy) Check(_ string, _ references) string { return "" }
func (PermissivePolicy) Name() string                        { return "permissive" }

// HeuristicPolicy flags query shapes that tend to explode on analytical
// tables: comma-join cartesian products, unbounded result sets, and join
// counts past a configured cap.
type HeuristicPolicy struct {
	RequireLimit bool
	MaxJoins     int // 0 disables the check
}

func (p HeuristicPolicy) Check(_ string, refs references) string {
	if refs.commaJoin {
		return "comma-separated tables in FROM form a cartesian product, use an explicit JOIN with a join condition"
	}

	if p.MaxJoins > 0 && refs.joins > p.MaxJoins {
		return fmt.Sprintf("query uses %d joins, at most %d are allowed", refs.joins, p.MaxJoins)
	}

	if p.RequireLimit && !refs.hasLimit {
		return "add a LIMIT clause to bound the result set"
	}

	return ""
}

func (p HeuristicPolicy) Name() string { return "heuristic" }
