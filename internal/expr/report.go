package expr

import "sort"

// Entries returns the ops in table that should appear in the final
// report: sorted by descending max global error, and -- when
// suppressSubexpressions is set (the report_exprs option, spec §6) --
// with any op excluded whose op-AST is a descendant of another reported
// op's op-AST (spec §4.5's last paragraph, and the "subexpression
// suppression is closed" testable property in spec §8).
func Entries(table *OpInfoTable, suppressSubexpressions bool) []*OpInfo {
	all := table.All()

	if !suppressSubexpressions {
		return sortByError(all)
	}

	descendant := make(map[OpKey]bool)
	for _, op := range all {
		if op.Expr == nil {
			continue
		}
		markDescendants(op.Expr.Root, op.Key, descendant)
	}

	var kept []*OpInfo
	for _, op := range all {
		if !descendant[op.Key] {
			kept = append(kept, op)
		}
	}
	return sortByError(kept)
}

// markDescendants walks n (the op-AST of the instruction named by self)
// and marks every distinct static instruction referenced by a Branch
// other than self as a descendant, closing transitively since Branch
// nodes are themselves walked.
func markDescendants(n OpNode, self OpKey, descendant map[OpKey]bool) {
	branch, ok := n.(*Branch)
	if !ok {
		return
	}
	if branch.Key != self {
		descendant[branch.Key] = true
	}
	for _, a := range branch.Args {
		markDescendants(a, self, descendant)
	}
}

func sortByError(ops []*OpInfo) []*OpInfo {
	out := append([]*OpInfo(nil), ops...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Agg.GlobalErrorMax > out[j].Agg.GlobalErrorMax
	})
	return out
}
