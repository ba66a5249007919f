package fetchplan

// Equal reports whether two plans are structurally equal: same entity and
// name, and the same properties in the same order with equal nested plans
// and fetch modes.
func Equal(a, b *FetchPlan) bool {
	return equal(a, b, map[[2]*FetchPlan]bool{})
}

func equal(a, b *FetchPlan, seen map[[2]*FetchPlan]bool) bool {
	if a == nil || b == nil {
		return a == b
	}

	if a == b {
		return true
	}

	pair := [2]*FetchPlan{a, b}
	if seen[pair] {
		return true
	}

	seen[pair] = true

	if a.Entity != b.Entity || a.Name != b.Name || len(a.props) != len(b.props) {
		return false
	}

	for i := range a.props {
		pa, pb := a.props[i], b.props[i]
		if pa.Name != pb.Name || pa.Mode != pb.Mode {
			return false
		}

		if !equal(pa.Plan, pb.Plan, seen) {
			return false
		}
	}

	return true
}

// SharesNodes reports whether any plan node reachable from a is also reachable from b.
func SharesNodes(a, b *FetchPlan) bool {
	nodes := map[*FetchPlan]bool{}
	walk(a, func(p *FetchPlan) { nodes[p] = true })

	shared := false

	walk(b, func(p *FetchPlan) {
		if nodes[p] {
			shared = true
		}
	})

	return shared
}

func walk(p *FetchPlan, fn func(*FetchPlan)) {
	seen := map[*FetchPlan]bool{}

	var visit func(*FetchPlan)
	visit = func(p *FetchPlan) {
		if p == nil || seen[p] {
			return
		}

		seen[p] = true
		fn(p)

		for _, pr := range p.props {
			visit(pr.Plan)
		}
	}

	visit(p)
}
