package repository

import "fetchplan-registry/internal/fetchplan"

type handle int

const noHandle handle = -1

// key identifies a plan during resolution.
type key struct {
	entity string
	name   string
}

type visitSet map[key]bool

// node is a plan definition in the arena. Nodes are immutable once stored;
// overwrite replaces the node in its slot.
type node struct {
	entity string
	name   string
	props  []nodeProp
}

// nodeProp nests either a named plan (ref) or an owned inline node.
type nodeProp struct {
	name   string
	ref    handle
	inline *node
	mode   fetchplan.FetchMode
}

func localProp(name string) nodeProp {
	return nodeProp{name: name, ref: noHandle}
}

func (n *node) has(name string) bool {
	for _, p := range n.props {
		if p.name == name {
			return true
		}
	}

	return false
}

// set adds p, replacing a property of the same name in place.
func (n *node) set(p nodeProp) {
	for i := range n.props {
		if n.props[i].name == p.name {
			n.props[i] = p
			return
		}
	}

	n.props = append(n.props, p)
}

// inherit copies every property of from.
func (n *node) inherit(from *node) {
	for _, p := range from.props {
		n.set(p)
	}
}

type arena struct {
	slots []*node
}

func (a *arena) add(n *node) handle {
	a.slots = append(a.slots, n)
	return handle(len(a.slots) - 1)
}

func (a *arena) get(h handle) *node {
	return a.slots[h]
}

func (a *arena) replace(h handle, n *node) {
	a.slots[h] = n
}

// reaches reports whether target's slot is reachable from n.
func (a *arena) reaches(n *node, target handle) bool {
	seen := map[*node]bool{}

	var visit func(*node) bool
	visit = func(n *node) bool {
		if seen[n] {
			return false
		}

		seen[n] = true

		for _, p := range n.props {
			switch {
			case p.inline != nil:
				if visit(p.inline) {
					return true
				}
			case p.ref != noHandle:
				if p.ref == target || visit(a.slots[p.ref]) {
					return true
				}
			}
		}

		return false
	}

	return visit(n)
}

// materialize builds an independent FetchPlan tree for the node in slot h.
// A node reachable along several paths yields one shared plan in the result.
func (a *arena) materialize(h handle) *fetchplan.FetchPlan {
	return a.build(a.slots[h], map[*node]*fetchplan.FetchPlan{})
}

func (a *arena) build(n *node, memo map[*node]*fetchplan.FetchPlan) *fetchplan.FetchPlan {
	if p, ok := memo[n]; ok {
		return p
	}

	b := fetchplan.NewBuilder(n.entity, n.name)

	for _, p := range n.props {
		var nested *fetchplan.FetchPlan

		switch {
		case p.inline != nil:
			nested = a.build(p.inline, memo)
		case p.ref != noHandle:
			nested = a.build(a.slots[p.ref], memo)
		}

		b.Add(p.name, nested, p.mode)
	}

	plan := b.Build()
	memo[n] = plan

	return plan
}
