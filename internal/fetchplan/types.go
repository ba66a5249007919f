package fetchplan

import (
	"fmt"
	"strings"
)

// Reserved plan names synthesized from metadata.
const (
	Local   = "_local"
	Minimal = "_minimal"
	Base    = "_base"
)

// IsDefault reports whether name is one of the synthesized plan names.
func IsDefault(name string) bool {
	return name == Local || name == Minimal || name == Base
}

//go:generate go tool stringer -type=FetchMode -trimprefix=FetchMode -output=fetchmode_string.go

// FetchMode is a hint on how a reference property should be fetched.
type FetchMode int

const (
	FetchModeAuto      FetchMode = iota // store decides
	FetchModeUndefined                  // inherit the mode of the enclosing load
	FetchModeJoin                       // fetch in the same query
	FetchModeBatch                      // fetch in a separate batched query
)

// ParseFetchMode parses a fetch mode name case-insensitively. Empty means Auto.
func ParseFetchMode(s string) (FetchMode, error) {
	if s == "" {
		return FetchModeAuto, nil
	}

	for m := FetchModeAuto; m <= FetchModeBatch; m++ {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}

	return FetchModeAuto, fmt.Errorf("unknown fetch mode %q", s)
}

// Property is a single entry of a fetch plan.
type Property struct {
	// Name of the entity property.
	Name string
	// Plan is the nested plan for references, nil for local attributes.
	Plan *FetchPlan
	// Mode is the fetch hint for references.
	Mode FetchMode
}

// FetchPlan is a named partial-load specification for one entity.
type FetchPlan struct {
	Entity string
	Name   string

	props []Property
	index map[string]int
}

// Properties returns the plan properties in definition order.
func (p *FetchPlan) Properties() []Property {
	out := make([]Property, len(p.props))
	copy(out, p.props)

	return out
}

// Property returns the property with the given name.
func (p *FetchPlan) Property(name string) (Property, bool) {
	i, ok := p.index[name]
	if !ok {
		return Property{}, false
	}

	return p.props[i], true
}

// Has reports whether the plan includes the named property.
func (p *FetchPlan) Has(name string) bool {
	_, ok := p.index[name]
	return ok
}

// Names returns the property names in definition order.
func (p *FetchPlan) Names() []string {
	names := make([]string, len(p.props))
	for i, pr := range p.props {
		names[i] = pr.Name
	}

	return names
}

// Len returns the number of properties.
func (p *FetchPlan) Len() int {
	return len(p.props)
}

// Key returns "entity/name".
func (p *FetchPlan) Key() string {
	return p.Entity + "/" + p.Name
}

// copyWith deep-copies p. memo maps copied plans to their copies.
func (p *FetchPlan) copyWith(memo map[*FetchPlan]*FetchPlan) *FetchPlan {
	if p == nil {
		return nil
	}

	if c, ok := memo[p]; ok {
		return c
	}

	c := &FetchPlan{
		Entity: p.Entity,
		Name:   p.Name,
		props:  make([]Property, len(p.props)),
		index:  make(map[string]int, len(p.index)),
	}
	memo[p] = c

	for i, pr := range p.props {
		c.props[i] = Property{Name: pr.Name, Plan: pr.Plan.copyWith(memo), Mode: pr.Mode}
		c.index[pr.Name] = i
	}

	return c
}

// String renders the plan compactly, e.g. "sales_Order/_base{number, customer{name}}".
func (p *FetchPlan) String() string {
	var b strings.Builder

	b.WriteString(p.Key())
	writeProps(&b, p)

	return b.String()
}

func writeProps(b *strings.Builder, p *FetchPlan) {
	b.WriteByte('{')

	for i, pr := range p.props {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString(pr.Name)

		if pr.Plan != nil {
			writeProps(b, pr.Plan)
		}
	}

	b.WriteByte('}')
}
