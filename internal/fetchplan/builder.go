package fetchplan

// Builder assembles a FetchPlan.
type Builder struct {
	plan *FetchPlan
}

// NewBuilder starts a plan for entity with the given name.
func NewBuilder(entity, name string) *Builder {
	return &Builder{plan: &FetchPlan{
		Entity: entity,
		Name:   name,
		index:  map[string]int{},
	}}
}

// Add includes a property. Adding an existing name replaces it in place.
func (b *Builder) Add(name string, nested *FetchPlan, mode FetchMode) *Builder {
	pr := Property{Name: name, Plan: nested, Mode: mode}

	if i, ok := b.plan.index[name]; ok {
		b.plan.props[i] = pr
		return b
	}

	b.plan.index[name] = len(b.plan.props)
	b.plan.props = append(b.plan.props, pr)

	return b
}

// AddLocal includes local attributes.
func (b *Builder) AddLocal(names ...string) *Builder {
	for _, n := range names {
		b.Add(n, nil, FetchModeAuto)
	}

	return b
}

// Merge includes every property of other that isn't present yet. Nested plans
// are deep copies; plans shared inside other stay shared inside the result.
func (b *Builder) Merge(other *FetchPlan) *Builder {
	if other == nil {
		return b
	}

	memo := map[*FetchPlan]*FetchPlan{}

	for _, pr := range other.props {
		if _, ok := b.plan.index[pr.Name]; !ok {
			b.Add(pr.Name, pr.Plan.copyWith(memo), pr.Mode)
		}
	}

	return b
}

// Build returns the plan. The builder must not be used afterwards.
func (b *Builder) Build() *FetchPlan {
	p := b.plan
	b.plan = nil

	return p
}
