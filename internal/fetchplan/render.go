package fetchplan

// Tree is a serializable rendering of a plan for APIs and CLI output.
type Tree struct {
	Entity     string     `json:"entity" yaml:"entity"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	Properties []TreeProp `json:"properties" yaml:"properties"`
}

// TreeProp is one property of a rendered plan.
type TreeProp struct {
	Name  string `json:"name" yaml:"name"`
	Fetch string `json:"fetch,omitempty" yaml:"fetch,omitempty"`
	Plan  *Tree  `json:"fetchPlan,omitempty" yaml:"fetchPlan,omitempty"`
}

// ToTree renders p. Fetch is omitted for the Auto default.
func ToTree(p *FetchPlan) *Tree {
	if p == nil {
		return nil
	}

	t := &Tree{Entity: p.Entity, Name: p.Name, Properties: make([]TreeProp, 0, len(p.props))}

	for _, pr := range p.props {
		tp := TreeProp{Name: pr.Name, Plan: ToTree(pr.Plan)}
		if pr.Mode != FetchModeAuto {
			tp.Fetch = pr.Mode.String()
		}

		t.Properties = append(t.Properties, tp)
	}

	return t
}
