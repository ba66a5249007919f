package planfile

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type yamlDocument struct {
	Include    []string   `yaml:"include,omitempty"`
	FetchPlans []yamlPlan `yaml:"fetchPlans"`
}

type yamlPlan struct {
	Name             string         `yaml:"name"`
	Entity           string         `yaml:"entity"`
	Extends          stringOrList   `yaml:"extends,omitempty"`
	Overwrite        bool           `yaml:"overwrite,omitempty"`
	SystemProperties bool           `yaml:"systemProperties,omitempty"`
	Properties       []yamlProperty `yaml:"properties,omitempty"`
}

type yamlProperty struct {
	Name       string         `yaml:"name"`
	FetchPlan  string         `yaml:"fetchPlan,omitempty"`
	Fetch      string         `yaml:"fetch,omitempty"`
	Entity     string         `yaml:"entity,omitempty"`
	Properties []yamlProperty `yaml:"properties,omitempty"`
}

// UnmarshalYAML accepts a bare property name or a full mapping.
func (p *yamlProperty) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&p.Name)
	}

	type plain yamlProperty

	return node.Decode((*plain)(p))
}

// stringOrList accepts "a, b" or [a, b].
type stringOrList []string

// UnmarshalYAML implements custom YAML unmarshaling for stringOrList.
func (s *stringOrList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var str string
		if err := node.Decode(&str); err != nil {
			return err
		}

		*s = SplitExtends(str)

		return nil
	case yaml.SequenceNode:
		var arr []string
		if err := node.Decode(&arr); err != nil {
			return err
		}

		*s = arr

		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", node.Kind)
	}
}

// ParseYAML decodes a YAML definition document.
func ParseYAML(r io.Reader, source string) (*Document, error) {
	var yd yamlDocument

	if err := yaml.NewDecoder(r).Decode(&yd); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse fetch plans YAML %s: %w", sourceName(source), err)
	}

	doc := &Document{Source: source}

	for _, inc := range yd.Include {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			return nil, fmt.Errorf("failed to parse fetch plans YAML %s: include requires a 'file' attribute",
				sourceName(source))
		}

		doc.Includes = append(doc.Includes, inc)
	}

	for i := range yd.FetchPlans {
		yp := &yd.FetchPlans[i]
		doc.Plans = append(doc.Plans, &PlanDef{
			Name:             yp.Name,
			Entity:           yp.Entity,
			Extends:          []string(yp.Extends),
			Overwrite:        yp.Overwrite,
			SystemProperties: yp.SystemProperties,
			Properties:       propertiesFromYAML(yp.Properties),
			Source:           source,
		})
	}

	return doc, nil
}

func propertiesFromYAML(in []yamlProperty) []PropertyDef {
	if len(in) == 0 {
		return nil
	}

	out := make([]PropertyDef, len(in))
	for i, yp := range in {
		out[i] = PropertyDef{
			Name:       yp.Name,
			FetchPlan:  yp.FetchPlan,
			Fetch:      yp.Fetch,
			Entity:     yp.Entity,
			Properties: propertiesFromYAML(yp.Properties),
		}
	}

	return out
}
