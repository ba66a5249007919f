package planfile

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// element is a generic XML element tree.
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []element  `xml:",any"`
}

func (e *element) attr(names ...string) string {
	for _, n := range names {
		for _, a := range e.Attrs {
			if a.Name.Local == n {
				return a.Value
			}
		}
	}

	return ""
}

// ParseXML decodes an XML definition document.
func ParseXML(r io.Reader, source string) (*Document, error) {
	var root element

	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to parse fetch plans XML %s: %w", sourceName(source), err)
	}

	switch root.XMLName.Local {
	case "fetchPlans", "views":
	default:
		return nil, fmt.Errorf("failed to parse fetch plans XML %s: unexpected root element <%s>",
			sourceName(source), root.XMLName.Local)
	}

	doc := &Document{Source: source}

	for i := range root.Children {
		el := &root.Children[i]

		switch el.XMLName.Local {
		case "include":
			file := strings.TrimSpace(el.attr("file"))
			if file == "" {
				return nil, fmt.Errorf("failed to parse fetch plans XML %s: include requires a 'file' attribute",
					sourceName(source))
			}

			doc.Includes = append(doc.Includes, file)
		case "fetchPlan", "view":
			doc.Plans = append(doc.Plans, planFromXML(el, source))
		}
	}

	return doc, nil
}

func planFromXML(el *element, source string) *PlanDef {
	return &PlanDef{
		Name:             el.attr("name"),
		Entity:           el.attr("entity", "class"),
		Extends:          SplitExtends(el.attr("extends")),
		Overwrite:        parseBool(el.attr("overwrite")),
		SystemProperties: parseBool(el.attr("systemProperties")),
		Properties:       propertiesFromXML(el),
		Source:           source,
	}
}

func propertiesFromXML(parent *element) []PropertyDef {
	var props []PropertyDef

	for i := range parent.Children {
		el := &parent.Children[i]
		if el.XMLName.Local != "property" {
			continue
		}

		props = append(props, PropertyDef{
			Name:       el.attr("name"),
			FetchPlan:  el.attr("fetchPlan", "view"),
			Fetch:      el.attr("fetch"),
			Entity:     el.attr("entity", "class"),
			Properties: propertiesFromXML(el),
		})
	}

	return props
}

func sourceName(source string) string {
	if source == "" {
		return "<stream>"
	}

	return source
}
