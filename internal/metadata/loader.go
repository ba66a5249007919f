package metadata

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ModelFile is the root of a YAML entity model file.
type ModelFile struct {
	Entities []EntityDef `yaml:"entities" validate:"dive"`
}

// EntityDef declares one entity.
type EntityDef struct {
	Name         string        `yaml:"name" validate:"required"`
	Store        string        `yaml:"store,omitempty"`
	Table        string        `yaml:"table,omitempty"`
	Extends      string        `yaml:"extends,omitempty"`
	InstanceName []string      `yaml:"instanceName,omitempty"`
	Properties   []PropertyDef `yaml:"properties" validate:"dive"`
}

// PropertyDef declares one property of an entity.
type PropertyDef struct {
	Name      string   `yaml:"name" validate:"required"`
	Kind      string   `yaml:"kind,omitempty" validate:"omitempty,oneof=datatype enum association composition"`
	Datatype  string   `yaml:"datatype,omitempty"`
	Class     string   `yaml:"class,omitempty" validate:"required_if=Kind association,required_if=Kind composition"`
	Transient bool     `yaml:"transient,omitempty"`
	System    *bool    `yaml:"system,omitempty"`
	Mandatory bool     `yaml:"mandatory,omitempty"`
	DependsOn []string `yaml:"dependsOn,omitempty"`
	Column    string   `yaml:"column,omitempty"`
}

// systemNames are treated as system attributes unless a definition says otherwise.
var systemNames = map[string]bool{
	IDProperty:   true,
	"version":    true,
	"createTs":   true,
	"createdBy":  true,
	"updateTs":   true,
	"updatedBy":  true,
	"deleteTs":   true,
	"deletedBy":  true,
	"tenantId":   true,
	"createdAt":  true,
	"modifiedAt": true,
}

var modelValidate = validator.New()

// LoadFile loads and parses a YAML model file into a new Session.
func LoadFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses YAML model data into a new Session.
func Parse(data []byte) (*Session, error) {
	var mf ModelFile

	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse model YAML: %w", err)
	}

	return Build(&mf)
}

// Build validates a model definition and links it into a Session.
func Build(mf *ModelFile) (*Session, error) {
	if err := modelValidate.Struct(mf); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}

	session := NewSession()

	// First pass: classes without links.
	for i := range mf.Entities {
		def := &mf.Entities[i]

		cls := NewClass(def.Name, def.Store)
		if def.Table != "" {
			cls.Table = def.Table
		}

		cls.InstanceName = def.InstanceName

		if err := session.Register(cls); err != nil {
			return nil, err
		}
	}

	// Second pass: ancestors.
	for i := range mf.Entities {
		def := &mf.Entities[i]
		if def.Extends == "" {
			continue
		}

		cls, _ := session.Class(def.Name)

		parent, ok := session.Class(def.Extends)
		if !ok {
			return nil, fmt.Errorf("entity %q extends unknown entity %q", def.Name, def.Extends)
		}

		cls.Ancestor = parent
	}

	for _, cls := range session.Classes() {
		if err := checkHierarchy(cls); err != nil {
			return nil, err
		}
	}

	// Third pass: properties, now that every range class exists.
	for i := range mf.Entities {
		def := &mf.Entities[i]
		cls, _ := session.Class(def.Name)

		for j := range def.Properties {
			p, err := buildProperty(session, cls, &def.Properties[j])
			if err != nil {
				return nil, fmt.Errorf("entity %q: %w", def.Name, err)
			}

			cls.AddProperty(p)
		}
	}

	for _, cls := range session.Classes() {
		if cls.Ancestor == nil && cls.Property(IDProperty) == nil {
			cls.AddProperty(&MetaProperty{Name: IDProperty, Kind: KindDatatype, Datatype: "id", Persistent: true, System: true})
		}

		if err := checkInstanceName(cls); err != nil {
			return nil, err
		}
	}

	return session, nil
}

func buildProperty(session *Session, owner *MetaClass, def *PropertyDef) (*MetaProperty, error) {
	if owner.index[def.Name] != nil {
		return nil, fmt.Errorf("duplicate property %q", def.Name)
	}

	p := &MetaProperty{
		Name:       def.Name,
		Datatype:   def.Datatype,
		Persistent: !def.Transient,
		System:     systemNames[def.Name],
		Mandatory:  def.Mandatory,
		DependsOn:  def.DependsOn,
		Column:     def.Column,
	}

	if def.System != nil {
		p.System = *def.System
	}

	switch {
	case def.Kind != "":
		kind, err := ParsePropertyKind(def.Kind)
		if err != nil {
			return nil, err
		}

		p.Kind = kind
	case def.Class != "":
		p.Kind = KindAssociation
	default:
		p.Kind = KindDatatype
	}

	if p.IsReference() {
		ref, ok := session.Class(def.Class)
		if !ok {
			return nil, fmt.Errorf("property %q references unknown entity %q", def.Name, def.Class)
		}

		p.Class = ref
	} else if p.Datatype == "" {
		p.Datatype = "string"
	}

	return p, nil
}

func checkHierarchy(cls *MetaClass) error {
	seen := map[*MetaClass]bool{}
	for c := cls; c != nil; c = c.Ancestor {
		if seen[c] {
			return fmt.Errorf("entity %q has a cyclic inheritance chain", cls.Name)
		}

		seen[c] = true
	}

	return nil
}

func checkInstanceName(cls *MetaClass) error {
	var errs []error

	for _, name := range cls.InstanceName {
		if cls.Property(name) == nil {
			errs = append(errs, fmt.Errorf("entity %q: instance name property %q doesn't exist", cls.Name, name))
		}
	}

	for _, p := range cls.OwnProperties() {
		for _, dep := range p.DependsOn {
			if cls.Property(dep) == nil {
				errs = append(errs, fmt.Errorf("entity %q: property %q depends on unknown property %q", cls.Name, p.Name, dep))
			}
		}
	}

	return errors.Join(errs...)
}
