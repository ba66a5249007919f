package metadata

import (
	"fmt"
	"sort"
	"strings"
)

//go:generate go tool stringer -type=PropertyKind -trimprefix=Kind -output=kind_string.go

// PropertyKind represents the kind of a property range.
type PropertyKind int

const (
	KindDatatype    PropertyKind = iota // simple value (string, int, ...)
	KindEnum                            // enumeration stored as its id
	KindAssociation                     // reference to an independent entity
	KindComposition                     // reference to an owned entity
)

// ParsePropertyKind parses a kind name case-insensitively.
func ParsePropertyKind(s string) (PropertyKind, error) {
	for k := KindDatatype; k <= KindComposition; k++ {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}

	return KindDatatype, fmt.Errorf("unknown property kind %q", s)
}

// DefaultStore is the store name used when an entity doesn't declare one.
const DefaultStore = "main"

// IDProperty is the name of the identifier property every entity carries.
const IDProperty = "id"

// MetaClass describes an entity type.
type MetaClass struct {
	Name     string     // Entity name, e.g. "sales_Order"
	Store    string     // Name of the store owning the entity
	Table    string     // Table or key prefix in the store
	Ancestor *MetaClass // Single-inheritance parent, nil for roots

	// InstanceName lists the properties building the entity display name.
	// Empty means the nearest ancestor's list applies.
	InstanceName []string

	props []*MetaProperty
	index map[string]*MetaProperty
}

// NewClass creates an empty MetaClass in the given store.
func NewClass(name, store string) *MetaClass {
	if store == "" {
		store = DefaultStore
	}

	return &MetaClass{
		Name:  name,
		Store: store,
		Table: strings.ToLower(name),
		index: make(map[string]*MetaProperty),
	}
}

// AddProperty appends an own property and returns it with Owner set.
func (c *MetaClass) AddProperty(p *MetaProperty) *MetaProperty {
	if c.index == nil {
		c.index = make(map[string]*MetaProperty)
	}

	p.Owner = c
	c.props = append(c.props, p)
	c.index[p.Name] = p

	return p
}

// OwnProperties returns the properties declared on this class only.
func (c *MetaClass) OwnProperties() []*MetaProperty {
	return c.props
}

// Properties returns inherited properties first, then own ones.
// An own property shadows an inherited property of the same name.
func (c *MetaClass) Properties() []*MetaProperty {
	if c.Ancestor == nil {
		return c.props
	}

	var result []*MetaProperty

	for _, p := range c.Ancestor.Properties() {
		if _, shadowed := c.index[p.Name]; !shadowed {
			result = append(result, p)
		}
	}

	return append(result, c.props...)
}

// Property looks a property up through the hierarchy, or returns nil.
func (c *MetaClass) Property(name string) *MetaProperty {
	for cls := c; cls != nil; cls = cls.Ancestor {
		if p, ok := cls.index[name]; ok {
			return p
		}
	}

	return nil
}

// PropertyNames returns the names of all properties in declaration order.
func (c *MetaClass) PropertyNames() []string {
	props := c.Properties()

	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}

	return names
}

// Ancestors returns the ancestor chain, nearest first.
func (c *MetaClass) Ancestors() []*MetaClass {
	var result []*MetaClass
	for a := c.Ancestor; a != nil; a = a.Ancestor {
		result = append(result, a)
	}

	return result
}

// IsAssignableTo reports whether c is other or one of its descendants.
func (c *MetaClass) IsAssignableTo(other *MetaClass) bool {
	for cls := c; cls != nil; cls = cls.Ancestor {
		if cls == other {
			return true
		}
	}

	return false
}

// InstanceNameProperties returns the display-name properties, falling back to ancestors.
func (c *MetaClass) InstanceNameProperties() []string {
	for cls := c; cls != nil; cls = cls.Ancestor {
		if len(cls.InstanceName) > 0 {
			return cls.InstanceName
		}
	}

	return nil
}

// String returns the entity name.
func (c *MetaClass) String() string {
	return c.Name
}

// MetaProperty describes an entity attribute or reference.
type MetaProperty struct {
	Name       string
	Kind       PropertyKind
	Datatype   string     // For KindDatatype/KindEnum: string, int, long, decimal, boolean, datetime, uuid, id
	Class      *MetaClass // For references: the range class
	Owner      *MetaClass // Declaring class
	Persistent bool       // False for computed (transient) attributes
	System     bool       // id, version, audit attributes
	Mandatory  bool
	DependsOn  []string // For non-persistent attributes: related properties they are computed from
	Column     string   // Column or field name in the store; defaults derived from Name
}

// IsReference returns true if the property range is an entity.
func (p *MetaProperty) IsReference() bool {
	return p.Kind == KindAssociation || p.Kind == KindComposition
}

// IsCrossStore returns true for references to an entity owned by another store.
func (p *MetaProperty) IsCrossStore() bool {
	return p.IsReference() && p.Class != nil && p.Owner != nil && p.Class.Store != p.Owner.Store
}

// ColumnName returns the store column for the property.
// References are stored as the referenced ID in "<name>_id".
func (p *MetaProperty) ColumnName() string {
	if p.Column != "" {
		return p.Column
	}

	if p.IsReference() {
		return toSnake(p.Name) + "_id"
	}

	return toSnake(p.Name)
}

// String returns "Owner.Name".
func (p *MetaProperty) String() string {
	if p.Owner == nil {
		return p.Name
	}

	return p.Owner.Name + "." + p.Name
}

func toSnake(s string) string {
	var b strings.Builder

	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}

			r += 'a' - 'A'
		}

		b.WriteRune(r)
	}

	return b.String()
}

// Session is the registry of all entity descriptors.
type Session struct {
	classes map[string]*MetaClass
}

// NewSession creates an empty Session.
func NewSession() *Session {
	return &Session{classes: make(map[string]*MetaClass)}
}

// Register adds a class. Names must be unique.
func (s *Session) Register(c *MetaClass) error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("class name is required")
	}

	if _, exists := s.classes[c.Name]; exists {
		return fmt.Errorf("duplicate entity %q", c.Name)
	}

	s.classes[c.Name] = c

	return nil
}

// MustRegister registers the classes and panics on error. Intended for tests and static setup.
func (s *Session) MustRegister(classes ...*MetaClass) *Session {
	for _, c := range classes {
		if err := s.Register(c); err != nil {
			panic(err)
		}
	}

	return s
}

// Class returns the class registered under name.
func (s *Session) Class(name string) (*MetaClass, bool) {
	c, ok := s.classes[name]
	return c, ok
}

// ClassNames returns all entity names, sorted.
func (s *Session) ClassNames() []string {
	names := make([]string, 0, len(s.classes))
	for n := range s.classes {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Classes returns all classes sorted by name.
func (s *Session) Classes() []*MetaClass {
	names := s.ClassNames()

	result := make([]*MetaClass, len(names))
	for i, n := range names {
		result[i] = s.classes[n]
	}

	return result
}

// Stores returns the distinct store names, sorted.
func (s *Session) Stores() []string {
	seen := map[string]struct{}{}
	for _, c := range s.classes {
		seen[c.Store] = struct{}{}
	}

	stores := make([]string, 0, len(seen))
	for st := range seen {
		stores = append(stores, st)
	}

	sort.Strings(stores)

	return stores
}
