package metadata

// Attr adds a persistent datatype property and returns the class for chaining.
func (c *MetaClass) Attr(name, datatype string) *MetaClass {
	c.AddProperty(&MetaProperty{
		Name:       name,
		Kind:       KindDatatype,
		Datatype:   datatype,
		Persistent: true,
		System:     systemNames[name],
	})

	return c
}

// Ref adds a persistent association to target and returns the class for chaining.
func (c *MetaClass) Ref(name string, target *MetaClass) *MetaClass {
	c.AddProperty(&MetaProperty{
		Name:       name,
		Kind:       KindAssociation,
		Class:      target,
		Persistent: true,
	})

	return c
}

// Computed adds a non-persistent attribute computed from deps.
func (c *MetaClass) Computed(name string, deps ...string) *MetaClass {
	c.AddProperty(&MetaProperty{
		Name:      name,
		Kind:      KindDatatype,
		Datatype:  "string",
		DependsOn: deps,
	})

	return c
}

// Named sets the instance-name properties and returns the class for chaining.
func (c *MetaClass) Named(props ...string) *MetaClass {
	c.InstanceName = props
	return c
}
