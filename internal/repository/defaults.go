package repository

import (
	"fmt"

	"fetchplan-registry/internal/diagnostic"
	"fetchplan-registry/internal/fetchplan"
	"fetchplan-registry/internal/metadata"
)

// defaultPlan returns the stored default plan of cls, synthesizing and
// storing it first when needed.
//
// _local holds the persistent attributes that are neither references nor
// system attributes. _minimal holds the instance name attributes; computed
// ones contribute the attributes they depend on and references contribute
// the referenced entity's _minimal. _base is the union of both.
func (r *Repository) defaultPlan(cls *metadata.MetaClass, name string, visited visitSet) (handle, error) {
	if h, ok := r.stored(cls.Name, name); ok {
		return h, nil
	}

	k := key{entity: cls.Name, name: name}
	if visited[k] {
		return noHandle, &ConfigError{Code: diagnostic.CodeCyclicReference, Entity: cls.Name, Plan: name, Message: errCyclic}
	}

	visited[k] = true
	defer delete(visited, k)

	n := &node{entity: cls.Name, name: name}

	switch name {
	case fetchplan.Local:
		addLocal(cls, n)
	case fetchplan.Minimal:
		if err := r.addMinimal(cls, n, visited); err != nil {
			return noHandle, err
		}
	case fetchplan.Base:
		addLocal(cls, n)

		if err := r.addMinimal(cls, n, visited); err != nil {
			return noHandle, err
		}
	default:
		return noHandle, fmt.Errorf("%q is not a default fetch plan", name)
	}

	h := r.arena.add(n)
	r.store(cls.Name, name, h)

	r.log.WithField("entity", cls.Name).WithField("fetch_plan", name).Debug("default fetch plan synthesized")

	return h, nil
}

func addLocal(cls *metadata.MetaClass, n *node) {
	for _, p := range cls.Properties() {
		if p.Persistent && !p.System && !p.IsReference() {
			n.set(localProp(p.Name))
		}
	}
}

func (r *Repository) addMinimal(cls *metadata.MetaClass, n *node, visited visitSet) error {
	seen := map[string]bool{}

	for _, name := range cls.InstanceNameProperties() {
		if err := r.addMinimalProperty(cls, name, n, visited, seen); err != nil {
			return err
		}
	}

	return nil
}

func (r *Repository) addMinimalProperty(
	cls *metadata.MetaClass, name string, n *node, visited visitSet, seen map[string]bool,
) error {
	if seen[name] {
		return nil
	}

	seen[name] = true

	mp := cls.Property(name)
	if mp == nil {
		return &ConfigError{
			Code:    diagnostic.CodeUnknownProperty,
			Entity:  cls.Name,
			Plan:    fetchplan.Minimal,
			Message: fmt.Sprintf("instance name property %s not found", name),
		}
	}

	if !mp.Persistent {
		for _, dep := range mp.DependsOn {
			if err := r.addMinimalProperty(cls, dep, n, visited, seen); err != nil {
				return err
			}
		}

		return nil
	}

	if n.has(mp.Name) {
		return nil
	}

	if !mp.IsReference() {
		n.set(localProp(mp.Name))
		return nil
	}

	h, err := r.defaultPlan(mp.Class, fetchplan.Minimal, visited)
	if err != nil {
		return err
	}

	n.set(nodeProp{name: mp.Name, ref: h})

	return nil
}
