package repository

import (
	"fmt"

	"fetchplan-registry/internal/diagnostic"
	"fetchplan-registry/internal/fetchplan"
	"fetchplan-registry/internal/match"
	"fetchplan-registry/internal/metadata"
	"fetchplan-registry/internal/planfile"
)

// batch is one document being deployed. Its definitions can satisfy
// references from definitions that precede them.
type batch struct {
	doc      *planfile.Document
	deployed map[*planfile.PlanDef]handle
}

func (b *batch) pending(entity, name string) *planfile.PlanDef {
	if b == nil {
		return nil
	}

	for _, def := range b.doc.Plans {
		if def.Entity == entity && def.Name == name {
			return def
		}
	}

	return nil
}

func (r *Repository) deployDocumentLocked(doc *planfile.Document) error {
	diags := planfile.ScanDuplicates(doc)
	diags.Log(r.log)
	r.diags.Merge(diags)

	for _, inc := range doc.Includes {
		if err := r.deployFileLocked(doc.ResolveInclude(inc)); err != nil {
			return fmt.Errorf("failed to deploy include %s: %w", inc, err)
		}
	}

	b := &batch{doc: doc, deployed: map[*planfile.PlanDef]handle{}}

	for _, def := range doc.Plans {
		if _, err := r.deployPlan(b, def, visitSet{}); err != nil {
			return err
		}
	}

	return nil
}

func (r *Repository) deployPlan(b *batch, def *planfile.PlanDef, visited visitSet) (handle, error) {
	if h, ok := b.deployed[def]; ok {
		return h, nil
	}

	if def.Name == "" || def.Entity == "" {
		return noHandle, configError(def, diagnostic.CodeMissingAttribute, "fetch plan definition requires 'name' and 'entity' attributes")
	}

	cls, ok := r.session.Class(def.Entity)
	if !ok {
		err := configError(def, diagnostic.CodeUnknownEntity, "entity "+def.Entity+" not found")
		err.Suggestions = match.Suggest(def.Entity, r.session.ClassNames(), 3)
		err.Err = ErrUnknownEntity

		return noHandle, err
	}

	// Defaults always exist, so a default extending itself extends the synthesized one.
	if def.ExtendsItself() && fetchplan.IsDefault(def.Name) {
		if _, err := r.defaultPlan(cls, def.Name, visited); err != nil {
			return noHandle, err
		}
	}

	existing, stored := r.stored(cls.Name, def.Name)
	if stored && !def.IsOverwrite() {
		b.deployed[def] = existing
		return existing, nil
	}

	k := key{entity: cls.Name, name: def.Name}
	if visited[k] {
		return noHandle, configError(def, diagnostic.CodeCyclicReference, errCyclic)
	}

	visited[k] = true
	defer delete(visited, k)

	n := &node{entity: cls.Name, name: def.Name}

	for _, anc := range def.Extends {
		ah, err := r.ancestorPlan(b, def, cls, anc, existing, stored, visited)
		if err != nil {
			return noHandle, err
		}

		n.inherit(r.arena.get(ah))
	}

	if def.SystemProperties {
		for _, p := range cls.Properties() {
			if p.System && !p.IsReference() {
				n.set(localProp(p.Name))
			}
		}
	}

	for i := range def.Properties {
		p, err := r.buildProperty(b, def, cls, &def.Properties[i], visited)
		if err != nil {
			return noHandle, err
		}

		n.set(p)
	}

	if stored {
		if r.arena.reaches(n, existing) {
			return noHandle, configError(def, diagnostic.CodeCyclicReference, errCyclic)
		}

		r.arena.replace(existing, n)
		b.deployed[def] = existing
		r.metrics.OverwritesTotal.Inc()
		r.log.WithField("entity", cls.Name).WithField("fetch_plan", def.Name).Debug("fetch plan overwritten")

		return existing, nil
	}

	h := r.arena.add(n)
	r.store(cls.Name, def.Name, h)
	b.deployed[def] = h
	r.metrics.DeploysTotal.Inc()

	return h, nil
}

// ancestorPlan resolves one extends entry. A plan naming itself extends the
// definition stored before it.
func (r *Repository) ancestorPlan(
	b *batch, def *planfile.PlanDef, cls *metadata.MetaClass, name string,
	existing handle, stored bool, visited visitSet,
) (handle, error) {
	if name == def.Name {
		if !stored {
			return noHandle, configError(def, diagnostic.CodeUnknownPlan, "no ancestor fetch plan found: "+cls.Name+"/"+name)
		}

		return existing, nil
	}

	h, found, err := r.lookupPlan(b, cls, name, visited)
	if err != nil {
		return noHandle, err
	}

	if !found {
		return noHandle, configError(def, diagnostic.CodeUnknownPlan, "no ancestor fetch plan found: "+cls.Name+"/"+name)
	}

	return h, nil
}

// lookupPlan resolves a plan name referenced from a definition: stored plans,
// defaults, definitions of the batch, then the ancestors of cls.
func (r *Repository) lookupPlan(b *batch, cls *metadata.MetaClass, name string, visited visitSet) (handle, bool, error) {
	if h, ok := r.stored(cls.Name, name); ok {
		return h, true, nil
	}

	if fetchplan.IsDefault(name) {
		h, err := r.defaultPlan(cls, name, visited)
		return h, err == nil, err
	}

	if def := b.pending(cls.Name, name); def != nil {
		h, err := r.deployPlan(b, def, visited)
		return h, err == nil, err
	}

	for _, a := range cls.Ancestors() {
		if h, ok := r.stored(a.Name, name); ok {
			return h, true, nil
		}

		if def := b.pending(a.Name, name); def != nil {
			h, err := r.deployPlan(b, def, visited)
			return h, err == nil, err
		}
	}

	return noHandle, false, nil
}

func (r *Repository) buildProperty(
	b *batch, def *planfile.PlanDef, cls *metadata.MetaClass, pd *planfile.PropertyDef, visited visitSet,
) (nodeProp, error) {
	if pd.Name == "" {
		return nodeProp{}, configError(def, diagnostic.CodeMissingAttribute, "property definition of "+cls.Name+" requires a 'name' attribute")
	}

	mp := cls.Property(pd.Name)
	if mp == nil {
		err := configError(def, diagnostic.CodeUnknownProperty, fmt.Sprintf("property %s not found in entity %s", pd.Name, cls.Name))
		err.Suggestions = match.Suggest(pd.Name, cls.PropertyNames(), 3)

		return nodeProp{}, err
	}

	mode, err := fetchplan.ParseFetchMode(pd.Fetch)
	if err != nil {
		return nodeProp{}, configError(def, diagnostic.CodeUnknownFetchMode, fmt.Sprintf("property %s: %v", mp, err))
	}

	p := nodeProp{name: mp.Name, ref: noHandle, mode: mode}

	if !mp.IsReference() {
		if pd.FetchPlan != "" || pd.Entity != "" || len(pd.Properties) > 0 {
			return nodeProp{}, configError(def, diagnostic.CodeInvalidProperty, fmt.Sprintf("property %s is not a reference, nested fetch plan not allowed", mp))
		}

		return p, nil
	}

	refCls, err := r.referencedClass(def, mp, pd.Entity)
	if err != nil {
		return nodeProp{}, err
	}

	// A bare reference loads the referenced instance name.
	planName := pd.FetchPlan
	if planName == "" && len(pd.Properties) == 0 {
		planName = fetchplan.Minimal
	}

	var base *node

	if planName != "" {
		h, found, err := r.lookupPlan(b, refCls, planName, visited)
		if err != nil {
			return nodeProp{}, err
		}

		if !found {
			return nodeProp{}, configError(def, diagnostic.CodeUnknownPlan, fmt.Sprintf("fetch plan %s/%s not found for property %s", refCls.Name, planName, mp))
		}

		if len(pd.Properties) == 0 {
			p.ref = h
			return p, nil
		}

		base = r.arena.get(h)
	}

	inline := &node{entity: refCls.Name, name: planName}
	if base != nil {
		inline.inherit(base)
	}

	for i := range pd.Properties {
		child, err := r.buildProperty(b, def, refCls, &pd.Properties[i], visited)
		if err != nil {
			return nodeProp{}, err
		}

		inline.set(child)
	}

	p.inline = inline

	return p, nil
}

func (r *Repository) referencedClass(def *planfile.PlanDef, mp *metadata.MetaProperty, entity string) (*metadata.MetaClass, error) {
	if entity == "" {
		return mp.Class, nil
	}

	cls, ok := r.session.Class(entity)
	if !ok {
		err := configError(def, diagnostic.CodeUnknownEntity, fmt.Sprintf("entity %s of property %s not found", entity, mp))
		err.Err = ErrUnknownEntity

		return nil, err
	}

	if !cls.IsAssignableTo(mp.Class) {
		return nil, configError(def, diagnostic.CodeInvalidProperty, fmt.Sprintf("entity %s is not assignable to %s of property %s", entity, mp.Class, mp))
	}

	return cls, nil
}

func configError(def *planfile.PlanDef, code, msg string) *ConfigError {
	return &ConfigError{Code: code, Entity: def.Entity, Plan: def.Name, Source: def.Source, Message: msg}
}
