package datamanager

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fetchplan-registry/internal/metadata"
)

// SaveContext lists the entities to write.
type SaveContext struct {
	Entities []*Entity
}

// pendingRef is a reference written as null because its target had no ID yet.
type pendingRef struct {
	entity *Entity
	prop   *metadata.MetaProperty
}

// Save writes the entities of sc, assigning IDs to new ones.
//
// Stores are written in dependency order of references to new entities,
// falling back to name order when stores reference each other both ways.
// References still unresolved after every store is written are written by a
// single repeat pass; a reference to a new entity outside sc fails with
// ErrUnresolvedReference.
func (dm *DataManager) Save(ctx context.Context, sc SaveContext) error {
	inContext := map[*Entity]bool{}
	groups := map[string][]*Entity{}

	for _, e := range sc.Entities {
		if e == nil || inContext[e] {
			continue
		}

		if _, err := dm.storeOf(e.Class); err != nil {
			return err
		}

		inContext[e] = true
		groups[e.Class.Store] = append(groups[e.Class.Store], e)
	}

	for e := range inContext {
		var err error

		forEachNewRef(e, func(mp *metadata.MetaProperty, target *Entity) {
			if err == nil && !inContext[target] {
				err = &ReferenceError{Entity: e.Class.Name, Property: mp.Name, Target: target.Class.Name}
			}
		})

		if err != nil {
			return err
		}
	}

	names := make([]string, 0, len(groups))
	for n := range groups {
		names = append(names, n)
	}

	sort.Strings(names)

	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	order, err := topoSort(len(names), func(i int) []int {
		var deps []int

		for _, e := range groups[names[i]] {
			forEachNewRef(e, func(_ *metadata.MetaProperty, target *Entity) {
				if inContext[target] {
					deps = append(deps, index[target.Class.Store])
				}
			})
		}

		return deps
	})
	if err != nil {
		dm.log.WithField("stores", names).Debug("stores reference each other, saving in name order")

		order = make([]int, len(names))
		for i := range order {
			order[i] = i
		}
	}

	var pending []pendingRef

	for _, i := range order {
		store := dm.stores[names[i]]

		p, err := dm.saveStore(ctx, store, groups[names[i]], inContext)
		if err != nil {
			return err
		}

		pending = append(pending, p...)
	}

	if len(pending) == 0 {
		return nil
	}

	return dm.repeatPass(ctx, pending)
}

func (dm *DataManager) saveStore(ctx context.Context, store Store, entities []*Entity, inContext map[*Entity]bool) ([]pendingRef, error) {
	index := make(map[*Entity]int, len(entities))
	for i, e := range entities {
		index[e] = i
	}

	order, err := topoSort(len(entities), func(i int) []int {
		var deps []int

		forEachNewRef(entities[i], func(_ *metadata.MetaProperty, target *Entity) {
			if j, ok := index[target]; ok && inContext[target] {
				deps = append(deps, j)
			}
		})

		return deps
	})
	if err != nil {
		order = make([]int, len(entities))
		for i := range order {
			order[i] = i
		}
	}

	var (
		pending []pendingRef
		batch   []*Entity
		records []Record
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		cls := batch[0].Class
		start := time.Now()
		ids, err := store.Save(ctx, cls, records)
		dm.metrics.observe(store.Name(), "save", start, err)

		if err != nil {
			return fmt.Errorf("failed to save %s to store %s: %w", cls.Name, store.Name(), err)
		}

		if len(ids) != len(batch) {
			return fmt.Errorf("store %s returned %d ids for %d records", store.Name(), len(ids), len(batch))
		}

		for i, e := range batch {
			e.ID = ids[i]
		}

		batch, records = nil, nil

		return nil
	}

	inBatch := func(e *Entity) bool {
		var found bool

		forEachNewRef(e, func(_ *metadata.MetaProperty, target *Entity) {
			for _, b := range batch {
				if b == target {
					found = true
				}
			}
		})

		return found
	}

	for _, i := range order {
		e := entities[i]

		if len(batch) > 0 && (batch[0].Class != e.Class || inBatch(e)) {
			if err := flush(); err != nil {
				return nil, err
			}
		}

		rec, p := buildRecord(e)
		pending = append(pending, p...)
		batch = append(batch, e)
		records = append(records, rec)
	}

	if err := flush(); err != nil {
		return nil, err
	}

	return pending, nil
}

// repeatPass writes references whose targets got IDs after their owners were saved.
func (dm *DataManager) repeatPass(ctx context.Context, pending []pendingRef) error {
	dm.metrics.RepeatPassesTotal.Inc()

	var (
		owners  []*Entity
		updates = map[*Entity]Record{}
	)

	for _, p := range pending {
		target := p.entity.Ref(p.prop.Name)
		if target == nil || target.IsNew() {
			return &ReferenceError{Entity: p.entity.Class.Name, Property: p.prop.Name, Target: p.prop.Class.Name}
		}

		rec, ok := updates[p.entity]
		if !ok {
			rec = Record{metadata.IDProperty: p.entity.ID}
			updates[p.entity] = rec
			owners = append(owners, p.entity)
		}

		rec[p.prop.ColumnName()] = target.ID
	}

	byClass := map[*metadata.MetaClass][]*Entity{}

	var classes []*metadata.MetaClass

	for _, e := range owners {
		if _, ok := byClass[e.Class]; !ok {
			classes = append(classes, e.Class)
		}

		byClass[e.Class] = append(byClass[e.Class], e)
	}

	for _, cls := range classes {
		store := dm.stores[cls.Store]

		records := make([]Record, len(byClass[cls]))
		for i, e := range byClass[cls] {
			records[i] = updates[e]
		}

		start := time.Now()
		_, err := store.Save(ctx, cls, records)
		dm.metrics.observe(store.Name(), "repeat_save", start, err)

		if err != nil {
			return fmt.Errorf("failed to write references of %s to store %s: %w", cls.Name, store.Name(), err)
		}
	}

	dm.log.WithField("references", len(pending)).Debug("cross-store references written in repeat pass")

	return nil
}

// buildRecord returns the columns to write for e. References to entities
// without an ID are written as null and returned as pending.
func buildRecord(e *Entity) (Record, []pendingRef) {
	rec := Record{}
	if !e.IsNew() {
		rec[metadata.IDProperty] = e.ID
	}

	var pending []pendingRef

	for _, mp := range e.Class.Properties() {
		if !mp.Persistent || mp.Name == metadata.IDProperty {
			continue
		}

		v, ok := e.values[mp.Name]
		if !ok {
			continue
		}

		if !mp.IsReference() {
			rec[mp.ColumnName()] = v
			continue
		}

		target, _ := v.(*Entity)

		switch {
		case target == nil:
			rec[mp.ColumnName()] = nil
		case target.IsNew():
			rec[mp.ColumnName()] = nil
			pending = append(pending, pendingRef{entity: e, prop: mp})
		default:
			rec[mp.ColumnName()] = target.ID
		}
	}

	return rec, pending
}

func forEachNewRef(e *Entity, fn func(*metadata.MetaProperty, *Entity)) {
	for _, mp := range e.Class.Properties() {
		if !mp.IsReference() || !mp.Persistent {
			continue
		}

		if target := e.Ref(mp.Name); target != nil && target.IsNew() {
			fn(mp, target)
		}
	}
}
