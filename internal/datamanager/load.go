package datamanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fetchplan-registry/internal/common"
	"fetchplan-registry/internal/fetchplan"
	"fetchplan-registry/internal/metadata"
)

// LoadContext describes a load.
type LoadContext struct {
	// Entity is the entity name.
	Entity string
	// IDs selects the instances; empty loads all of them up to Limit.
	IDs []any
	// FetchPlan names the plan; empty means _base. Plan takes precedence.
	FetchPlan string
	Plan      *fetchplan.FetchPlan
	// Properties are loaded in addition to the plan. References added this
	// way carry only the ID of their target.
	Properties []string
	Limit      int
}

// Load returns the entities selected by lc with the properties of its plan.
func (dm *DataManager) Load(ctx context.Context, lc LoadContext) ([]*Entity, error) {
	cls, err := dm.class(lc.Entity)
	if err != nil {
		return nil, err
	}

	plan := lc.Plan
	if plan == nil {
		name := lc.FetchPlan
		if name == "" {
			name = fetchplan.Base
		}

		plan, err = dm.plans.GetByClass(cls, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", cls.Name, err)
		}
	}

	if len(lc.Properties) > 0 {
		plan, err = withProperties(cls, plan, lc.Properties)
		if err != nil {
			return nil, err
		}
	}

	if lc.IDs != nil && len(lc.IDs) == 0 {
		return nil, nil
	}

	return dm.load(ctx, cls, lc.IDs, lc.Limit, plan)
}

// LoadOne loads a single entity by ID.
func (dm *DataManager) LoadOne(ctx context.Context, entity string, id any, planName string) (*Entity, error) {
	list, err := dm.Load(ctx, LoadContext{Entity: entity, IDs: []any{id}, FetchPlan: planName})
	if err != nil {
		return nil, err
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s#%v", ErrEntityNotFound, entity, id)
	}

	return list[0], nil
}

func (dm *DataManager) load(
	ctx context.Context, cls *metadata.MetaClass, ids []any, limit int, plan *fetchplan.FetchPlan,
) ([]*Entity, error) {
	store, err := dm.storeOf(cls)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 1, plan.Len()+1)
	columns[0] = metadata.IDProperty

	type refLoad struct {
		prop *metadata.MetaProperty
		plan *fetchplan.FetchPlan
	}

	var refs []refLoad

	for _, p := range plan.Properties() {
		mp := cls.Property(p.Name)
		if mp == nil || !mp.Persistent || mp.Name == metadata.IDProperty {
			continue
		}

		columns = append(columns, mp.ColumnName())

		if mp.IsReference() {
			refs = append(refs, refLoad{prop: mp, plan: p.Plan})
		}
	}

	start := time.Now()

	var rows []Record
	if ids == nil {
		rows, err = store.LoadAll(ctx, cls, columns, limit)
	} else {
		rows, err = store.Load(ctx, cls, ids, columns)
	}

	dm.metrics.observe(store.Name(), "load", start, err)

	if err != nil {
		return nil, fmt.Errorf("failed to load %s from store %s: %w", cls.Name, store.Name(), err)
	}

	entities := make([]*Entity, len(rows))

	for i, row := range rows {
		e := &Entity{Class: cls, ID: row[metadata.IDProperty], values: map[string]any{}}

		for _, p := range plan.Properties() {
			mp := cls.Property(p.Name)
			if mp == nil || !mp.Persistent || mp.IsReference() || mp.Name == metadata.IDProperty {
				continue
			}

			e.values[mp.Name] = row[mp.ColumnName()]
		}

		entities[i] = e
	}

	dm.log.WithField("entity", cls.Name).WithField("fetch_plan", plan.Name).
		WithField("rows", len(rows)).Debug("entities loaded")

	if len(refs) == 0 || len(rows) == 0 {
		return entities, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex

	for _, ref := range refs {
		col := ref.prop.ColumnName()

		var refIDs []any

		for _, row := range rows {
			if id := row[col]; id != nil {
				refIDs = append(refIDs, id)
			}
		}

		refIDs = dedupeIDs(refIDs)

		g.Go(func() error {
			byID := map[string]*Entity{}

			if len(refIDs) > 0 {
				target := dm.targetClass(ref.prop, ref.plan)

				if ref.plan == nil {
					for _, id := range refIDs {
						byID[idKey(id)] = &Entity{Class: target, ID: id, values: map[string]any{}}
					}
				} else {
					loaded, err := dm.load(gctx, target, refIDs, 0, ref.plan)
					if err != nil {
						return err
					}

					for _, e := range loaded {
						byID[idKey(e.ID)] = e
					}
				}
			}

			mu.Lock()
			defer mu.Unlock()

			for i, row := range rows {
				var target *Entity
				if id := row[col]; id != nil {
					target = byID[idKey(id)]
				}

				entities[i].values[ref.prop.Name] = target
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return entities, nil
}

// withProperties extends plan with the named properties it lacks.
func withProperties(cls *metadata.MetaClass, plan *fetchplan.FetchPlan, names []string) (*fetchplan.FetchPlan, error) {
	b := fetchplan.NewBuilder(plan.Entity, plan.Name).Merge(plan)

	for _, name := range names {
		if plan.Has(name) {
			continue
		}

		if cls.Property(name) == nil {
			return nil, fmt.Errorf("property %s not found in entity %s", name, cls.Name)
		}

		b.AddLocal(name)
	}

	return b.Build(), nil
}

// targetClass picks the class a nested plan loads: the plan's entity when it
// narrows the property's range, the range otherwise.
func (dm *DataManager) targetClass(mp *metadata.MetaProperty, plan *fetchplan.FetchPlan) *metadata.MetaClass {
	if plan != nil {
		if cls, ok := dm.session.Class(plan.Entity); ok && cls.IsAssignableTo(mp.Class) {
			return cls
		}
	}

	return mp.Class
}

func dedupeIDs(ids []any) []any {
	keys := make([]string, len(ids))
	byKey := make(map[string]any, len(ids))

	for i, id := range ids {
		keys[i] = idKey(id)
		if _, ok := byKey[keys[i]]; !ok {
			byKey[keys[i]] = id
		}
	}

	keys = common.Dedupe(keys)

	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}

	return out
}
