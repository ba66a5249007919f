package datamanager

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"fetchplan-registry/internal/fetchplan"
	"fetchplan-registry/internal/metadata"
)

// PlanSource resolves fetch plans by class.
type PlanSource interface {
	GetByClass(cls *metadata.MetaClass, name string) (*fetchplan.FetchPlan, error)
}

// Config controls the data manager.
type Config struct {
	Logger     *logrus.Entry
	Registerer prometheus.Registerer
}

// DataManager loads and saves entities across stores.
type DataManager struct {
	session *metadata.Session
	plans   PlanSource
	stores  map[string]Store
	log     *logrus.Entry
	metrics *Metrics
}

// New creates a data manager. Every store of the session must be given.
func New(session *metadata.Session, plans PlanSource, stores []Store, cfg Config) (*DataManager, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	dm := &DataManager{
		session: session,
		plans:   plans,
		stores:  make(map[string]Store, len(stores)),
		log:     log.WithField("component", "datamanager"),
		metrics: NewMetrics(cfg.Registerer),
	}

	for _, s := range stores {
		if _, dup := dm.stores[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate store %q", s.Name())
		}

		dm.stores[s.Name()] = s
	}

	for _, name := range session.Stores() {
		if _, ok := dm.stores[name]; !ok {
			return nil, fmt.Errorf("%w: %s has entities but no store configured", ErrUnknownStore, name)
		}
	}

	return dm, nil
}

// Metrics returns the data manager collectors.
func (dm *DataManager) Metrics() *Metrics {
	return dm.metrics
}

// StoreNames returns the registered store names, sorted.
func (dm *DataManager) StoreNames() []string {
	names := make([]string, 0, len(dm.stores))
	for n := range dm.stores {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

func (dm *DataManager) storeOf(cls *metadata.MetaClass) (Store, error) {
	s, ok := dm.stores[cls.Store]
	if !ok {
		return nil, fmt.Errorf("%w: %s of entity %s", ErrUnknownStore, cls.Store, cls.Name)
	}

	return s, nil
}

func (dm *DataManager) class(entity string) (*metadata.MetaClass, error) {
	cls, ok := dm.session.Class(entity)
	if !ok {
		return nil, fmt.Errorf("unknown entity %s", entity)
	}

	return cls, nil
}
