package repository

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"fetchplan-registry/internal/diagnostic"
	"fetchplan-registry/internal/fetchplan"
	"fetchplan-registry/internal/metadata"
	"fetchplan-registry/internal/planfile"
)

// Config controls repository behavior.
type Config struct {
	// Locations are the definition files deployed at initialization, in order.
	// Missing files are logged and skipped.
	Locations []string
	// Logger receives deploy and scan messages. Nil uses the standard logger.
	Logger *logrus.Entry
	// Registerer receives the repository metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a configuration without definition files.
func DefaultConfig() Config {
	return Config{}
}

// latch runs initialization once per repository generation.
type latch struct {
	once sync.Once
	done bool
	err  error
}

// Repository stores and resolves fetch plans.
type Repository struct {
	session *metadata.Session
	config  Config
	log     *logrus.Entry
	metrics *Metrics

	mu        sync.RWMutex
	init      *latch
	arena     *arena
	storage   map[string]map[string]handle
	readFiles map[string]bool
	diags     diagnostic.Diagnostics
}

// New creates a repository over session. Definition files are read on first access.
func New(session *metadata.Session, config Config) *Repository {
	log := config.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	r := &Repository{
		session: session,
		config:  config,
		log:     log.WithField("component", "fetchplan-repository"),
		metrics: NewMetrics(config.Registerer),
	}
	r.resetLocked()

	return r
}

// Metrics returns the repository collectors.
func (r *Repository) Metrics() *Metrics {
	return r.metrics
}

// Get returns the plan for entity and name. Missing plans yield a
// *NotFoundError; unknown entities yield ErrUnknownEntity.
func (r *Repository) Get(entity, name string) (*fetchplan.FetchPlan, error) {
	cls, err := r.class(entity)
	if err != nil {
		return nil, err
	}

	return r.GetByClass(cls, name)
}

// GetByClass is Get for a resolved class.
func (r *Repository) GetByClass(cls *metadata.MetaClass, name string) (*fetchplan.FetchPlan, error) {
	if cls == nil {
		return nil, ErrUnknownEntity
	}

	if name == "" {
		return nil, ErrEmptyName
	}

	plan, err := r.resolve(cls, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.metrics.lookup(outcomeNotFound)
		} else {
			r.metrics.lookup(outcomeError)
		}

		return nil, err
	}

	return plan, nil
}

// Find returns the plan for entity and name, or nil when it doesn't exist.
// Default plans are synthesized as by Get.
func (r *Repository) Find(entity, name string) (*fetchplan.FetchPlan, error) {
	cls, err := r.class(entity)
	if err != nil {
		return nil, err
	}

	return r.FindByClass(cls, name)
}

// FindByClass is Find for a resolved class.
func (r *Repository) FindByClass(cls *metadata.MetaClass, name string) (*fetchplan.FetchPlan, error) {
	plan, err := r.GetByClass(cls, name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}

	return plan, err
}

// Names returns the sorted names of the plans stored for entity, defaults
// included once synthesized.
func (r *Repository) Names(entity string) ([]string, error) {
	cls, err := r.class(entity)
	if err != nil {
		return nil, err
	}

	if err := r.rlock(); err != nil {
		return nil, err
	}
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.storage[cls.Name]))
	for n := range r.storage[cls.Name] {
		names = append(names, n)
	}

	sort.Strings(names)

	return names, nil
}

// Diagnostics returns what the current generation recorded: deployed files
// as infos, duplicates and skipped files as warnings and deploy failures as
// errors. A failed initialization is returned as well, with its diagnostics.
func (r *Repository) Diagnostics() (diagnostic.Diagnostics, error) {
	err := r.rlock()
	if err != nil {
		r.mu.RLock()
	}
	defer r.mu.RUnlock()

	var out diagnostic.Diagnostics
	out.Merge(r.diags)

	return out, err
}

// Files returns the sorted definition files read in the current generation,
// includes among them. It does not initialize the repository.
func (r *Repository) Files() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	files := make([]string, 0, len(r.readFiles))
	for f := range r.readFiles {
		files = append(files, f)
	}

	sort.Strings(files)

	return files
}

// Init forces initialization and returns its error.
func (r *Repository) Init() error {
	if err := r.rlock(); err != nil {
		return err
	}

	r.mu.RUnlock()

	return nil
}

// Reset drops every stored plan and the set of read files. The next access
// initializes the repository again from the configured locations.
func (r *Repository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetLocked()
	r.log.Debug("fetch plan repository reset")
}

// DeployFile deploys a definition file and its includes. A file already read
// in this generation is skipped.
func (r *Repository) DeployFile(path string) error {
	if err := r.lock(); err != nil {
		return err
	}
	defer r.mu.Unlock()

	err := r.deployFileLocked(path)
	if err != nil {
		r.recordLocked(err, path)
	}

	return err
}

// DeployReader parses definitions from rd and deploys them. Includes resolve
// relative to source.
func (r *Repository) DeployReader(rd io.Reader, format planfile.Format, source string) error {
	doc, err := planfile.Parse(rd, format, source)
	if err != nil {
		return err
	}

	return r.DeployDocument(doc)
}

// DeployDocument deploys parsed definitions.
func (r *Repository) DeployDocument(doc *planfile.Document) error {
	if err := r.lock(); err != nil {
		return err
	}
	defer r.mu.Unlock()

	err := r.deployDocumentLocked(doc)
	if err != nil {
		r.recordLocked(err, doc.Source)
	}

	return err
}

func (r *Repository) class(entity string) (*metadata.MetaClass, error) {
	cls, ok := r.session.Class(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	return cls, nil
}

func (r *Repository) resolve(cls *metadata.MetaClass, name string) (*fetchplan.FetchPlan, error) {
	if err := r.rlock(); err != nil {
		return nil, err
	}

	if h, ok := r.findStored(cls, name); ok {
		plan := r.arena.materialize(h)
		r.mu.RUnlock()
		r.metrics.lookup(outcomeHit)

		return plan, nil
	}

	r.mu.RUnlock()

	if !fetchplan.IsDefault(name) {
		return nil, &NotFoundError{Entity: cls.Name, Name: name}
	}

	if err := r.lock(); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	h, err := r.defaultPlan(cls, name, visitSet{})
	if err != nil {
		return nil, err
	}

	r.metrics.lookup(outcomeSynthesized)

	return r.arena.materialize(h), nil
}

// findStored looks name up for cls and, for non-default names, its ancestors.
// An inherited plan is returned as stored for the ancestor.
func (r *Repository) findStored(cls *metadata.MetaClass, name string) (handle, bool) {
	if h, ok := r.stored(cls.Name, name); ok {
		return h, true
	}

	if fetchplan.IsDefault(name) {
		return noHandle, false
	}

	for _, a := range cls.Ancestors() {
		if h, ok := r.stored(a.Name, name); ok {
			return h, true
		}
	}

	return noHandle, false
}

func (r *Repository) stored(entity, name string) (handle, bool) {
	h, ok := r.storage[entity][name]
	return h, ok
}

func (r *Repository) store(entity, name string, h handle) {
	plans := r.storage[entity]
	if plans == nil {
		plans = map[string]handle{}
		r.storage[entity] = plans
	}

	plans[name] = h
	r.metrics.StoredPlans.Inc()
}

func (r *Repository) resetLocked() {
	r.init = &latch{}
	r.arena = &arena{}
	r.storage = map[string]map[string]handle{}
	r.readFiles = map[string]bool{}
	r.diags = diagnostic.Diagnostics{}
	r.metrics.StoredPlans.Set(0)
}

// rlock returns holding the read lock on an initialized generation, or the
// initialization error without holding it.
func (r *Repository) rlock() error {
	for {
		r.mu.RLock()

		l := r.init
		if l.done {
			if l.err != nil {
				r.mu.RUnlock()
				return l.err
			}

			return nil
		}

		r.mu.RUnlock()
		r.initialize(l)
	}
}

// lock is rlock for the write lock.
func (r *Repository) lock() error {
	for {
		r.mu.Lock()

		l := r.init
		if l.done {
			if l.err != nil {
				r.mu.Unlock()
				return l.err
			}

			return nil
		}

		r.mu.Unlock()
		r.initialize(l)
	}
}

func (r *Repository) initialize(l *latch) {
	l.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		// A Reset since l was read makes l stale; callers retry on the new latch.
		if r.init == l {
			l.err = r.initLocked()
		}

		l.done = true
	})
}

func (r *Repository) initLocked() error {
	start := time.Now()

	for _, loc := range r.config.Locations {
		if _, err := os.Stat(loc); errors.Is(err, os.ErrNotExist) {
			r.log.WithField("source", loc).Warn("fetch plans file not found")
			r.diags.Add(diagnostic.Diagnostic{
				Severity: diagnostic.DiagnosticWarning,
				Code:     diagnostic.CodeMissingFile,
				Message:  "fetch plans file not found",
				Source:   loc,
			})

			continue
		}

		if err := r.deployFileLocked(loc); err != nil {
			r.recordLocked(err, loc)
			r.log.WithError(err).Error("fetch plan repository initialization failed")
			return fmt.Errorf("failed to initialize fetch plan repository: %w", err)
		}
	}

	r.log.WithFields(logrus.Fields{
		"files":    len(r.readFiles),
		"plans":    r.countLocked(),
		"duration": time.Since(start).String(),
	}).Info("fetch plan repository initialized")

	return nil
}

func (r *Repository) countLocked() int {
	n := 0
	for _, plans := range r.storage {
		n += len(plans)
	}

	return n
}

func (r *Repository) deployFileLocked(path string) error {
	path = filepath.Clean(path)
	if r.readFiles[path] {
		r.log.WithField("source", path).Debug("fetch plans file already deployed")
		return nil
	}

	doc, err := planfile.LoadFile(path)
	if err != nil {
		return err
	}

	r.readFiles[path] = true

	if err := r.deployDocumentLocked(doc); err != nil {
		return err
	}

	r.diags.Add(diagnostic.Diagnostic{
		Severity: diagnostic.DiagnosticInfo,
		Code:     diagnostic.CodeFileDeployed,
		Message:  fmt.Sprintf("%d fetch plan definitions deployed", len(doc.Plans)),
		Source:   path,
	})

	return nil
}

// recordLocked keeps a deploy failure as an error diagnostic. Structural
// errors keep their code; anything else is a file that couldn't be read or parsed.
func (r *Repository) recordLocked(err error, source string) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		r.diags.Add(ce.Diagnostic())
		return
	}

	r.diags.Add(diagnostic.Diagnostic{
		Severity: diagnostic.DiagnosticError,
		Code:     diagnostic.CodeInvalidFile,
		Message:  err.Error(),
		Source:   source,
	})
}
