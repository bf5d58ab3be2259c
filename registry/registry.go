// Package registry maintains the indexed catalog of registered services.
// Services resolve by id or normalized display name, and an optional backing
// store persists definitions across processes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/socaity/fastsdk-go/registry/store"
	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
	"github.com/socaity/fastsdk-go/spec"
	"github.com/socaity/fastsdk-go/telemetry"
)

// Registry is the in-memory service catalog. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*service.Definition
	names    map[string]string // normalized display name -> id

	categories    map[string]*service.Category
	families      map[string]*service.Family
	models        map[string]*service.Model
	categoryNames map[string]string
	familyNames   map[string]string
	modelNames    map[string]string

	store   store.Store
	loader  *spec.Loader
	logger  telemetry.Logger
	metrics telemetry.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore wires a persistent backing store. Stored definitions hydrate
// into memory eagerly on construction and lazily on lookup misses.
func WithStore(s store.Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithLoader overrides the specification loader used by AddService.
func WithLoader(l *spec.Loader) Option {
	return func(r *Registry) { r.loader = l }
}

// WithLogger sets the registry logger.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the registry metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates a Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		services:      make(map[string]*service.Definition),
		names:         make(map[string]string),
		categories:    make(map[string]*service.Category),
		families:      make(map[string]*service.Family),
		models:        make(map[string]*service.Model),
		categoryNames: make(map[string]string),
		familyNames:   make(map[string]string),
		modelNames:    make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.loader == nil {
		r.loader = spec.NewLoader()
	}
	if r.logger == nil {
		r.logger = telemetry.NoopLogger{}
	}
	if r.metrics == nil {
		r.metrics = telemetry.NoopMetrics{}
	}
	if r.store != nil {
		ctx := context.Background()
		if defs, err := r.store.List(ctx); err == nil {
			for _, def := range defs {
				if def == nil {
					continue
				}
				r.services[def.ID] = def
				if def.DisplayName != "" {
					r.names[service.NormalizeName(def.DisplayName)] = def.ID
				}
			}
		} else {
			r.logger.Warn(ctx, "store hydration failed", "error", err)
		}
	}
	return r
}

// AddOption customizes a single AddService call.
type AddOption func(*addConfig)

type addConfig struct {
	id            string
	name          string
	address       string
	specification service.Specification
	categories    []string
	familyID      string
	models        []service.Model
	description   string
}

// WithServiceID forces the service id, overriding any id found in the spec.
func WithServiceID(id string) AddOption {
	return func(c *addConfig) { c.id = id }
}

// WithServiceName forces the display name.
func WithServiceName(name string) AddOption {
	return func(c *addConfig) { c.name = name }
}

// WithAddress sets the service address. Accepts every shorthand the address
// resolver understands: full URLs, Runpod pod ids, Replicate model handles.
func WithAddress(raw string) AddOption {
	return func(c *addConfig) { c.address = raw }
}

// WithSpecification overrides the detected specification dialect.
func WithSpecification(s service.Specification) AddOption {
	return func(c *addConfig) { c.specification = s }
}

// WithCategories tags the service with category ids.
func WithCategories(ids ...string) AddOption {
	return func(c *addConfig) { c.categories = ids }
}

// WithFamily links the service to a family.
func WithFamily(id string) AddOption {
	return func(c *addConfig) { c.familyID = id }
}

// WithModels records the base models the service runs.
func WithModels(models ...service.Model) AddOption {
	return func(c *addConfig) { c.models = models }
}

// WithDescription overrides the service description.
func WithDescription(desc string) AddOption {
	return func(c *addConfig) { c.description = desc }
}

// AddService loads and parses a specification source (inline document, file
// path, URL or pre-built definition) and registers the result. Fails with a
// DuplicateId error when the id is already registered.
func (r *Registry) AddService(ctx context.Context, source any, opts ...AddOption) (*service.Definition, error) {
	start := time.Now()
	var cfg addConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	def, err := r.resolveDefinition(ctx, source, &cfg)
	if err != nil {
		return nil, err
	}

	if cfg.id != "" {
		def.ID = cfg.id
	}
	if cfg.name != "" {
		def.DisplayName = cfg.name
	}
	if cfg.specification != "" {
		def.Specification = cfg.specification
	}
	if cfg.description != "" {
		def.Description = cfg.description
	}
	if len(cfg.categories) > 0 {
		def.Category = cfg.categories
	}
	if cfg.familyID != "" {
		def.FamilyID = cfg.familyID
	}
	if len(cfg.models) > 0 {
		def.UsedModels = cfg.models
	}
	def.EnsureIdentity()

	if cfg.address != "" {
		addr, err := service.ParseAddress(cfg.address, def.Specification)
		if err != nil {
			return nil, fmt.Errorf("resolve service address: %w", err)
		}
		def.Address = addr
	} else if url, ok := source.(string); ok && def.Address == nil && isURL(url) {
		if addr, err := service.ParseAddress(specBaseURL(url), def.Specification); err == nil {
			def.Address = addr
		}
	}
	upgradeSpecification(def)

	if err := r.register(ctx, def); err != nil {
		return nil, err
	}
	r.metrics.RecordTimer("registry_add_service", time.Since(start), "specification", string(def.Specification))
	return def, nil
}

func (r *Registry) resolveDefinition(ctx context.Context, source any, cfg *addConfig) (*service.Definition, error) {
	if def, ok := source.(*service.Definition); ok {
		clone := *def
		return &clone, nil
	}
	doc, err := r.loader.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	sourceURL := ""
	if s, ok := source.(string); ok && isURL(s) {
		sourceURL = s
	}
	if sourceURL == "" {
		sourceURL = cfg.address
	}
	return spec.Parse(doc, sourceURL)
}

// upgradeSpecification aligns a generically parsed dialect with a
// provider-hosted address: a Cog document deployed on Replicate behaves as a
// replicate service, and any spec behind a Runpod endpoint speaks the Runpod
// job protocol.
func upgradeSpecification(def *service.Definition) {
	if def.Address == nil {
		return
	}
	switch def.Address.Kind {
	case service.AddressRunpod:
		def.Specification = service.SpecRunpod
	case service.AddressReplicate:
		switch def.Specification {
		case service.SpecCog, service.SpecCog2, service.SpecOpenAPI, service.SpecOther:
			def.Specification = service.SpecReplicate
		}
	case service.AddressSocaity:
		switch def.Specification {
		case service.SpecFastTaskAPI, service.SpecOpenAPI:
			def.Specification = service.SpecSocaity
		}
	}
}

// register indexes a definition, enforcing id uniqueness. Display names are
// human authored and repeat, so name collisions warn and overwrite.
func (r *Registry) register(ctx context.Context, def *service.Definition) error {
	r.mu.Lock()
	if _, exists := r.services[def.ID]; exists {
		r.mu.Unlock()
		return sdkerr.New(sdkerr.KindDuplicateID, "service %q is already registered", def.ID)
	}
	normalized := service.NormalizeName(def.DisplayName)
	if existing, ok := r.names[normalized]; ok && existing != def.ID {
		r.logger.Warn(ctx, "service name collision, name now resolves to the newer service",
			"name", def.DisplayName, "existing_id", existing, "new_id", def.ID)
	}
	r.services[def.ID] = def
	if normalized != "" {
		r.names[normalized] = def.ID
	}
	r.mu.Unlock()

	r.linkDependencies(def)

	if r.store != nil {
		if err := r.store.Save(ctx, def); err != nil {
			r.logger.Warn(ctx, "persist service failed", "id", def.ID, "error", err)
		}
	}
	r.logger.Info(ctx, "service registered",
		"id", def.ID, "name", def.DisplayName, "specification", string(def.Specification))
	r.metrics.IncCounter("registry_services_registered", 1, "specification", string(def.Specification))
	return nil
}

// linkDependencies registers placeholder categories and models referenced by
// the definition so grouping queries work without explicit setup.
func (r *Registry) linkDependencies(def *service.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, categoryID := range def.Category {
		if _, ok := r.categories[categoryID]; !ok {
			r.categories[categoryID] = &service.Category{ID: categoryID}
		}
	}
	for _, m := range def.UsedModels {
		if m.ID == "" {
			continue
		}
		if _, ok := r.models[m.ID]; !ok {
			model := m
			r.models[m.ID] = &model
			if model.DisplayName != "" {
				r.modelNames[service.NormalizeName(model.DisplayName)] = model.ID
			}
		}
	}
}

// Get looks a service up by id first, then by normalized display name. On a
// miss it consults the backing store and hydrates the result.
func (r *Registry) Get(ctx context.Context, idOrName string) (*service.Definition, error) {
	r.mu.RLock()
	if def, ok := r.services[idOrName]; ok {
		r.mu.RUnlock()
		return def, nil
	}
	if id, ok := r.names[service.NormalizeName(idOrName)]; ok {
		def := r.services[id]
		r.mu.RUnlock()
		return def, nil
	}
	r.mu.RUnlock()

	if r.store == nil {
		return nil, sdkerr.New(sdkerr.KindNotFound, "service %q not found", idOrName)
	}
	def, err := r.store.Get(ctx, idOrName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, sdkerr.New(sdkerr.KindNotFound, "service %q not found", idOrName)
		}
		return nil, fmt.Errorf("load service %q from store: %w", idOrName, err)
	}
	if err := r.register(ctx, def); err != nil {
		// Raced with a concurrent hydration; the indexed copy wins.
		if sdkerr.IsKind(err, sdkerr.KindDuplicateID) {
			return r.Get(ctx, def.ID)
		}
		return nil, err
	}
	return def, nil
}

// Updates carries the attribute overrides applied by Update. Nil fields
// leave the current value untouched.
type Updates struct {
	DisplayName   *string
	Description   *string
	ShortDesc     *string
	Address       *string
	Specification *service.Specification
	Category      []string
	FamilyID      *string
}

// Update applies attribute overrides to a registered service. Updates are
// copy-on-write: callers holding a definition from Get or List keep an
// unchanged value, the indexes swap to the modified copy. Address strings
// re-run the resolver and display-name changes swap the name index.
func (r *Registry) Update(ctx context.Context, idOrName string, updates Updates) (*service.Definition, error) {
	cur, err := r.Get(ctx, idOrName)
	if err != nil {
		return nil, err
	}

	next := *cur
	if updates.DisplayName != nil {
		next.DisplayName = *updates.DisplayName
	}
	if updates.Description != nil {
		next.Description = *updates.Description
	}
	if updates.ShortDesc != nil {
		next.ShortDesc = *updates.ShortDesc
	}
	if updates.Specification != nil {
		next.Specification = *updates.Specification
	}
	if updates.Category != nil {
		next.Category = updates.Category
	}
	if updates.FamilyID != nil {
		next.FamilyID = *updates.FamilyID
	}
	if updates.Address != nil {
		addr, err := service.ParseAddress(*updates.Address, next.Specification)
		if err != nil {
			return nil, fmt.Errorf("resolve service address: %w", err)
		}
		next.Address = addr
		upgradeSpecification(&next)
	}

	r.mu.Lock()
	if updates.DisplayName != nil && cur.DisplayName != "" {
		normalized := service.NormalizeName(cur.DisplayName)
		if r.names[normalized] == next.ID {
			delete(r.names, normalized)
		}
	}
	if normalized := service.NormalizeName(next.DisplayName); normalized != "" {
		r.names[normalized] = next.ID
	}
	r.services[next.ID] = &next
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Save(ctx, &next); err != nil {
			r.logger.Warn(ctx, "persist service update failed", "id", next.ID, "error", err)
		}
	}
	return &next, nil
}

// Remove purges a service from all indexes and, when configured, from the
// backing store.
func (r *Registry) Remove(ctx context.Context, idOrName string) error {
	def, err := r.Get(ctx, idOrName)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.services, def.ID)
	if def.DisplayName != "" {
		normalized := service.NormalizeName(def.DisplayName)
		if r.names[normalized] == def.ID {
			delete(r.names, normalized)
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(ctx, def.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete service %q from store: %w", def.ID, err)
		}
	}
	r.logger.Info(ctx, "service removed", "id", def.ID)
	return nil
}

// List returns all registered services.
func (r *Registry) List() []*service.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*service.Definition, 0, len(r.services))
	for _, def := range r.services {
		defs = append(defs, def)
	}
	return defs
}

// Filter returns the services matching the predicate.
func (r *Registry) Filter(keep func(*service.Definition) bool) []*service.Definition {
	var out []*service.Definition
	for _, def := range r.List() {
		if keep(def) {
			out = append(out, def)
		}
	}
	return out
}

// ByCategory returns the services tagged with the category.
func (r *Registry) ByCategory(categoryID string) []*service.Definition {
	return r.Filter(func(def *service.Definition) bool {
		for _, c := range def.Category {
			if c == categoryID {
				return true
			}
		}
		return false
	})
}

// ByFamily returns the services belonging to the family.
func (r *Registry) ByFamily(familyID string) []*service.Definition {
	return r.Filter(func(def *service.Definition) bool { return def.FamilyID == familyID })
}

// AddCategory registers a category.
func (r *Registry) AddCategory(c *service.Category) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("category must have an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.categories[c.ID]; exists {
		return sdkerr.New(sdkerr.KindDuplicateID, "category %q is already registered", c.ID)
	}
	r.categories[c.ID] = c
	if c.DisplayName != "" {
		r.categoryNames[service.NormalizeName(c.DisplayName)] = c.ID
	}
	return nil
}

// AddFamily registers a service family.
func (r *Registry) AddFamily(f *service.Family) error {
	if f == nil || f.ID == "" {
		return fmt.Errorf("family must have an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.families[f.ID]; exists {
		return sdkerr.New(sdkerr.KindDuplicateID, "family %q is already registered", f.ID)
	}
	r.families[f.ID] = f
	if f.DisplayName != "" {
		r.familyNames[service.NormalizeName(f.DisplayName)] = f.ID
	}
	return nil
}

// Category looks a category up by id or normalized name.
func (r *Registry) Category(idOrName string) *service.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.categories[idOrName]; ok {
		return c
	}
	if id, ok := r.categoryNames[service.NormalizeName(idOrName)]; ok {
		return r.categories[id]
	}
	return nil
}

// Family looks a family up by id or normalized name.
func (r *Registry) Family(idOrName string) *service.Family {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.families[idOrName]; ok {
		return f
	}
	if id, ok := r.familyNames[service.NormalizeName(idOrName)]; ok {
		return r.families[id]
	}
	return nil
}

// Model looks a model up by id or normalized name.
func (r *Registry) Model(idOrName string) *service.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.models[idOrName]; ok {
		return m
	}
	if id, ok := r.modelNames[service.NormalizeName(idOrName)]; ok {
		return r.models[id]
	}
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// specBaseURL strips the well-known spec document suffixes from a source URL
// so the service address points at the API root.
func specBaseURL(url string) string {
	base := strings.TrimRight(url, "/")
	for _, suffix := range []string{"/openapi.json", "/api", "/docs", "/redoc"} {
		base = strings.TrimSuffix(base, suffix)
	}
	return base
}
