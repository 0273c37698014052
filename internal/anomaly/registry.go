package anomaly

import (
	"sync"
	"sync/atomic"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

type slot struct {
	current  atomic.Pointer[Model]
	training atomic.Bool
}

// Registry holds the current model of every tenant. Readers never block on training.
type Registry struct {
	slots sync.Map
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) slot(tenant string) *slot {
	if s, ok := r.slots.Load(tenant); ok {
		return s.(*slot)
	}
	s, _ := r.slots.LoadOrStore(tenant, &slot{})
	return s.(*slot)
}

// Current returns the tenant's model or ErrModelNotTrained.
func (r *Registry) Current(tenant string) (*Model, error) {
	m := r.slot(tenant).current.Load()
	if m == nil {
		return nil, appErrors.ErrModelNotTrained
	}
	return m, nil
}

// State reports the tenant's lifecycle state. A tenant stays UNTRAINED until its first model is
// installed, even while that first fit runs.
func (r *Registry) State(tenant string) models.ModelState {
	s := r.slot(tenant)
	switch {
	case s.current.Load() == nil:
		return models.ModelStateUntrained
	case s.training.Load():
		return models.ModelStateRetraining
	default:
		return models.ModelStateTrained
	}
}

// Training reports whether a fit is running for the tenant.
func (r *Registry) Training(tenant string) bool {
	return r.slot(tenant).training.Load()
}

// BeginTraining claims the tenant's training slot. It returns false when a fit is already running.
func (r *Registry) BeginTraining(tenant string) bool {
	return r.slot(tenant).training.CompareAndSwap(false, true)
}

// EndTraining releases the training slot.
func (r *Registry) EndTraining(tenant string) {
	r.slot(tenant).training.Store(false)
}

// NextVersion returns the version a freshly trained model should carry.
func (r *Registry) NextVersion(tenant string) int {
	if m := r.slot(tenant).current.Load(); m != nil {
		return m.Version + 1
	}
	return 1
}

// Install atomically replaces the tenant's current model.
func (r *Registry) Install(tenant string, m *Model) {
	r.slot(tenant).current.Store(m)
}
