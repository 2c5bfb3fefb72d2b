package detection

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const DefaultWorkspaceTTL = 30 * time.Minute

// Registry keeps workspaces in memory. A workspace expires after ttl without
// being touched.
type Registry struct {
	items *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultWorkspaceTTL
	}
	return &Registry{items: cache.New(ttl, ttl/2), ttl: ttl, now: time.Now}
}

func (r *Registry) Create(owner string) *Workspace {
	w := newWorkspace(owner, r.now())
	r.items.SetDefault(w.ID.String(), w)
	return w
}

// Get returns the workspace and extends its lifetime.
func (r *Registry) Get(id uuid.UUID) (*Workspace, error) {
	v, ok := r.items.Get(id.String())
	if !ok {
		return nil, ErrWorkspaceNotFound
	}
	w := v.(*Workspace)
	r.items.SetDefault(id.String(), w)
	return w, nil
}

func (r *Registry) Delete(id uuid.UUID) {
	r.items.Delete(id.String())
}

func (r *Registry) Len() int {
	return r.items.ItemCount()
}
