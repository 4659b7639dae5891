package registry

import "sync"

// Policy is the registry-relevant subset of runtime policy: whether a
// session may open more than one page.
type Policy struct {
	AllowMultiplePages bool
}

// DefaultPolicy matches the defaults seeded by internal/config.
func DefaultPolicy() Policy {
	return Policy{AllowMultiplePages: true}
}

// PolicyView is a runtime-mutable, read-mostly view over Policy. It is
// written rarely (on config hot-reload) and read on every policy-sensitive
// registry operation, so it's a plain RWMutex rather than anything
// lock-free.
type PolicyView struct {
	mu     sync.RWMutex
	policy Policy
}

// NewPolicyView seeds a view with the given policy.
func NewPolicyView(p Policy) *PolicyView {
	return &PolicyView{policy: p}
}

// Get returns the current policy.
func (v *PolicyView) Get() Policy {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.policy
}

// Update replaces the current policy, e.g. from a config hot-reload hook.
func (v *PolicyView) Update(p Policy) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.policy = p
}
