package i18n

import "sync/atomic"

// Store holds the active catalog. Readers never block on a reload.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore creates a store serving c, or the default catalog when c is nil.
func NewStore(c *Catalog) *Store {
	if c == nil {
		c = Default()
	}
	s := &Store{}
	s.current.Store(c)
	return s
}

// Catalog returns the active catalog.
func (s *Store) Catalog() *Catalog {
	return s.current.Load()
}

// Swap installs c and returns the previous catalog. A nil c is ignored.
func (s *Store) Swap(c *Catalog) *Catalog {
	if c == nil {
		return s.current.Load()
	}
	return s.current.Swap(c)
}
