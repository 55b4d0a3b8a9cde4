package backup

import "sync"

// PathClaims records which item owns each artifact path of a run, so that
// no item overwrites what another one wrote.
type PathClaims struct {
	mu    sync.Mutex
	owner map[string]string
}

func NewPathClaims() *PathClaims {
	return &PathClaims{owner: make(map[string]string)}
}

// Claim reserves path for item. It fails with the current owner when a
// different item already holds the path.
func (c *PathClaims) Claim(path, item string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.owner[path]; ok && owner != item {
		return owner, false
	}
	c.owner[path] = item
	return item, true
}
