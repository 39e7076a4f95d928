package expressions

import "sync"

// programCache memoizes compiled programs by source text. Safe for concurrent use;
// a failed compile is not cached.
type programCache[P any] struct {
	compile func(src string) (P, error)

	mu       sync.RWMutex
	programs map[string]P
}

func newProgramCache[P any](compile func(string) (P, error)) *programCache[P] {
	return &programCache[P]{compile: compile, programs: make(map[string]P)}
}

func (c *programCache[P]) get(src string) (P, error) {
	c.mu.RLock()
	p, ok := c.programs[src]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.programs[src]; ok {
		return p, nil
	}
	p, err := c.compile(src)
	if err != nil {
		return p, err
	}
	c.programs[src] = p
	return p, nil
}

func (c *programCache[P]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}
