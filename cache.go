package main

import (
	"strings"
	"sync"
)

// entityCache remembers every project, folder, and file resolved during a
// run so repeated lookups and remote path reconstruction never go back to
// Synapse. Entries are only added after the entity is known to exist.
type entityCache struct {
	lock     *sync.Mutex
	entities map[string]*Entity
	children map[string]map[string]string
}

func newEntityCache() *entityCache {
	return &entityCache{
		lock:     new(sync.Mutex),
		entities: make(map[string]*Entity),
		children: make(map[string]map[string]string),
	}
}

func (c *entityCache) Register(entity *Entity) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.entities[entity.ID] = entity
	if entity.ParentID == "" {
		return
	}
	siblings := c.children[entity.ParentID]
	if siblings == nil {
		siblings = make(map[string]string)
		c.children[entity.ParentID] = siblings
	}
	siblings[entity.Name] = entity.ID
}

func (c *entityCache) Get(entityID string) *Entity {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.entities[entityID]
}

func (c *entityCache) ChildID(parentID, name string) (string, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	childID, found := c.children[parentID][name]
	return childID, found
}

// SynapsePath builds the display path of a child by walking cached
// parents upward. The walk stops at the project or at the first parent
// that was never cached, so the path never includes guessed segments.
func (c *entityCache) SynapsePath(name string, parent *Entity) string {
	c.lock.Lock()
	defer c.lock.Unlock()

	segments := []string{name}
	next := parent
	for next != nil {
		segments = append([]string{next.Name}, segments...)
		if next.Kind == EntityKindProject {
			break
		}
		next = c.entities[next.ParentID]
	}
	return strings.Join(segments, "/")
}
