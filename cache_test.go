package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheRegisterAndChildLookup(t *testing.T) {
	cache := newEntityCache()
	project := &Entity{ID: "syn1", Name: "Project", Kind: EntityKindProject}
	folder := &Entity{ID: "syn2", Name: "sub", ParentID: "syn1", Kind: EntityKindFolder}
	cache.Register(project)
	cache.Register(folder)

	childID, found := cache.ChildID("syn1", "sub")
	assert.True(t, found)
	assert.Equal(t, "syn2", childID)
	assert.Equal(t, folder, cache.Get("syn2"))

	_, found = cache.ChildID("syn1", "other")
	assert.False(t, found)
	assert.Nil(t, cache.Get("syn99"))
}

func TestCacheSynapsePathWalksToProject(t *testing.T) {
	cache := newEntityCache()
	project := &Entity{ID: "syn1", Name: "Project", Kind: EntityKindProject}
	outer := &Entity{ID: "syn2", Name: "a", ParentID: "syn1", Kind: EntityKindFolder}
	inner := &Entity{ID: "syn3", Name: "b", ParentID: "syn2", Kind: EntityKindFolder}
	cache.Register(project)
	cache.Register(outer)
	cache.Register(inner)

	assert.Equal(t, "Project/a/b/file.txt", cache.SynapsePath("file.txt", inner))
	assert.Equal(t, "Project/a", cache.SynapsePath("a", project))
}

func TestCacheSynapsePathStopsAtUncachedParent(t *testing.T) {
	cache := newEntityCache()
	orphan := &Entity{ID: "syn2", Name: "a", ParentID: "syn1", Kind: EntityKindFolder}
	cache.Register(orphan)

	assert.Equal(t, "a/file.txt", cache.SynapsePath("file.txt", orphan))
}
