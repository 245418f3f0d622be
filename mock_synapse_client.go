package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
)

type MockFolderCreateRequest struct {
	ParentID string
	Name     string
}

type MockUploadRequest struct {
	ParentID   string
	ExistingID string
	LocalPath  string
	Name       string
}

type MockGrantRequest struct {
	ProjectID string
	TeamID    string
}

// MockSynapseClient keeps an in-memory entity tree and records every
// mutating request it sees. Uploads hash the real local file so digest
// comparisons behave like the live service.
type MockSynapseClient struct {
	lock       *sync.Mutex
	entities   map[string]*Entity
	childIndex map[string]map[string]string
	nextID     int

	LoginCalls              int
	TeamName                string
	ProjectCreateRequests   []string
	FolderCreateRequests    []MockFolderCreateRequest
	UploadRequests          []MockUploadRequest
	GrantRequests           []MockGrantRequest
	StorageLocationRequests []string

	FailFolderCreates  int
	FailUploads        int
	WriteDenied        map[string]bool
	UploadMD5Override  map[string]string
	UploadSizeOverride map[string]int64
}

func NewMockSynapseClient() *MockSynapseClient {
	return &MockSynapseClient{
		lock:                    new(sync.Mutex),
		entities:                make(map[string]*Entity),
		childIndex:              make(map[string]map[string]string),
		TeamName:                "Mock Team",
		ProjectCreateRequests:   make([]string, 0),
		FolderCreateRequests:    make([]MockFolderCreateRequest, 0),
		UploadRequests:          make([]MockUploadRequest, 0),
		GrantRequests:           make([]MockGrantRequest, 0),
		StorageLocationRequests: make([]string, 0),
		WriteDenied:             make(map[string]bool),
		UploadMD5Override:       make(map[string]string),
		UploadSizeOverride:      make(map[string]int64),
	}
}

// AddEntity seeds the mock with a pre-existing remote entity.
func (c *MockSynapseClient) AddEntity(entity *Entity) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.addEntityLocked(entity)
}

func (c *MockSynapseClient) addEntityLocked(entity *Entity) {
	c.entities[entity.ID] = entity
	siblings := c.childIndex[entity.ParentID]
	if siblings == nil {
		siblings = make(map[string]string)
		c.childIndex[entity.ParentID] = siblings
	}
	siblings[entity.Name] = entity.ID
}

func (c *MockSynapseClient) newIDLocked() string {
	c.nextID++
	return "syn" + strconv.Itoa(c.nextID)
}

func (c *MockSynapseClient) Login(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.LoginCalls++
	return nil
}

func (c *MockSynapseClient) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return &Team{ID: teamID, Name: c.TeamName}, nil
}

func (c *MockSynapseClient) GetStorageLocation(ctx context.Context, storageLocationID int64) (*StorageLocation, error) {
	return &StorageLocation{ID: storageLocationID, Bucket: "mock-bucket"}, nil
}

func (c *MockSynapseClient) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	entity, found := c.entities[entityID]
	if !found {
		return nil, ErrNotFound
	}
	return entity, nil
}

func (c *MockSynapseClient) FindChildID(ctx context.Context, parentID, name string) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	childID, found := c.childIndex[parentID][name]
	if !found {
		return "", ErrNotFound
	}
	return childID, nil
}

func (c *MockSynapseClient) CreateProject(ctx context.Context, name string) (*Entity, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.ProjectCreateRequests = append(c.ProjectCreateRequests, name)

	project := &Entity{ID: c.newIDLocked(), Name: name, Kind: EntityKindProject}
	c.addEntityLocked(project)
	return project, nil
}

func (c *MockSynapseClient) CreateFolder(ctx context.Context, parentID, name string) (*Entity, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.FolderCreateRequests = append(c.FolderCreateRequests, MockFolderCreateRequest{ParentID: parentID, Name: name})

	if c.FailFolderCreates > 0 {
		c.FailFolderCreates--
		return nil, &synapseError{StatusCode: 503, Reason: "mock folder create failure"}
	}

	folder := &Entity{ID: c.newIDLocked(), Name: name, ParentID: parentID, Kind: EntityKindFolder}
	c.addEntityLocked(folder)
	return folder, nil
}

func (c *MockSynapseClient) UploadFile(ctx context.Context, parentID, existingID, localPath, name string) (*Entity, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.UploadRequests = append(c.UploadRequests, MockUploadRequest{
		ParentID:   parentID,
		ExistingID: existingID,
		LocalPath:  localPath,
		Name:       name,
	})

	if c.FailUploads > 0 {
		c.FailUploads--
		return nil, &synapseError{StatusCode: 503, Reason: "mock upload failure"}
	}

	contentMD5, md5Err := fileMD5(localPath)
	if md5Err != nil {
		return nil, md5Err
	}
	info, statErr := os.Stat(localPath)
	if statErr != nil {
		return nil, statErr
	}
	if override, found := c.UploadMD5Override[localPath]; found {
		contentMD5 = override
	}
	contentSize := info.Size()
	if override, found := c.UploadSizeOverride[localPath]; found {
		contentSize = override
	}

	if existingID != "" {
		existing, found := c.entities[existingID]
		if !found {
			return nil, ErrNotFound
		}
		existing.ContentMD5 = contentMD5
		existing.ContentSize = contentSize
		return existing, nil
	}

	file := &Entity{
		ID:          c.newIDLocked(),
		Name:        name,
		ParentID:    parentID,
		Kind:        EntityKindFile,
		ContentMD5:  contentMD5,
		ContentSize: contentSize,
	}
	c.addEntityLocked(file)
	return file, nil
}

func (c *MockSynapseClient) CanWrite(ctx context.Context, entityID string) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return !c.WriteDenied[entityID], nil
}

func (c *MockSynapseClient) SetStorageLocation(ctx context.Context, projectID string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.StorageLocationRequests = append(c.StorageLocationRequests, projectID)
	return nil
}

func (c *MockSynapseClient) GrantAdminAccess(ctx context.Context, projectID, teamID string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.GrantRequests = append(c.GrantRequests, MockGrantRequest{ProjectID: projectID, TeamID: teamID})
	return nil
}

// EntityByPath walks name segments from a root entity, for asserting on
// the tree a test built up.
func (c *MockSynapseClient) EntityByPath(rootID string, names ...string) (*Entity, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	currentID := rootID
	for _, name := range names {
		childID, found := c.childIndex[currentID][name]
		if !found {
			return nil, fmt.Errorf("no child %q under %s", name, currentID)
		}
		currentID = childID
	}
	entity, found := c.entities[currentID]
	if !found {
		return nil, fmt.Errorf("no entity %s", currentID)
	}
	return entity, nil
}
