package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNotFound         = errors.New("entity not found")
	ErrPermissionDenied = errors.New("permission denied")
)

type synapseError struct {
	StatusCode int
	Reason     string
}

func (e *synapseError) Error() string {
	return fmt.Sprintf("Synapse returned %d: %s", e.StatusCode, e.Reason)
}

func (e *synapseError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func isConflict(err error) bool {
	var synErr *synapseError
	return errors.As(err, &synErr) && synErr.StatusCode == http.StatusConflict
}

type EntityKind string

const (
	EntityKindProject EntityKind = "project"
	EntityKindFolder  EntityKind = "folder"
	EntityKindFile    EntityKind = "file"
)

type Entity struct {
	ID          string
	Name        string
	ParentID    string
	Kind        EntityKind
	ContentMD5  string
	ContentSize int64
}

type Team struct {
	ID   string
	Name string
}

type StorageLocation struct {
	ID      int64
	Bucket  string
	BaseKey string
}

type SynapseClient interface {
	Login(ctx context.Context) error
	GetTeam(ctx context.Context, teamID string) (*Team, error)
	GetStorageLocation(ctx context.Context, storageLocationID int64) (*StorageLocation, error)
	GetEntity(ctx context.Context, entityID string) (*Entity, error)
	FindChildID(ctx context.Context, parentID, name string) (string, error)
	CreateProject(ctx context.Context, name string) (*Entity, error)
	CreateFolder(ctx context.Context, parentID, name string) (*Entity, error)
	UploadFile(ctx context.Context, parentID, existingID, localPath, name string) (*Entity, error)
	CanWrite(ctx context.Context, entityID string) (bool, error)
	SetStorageLocation(ctx context.Context, projectID string) error
	GrantAdminAccess(ctx context.Context, projectID, teamID string) error
}

const (
	projectConcreteType       = "org.sagebionetworks.repo.model.Project"
	folderConcreteType        = "org.sagebionetworks.repo.model.Folder"
	fileConcreteType          = "org.sagebionetworks.repo.model.FileEntity"
	s3FileHandleType          = "org.sagebionetworks.repo.model.file.S3FileHandle"
	googleCloudFileHandleType = "org.sagebionetworks.repo.model.file.GoogleCloudFileHandle"
	uploadSettingType         = "org.sagebionetworks.repo.model.project.UploadDestinationListSetting"
)

var adminAccessTypes = []string{"UPDATE", "DELETE", "CHANGE_PERMISSIONS", "CHANGE_SETTINGS", "CREATE", "DOWNLOAD", "READ", "MODERATE"}

type entityJSON struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	ParentID         string `json:"parentId,omitempty"`
	ConcreteType     string `json:"concreteType,omitempty"`
	DataFileHandleID string `json:"dataFileHandleId,omitempty"`
	Etag             string `json:"etag,omitempty"`
}

type fileHandleJSON struct {
	ID                string `json:"id,omitempty"`
	ConcreteType      string `json:"concreteType,omitempty"`
	FileName          string `json:"fileName,omitempty"`
	ContentMD5        string `json:"contentMd5,omitempty"`
	ContentSize       int64  `json:"contentSize,omitempty"`
	ContentType       string `json:"contentType,omitempty"`
	BucketName        string `json:"bucketName,omitempty"`
	Key               string `json:"key,omitempty"`
	StorageLocationID int64  `json:"storageLocationId,omitempty"`
}

type fileHandleAssociation struct {
	FileHandleID        string `json:"fileHandleId"`
	AssociateObjectID   string `json:"associateObjectId"`
	AssociateObjectType string `json:"associateObjectType"`
}

type fileHandleBatchRequest struct {
	IncludeFileHandles bool                    `json:"includeFileHandles"`
	RequestedFiles     []fileHandleAssociation `json:"requestedFiles"`
}

type fileHandleBatchResponse struct {
	RequestedFiles []struct {
		FileHandle  *fileHandleJSON `json:"fileHandle,omitempty"`
		FailureCode string          `json:"failureCode,omitempty"`
	} `json:"requestedFiles"`
}

type aclResourceAccess struct {
	PrincipalID int64    `json:"principalId"`
	AccessType  []string `json:"accessType"`
}

type aclJSON struct {
	ID             string              `json:"id,omitempty"`
	Etag           string              `json:"etag,omitempty"`
	ResourceAccess []aclResourceAccess `json:"resourceAccess"`
}

type SynapseRestClient struct {
	endpoint          string
	fileEndpoint      string
	authEndpoint      string
	username          string
	password          string
	authToken         string
	uploadTimeout     time.Duration
	storageLocationID int64
	provider          string
	bucket            string
	baseKey           string
	store             BucketClient
	httpClient        *http.Client
}

func NewSynapseRestClient(appConfig AppConfig, store BucketClient) *SynapseRestClient {
	return &SynapseRestClient{
		endpoint:          strings.TrimSuffix(appConfig.Synapse.Endpoint, "/"),
		fileEndpoint:      strings.TrimSuffix(appConfig.Synapse.FileEndpoint, "/"),
		authEndpoint:      strings.TrimSuffix(appConfig.Synapse.AuthEndpoint, "/"),
		username:          appConfig.Synapse.Username,
		password:          appConfig.Synapse.Password,
		authToken:         appConfig.Synapse.AuthToken,
		uploadTimeout:     time.Duration(appConfig.Synapse.UploadTimeout) * time.Second,
		storageLocationID: appConfig.StorageLocationID,
		provider:          appConfig.Storage.Provider,
		bucket:            appConfig.Storage.Bucket,
		baseKey:           appConfig.Storage.BaseKey,
		store:             store,
		httpClient:        &http.Client{},
	}
}

func (c *SynapseRestClient) Login(ctx context.Context) error {
	if c.authToken == "" {
		if c.username == "" || c.password == "" {
			return fmt.Errorf("Synapse credentials are not configured")
		}
		log.Info(fmt.Sprintf("Logging into Synapse as: %s", c.username))
		var loginResp struct {
			AccessToken string `json:"accessToken"`
		}
		credentials := map[string]string{"username": c.username, "password": c.password}
		if loginErr := c.rest(ctx, http.MethodPost, c.authEndpoint, "/login2", credentials, &loginResp); loginErr != nil {
			return loginErr
		}
		if loginResp.AccessToken == "" {
			return fmt.Errorf("Synapse login returned no access token")
		}
		c.authToken = loginResp.AccessToken
	} else {
		log.Info("Logging into Synapse...")
	}

	var profile struct {
		OwnerID  string `json:"ownerId"`
		UserName string `json:"userName"`
	}
	if profileErr := c.rest(ctx, http.MethodGet, c.endpoint, "/userProfile", nil, &profile); profileErr != nil {
		return profileErr
	}
	log.Info(fmt.Sprintf("Logged into Synapse as: %s", profile.UserName))
	return nil
}

func (c *SynapseRestClient) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	var team struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if getErr := c.rest(ctx, http.MethodGet, c.endpoint, "/team/"+teamID, nil, &team); getErr != nil {
		return nil, getErr
	}
	return &Team{ID: team.ID, Name: team.Name}, nil
}

func (c *SynapseRestClient) GetStorageLocation(ctx context.Context, storageLocationID int64) (*StorageLocation, error) {
	var location struct {
		StorageLocationID int64  `json:"storageLocationId"`
		Bucket            string `json:"bucket"`
		BaseKey           string `json:"baseKey"`
	}
	apiPath := "/storageLocation/" + strconv.FormatInt(storageLocationID, 10)
	if getErr := c.rest(ctx, http.MethodGet, c.endpoint, apiPath, nil, &location); getErr != nil {
		return nil, getErr
	}
	return &StorageLocation{ID: location.StorageLocationID, Bucket: location.Bucket, BaseKey: location.BaseKey}, nil
}

func (c *SynapseRestClient) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	var raw entityJSON
	if getErr := c.rest(ctx, http.MethodGet, c.endpoint, "/entity/"+entityID, nil, &raw); getErr != nil {
		return nil, getErr
	}

	entity := &Entity{ID: raw.ID, Name: raw.Name, ParentID: raw.ParentID, Kind: kindFromConcreteType(raw.ConcreteType)}
	if raw.DataFileHandleID != "" {
		handle, handleErr := c.fileHandle(ctx, raw.ID, raw.DataFileHandleID)
		if handleErr != nil {
			return nil, handleErr
		}
		entity.ContentMD5 = handle.ContentMD5
		entity.ContentSize = handle.ContentSize
	}
	return entity, nil
}

func (c *SynapseRestClient) FindChildID(ctx context.Context, parentID, name string) (string, error) {
	lookup := struct {
		EntityName string `json:"entityName"`
		ParentID   string `json:"parentId,omitempty"`
	}{EntityName: name, ParentID: parentID}

	var child struct {
		ID string `json:"id"`
	}
	if findErr := c.rest(ctx, http.MethodPost, c.endpoint, "/entity/child", lookup, &child); findErr != nil {
		return "", findErr
	}
	if child.ID == "" {
		return "", ErrNotFound
	}
	return child.ID, nil
}

func (c *SynapseRestClient) CreateProject(ctx context.Context, name string) (*Entity, error) {
	request := entityJSON{Name: name, ConcreteType: projectConcreteType}
	var created entityJSON
	createErr := c.rest(ctx, http.MethodPost, c.endpoint, "/entity", request, &created)
	if isConflict(createErr) {
		// someone else owns that name, or a previous run already made it
		existingID, findErr := c.FindChildID(ctx, "", name)
		if findErr != nil {
			return nil, createErr
		}
		return c.GetEntity(ctx, existingID)
	}
	if createErr != nil {
		return nil, createErr
	}
	return &Entity{ID: created.ID, Name: created.Name, ParentID: created.ParentID, Kind: EntityKindProject}, nil
}

func (c *SynapseRestClient) CreateFolder(ctx context.Context, parentID, name string) (*Entity, error) {
	request := entityJSON{Name: name, ParentID: parentID, ConcreteType: folderConcreteType}
	var created entityJSON
	createErr := c.rest(ctx, http.MethodPost, c.endpoint, "/entity", request, &created)
	if isConflict(createErr) {
		// lost a create race, use whatever won
		existingID, findErr := c.FindChildID(ctx, parentID, name)
		if findErr != nil {
			return nil, createErr
		}
		return c.GetEntity(ctx, existingID)
	}
	if createErr != nil {
		return nil, createErr
	}
	return &Entity{ID: created.ID, Name: created.Name, ParentID: created.ParentID, Kind: EntityKindFolder}, nil
}

// UploadFile stages the content, registers a file handle for it, and
// creates or updates the file entity under parentID. An empty existingID
// means a brand new file, otherwise the entity is revised in place.
func (c *SynapseRestClient) UploadFile(ctx context.Context, parentID, existingID, localPath, name string) (*Entity, error) {
	uploadCtx := ctx
	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}

	handle, handleErr := c.createFileHandle(uploadCtx, localPath, name)
	if handleErr != nil {
		return nil, handleErr
	}

	var stored entityJSON
	if existingID == "" {
		request := entityJSON{Name: name, ParentID: parentID, ConcreteType: fileConcreteType, DataFileHandleID: handle.ID}
		if createErr := c.rest(uploadCtx, http.MethodPost, c.endpoint, "/entity", request, &stored); createErr != nil {
			return nil, createErr
		}
	} else {
		var current entityJSON
		if getErr := c.rest(uploadCtx, http.MethodGet, c.endpoint, "/entity/"+existingID, nil, &current); getErr != nil {
			return nil, getErr
		}
		current.DataFileHandleID = handle.ID
		if putErr := c.rest(uploadCtx, http.MethodPut, c.endpoint, "/entity/"+existingID, current, &stored); putErr != nil {
			return nil, putErr
		}
	}

	return &Entity{
		ID:          stored.ID,
		Name:        stored.Name,
		ParentID:    stored.ParentID,
		Kind:        EntityKindFile,
		ContentMD5:  handle.ContentMD5,
		ContentSize: handle.ContentSize,
	}, nil
}

func (c *SynapseRestClient) CanWrite(ctx context.Context, entityID string) (bool, error) {
	var permissions struct {
		CanAddChild bool `json:"canAddChild"`
		CanEdit     bool `json:"canEdit"`
	}
	if getErr := c.rest(ctx, http.MethodGet, c.endpoint, "/entity/"+entityID+"/permissions", nil, &permissions); getErr != nil {
		return false, getErr
	}
	return permissions.CanAddChild && permissions.CanEdit, nil
}

func (c *SynapseRestClient) SetStorageLocation(ctx context.Context, projectID string) error {
	setting := map[string]interface{}{
		"concreteType": uploadSettingType,
		"settingsType": "upload",
		"projectId":    projectID,
		"locations":    []int64{c.storageLocationID},
	}
	return c.rest(ctx, http.MethodPost, c.endpoint, "/projectSettings", setting, nil)
}

func (c *SynapseRestClient) GrantAdminAccess(ctx context.Context, projectID, teamID string) error {
	principalID, parseErr := strconv.ParseInt(teamID, 10, 64)
	if parseErr != nil {
		return fmt.Errorf("Invalid team id %q: %s", teamID, parseErr)
	}

	var acl aclJSON
	getErr := c.rest(ctx, http.MethodGet, c.endpoint, "/entity/"+projectID+"/acl", nil, &acl)
	method := http.MethodPut
	if errors.Is(getErr, ErrNotFound) {
		// entity inherits permissions, start a fresh ACL
		acl = aclJSON{ID: projectID}
		method = http.MethodPost
	} else if getErr != nil {
		return getErr
	}

	granted := false
	for i := range acl.ResourceAccess {
		if acl.ResourceAccess[i].PrincipalID == principalID {
			acl.ResourceAccess[i].AccessType = adminAccessTypes
			granted = true
		}
	}
	if !granted {
		acl.ResourceAccess = append(acl.ResourceAccess, aclResourceAccess{PrincipalID: principalID, AccessType: adminAccessTypes})
	}
	return c.rest(ctx, method, c.endpoint, "/entity/"+projectID+"/acl", acl, nil)
}

// createFileHandle stages content in the configured bucket and registers
// an external file handle pointing at it. Without a bucket the content
// goes through the Synapse file endpoint instead.
func (c *SynapseRestClient) createFileHandle(ctx context.Context, localPath, name string) (*fileHandleJSON, error) {
	if c.store == nil {
		return c.uploadViaFileEndpoint(ctx, localPath, name)
	}

	contentMD5, md5Err := fileMD5(localPath)
	if md5Err != nil {
		return nil, md5Err
	}
	info, statErr := os.Stat(localPath)
	if statErr != nil {
		return nil, statErr
	}

	fd, openErr := os.Open(localPath)
	if openErr != nil {
		return nil, openErr
	}
	defer fd.Close()

	key := path.Join(c.baseKey, uuid.NewString(), name)
	if uploadErr := c.store.UploadFile(ctx, c.bucket, key, fd); uploadErr != nil {
		return nil, uploadErr
	}

	storedSize, sizeErr := c.store.ObjectSize(ctx, c.bucket, key)
	if sizeErr != nil {
		return nil, sizeErr
	}
	if storedSize != info.Size() {
		return nil, fmt.Errorf("Stored object size %d does not match local size %d for %s", storedSize, info.Size(), localPath)
	}

	handlePath := "/externalFileHandle/s3"
	concreteType := s3FileHandleType
	if c.provider == "gcp" {
		handlePath = "/externalFileHandle/googleCloud"
		concreteType = googleCloudFileHandleType
	}

	handle := fileHandleJSON{
		ConcreteType:      concreteType,
		FileName:          name,
		ContentMD5:        contentMD5,
		ContentSize:       info.Size(),
		ContentType:       "application/octet-stream",
		BucketName:        c.bucket,
		Key:               key,
		StorageLocationID: c.storageLocationID,
	}
	var created fileHandleJSON
	if registerErr := c.rest(ctx, http.MethodPost, c.fileEndpoint, handlePath, handle, &created); registerErr != nil {
		return nil, registerErr
	}
	return &created, nil
}

func (c *SynapseRestClient) uploadViaFileEndpoint(ctx context.Context, localPath, name string) (*fileHandleJSON, error) {
	fd, openErr := os.Open(localPath)
	if openErr != nil {
		return nil, openErr
	}
	defer fd.Close()

	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		part, partErr := form.CreateFormFile("file", name)
		if partErr != nil {
			writer.CloseWithError(partErr)
			return
		}
		if _, copyErr := io.Copy(part, fd); copyErr != nil {
			writer.CloseWithError(copyErr)
			return
		}
		writer.CloseWithError(form.Close())
	}()

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, c.fileEndpoint+"/file", reader)
	if requestErr != nil {
		return nil, requestErr
	}
	request.Header.Set("Content-Type", form.FormDataContentType())

	var results struct {
		List []fileHandleJSON `json:"list"`
	}
	if postErr := c.do(request, &results); postErr != nil {
		return nil, postErr
	}
	if len(results.List) == 0 {
		return nil, fmt.Errorf("No file handle returned for %s", localPath)
	}
	return &results.List[0], nil
}

func (c *SynapseRestClient) fileHandle(ctx context.Context, entityID, handleID string) (*fileHandleJSON, error) {
	request := fileHandleBatchRequest{
		IncludeFileHandles: true,
		RequestedFiles: []fileHandleAssociation{{
			FileHandleID:        handleID,
			AssociateObjectID:   entityID,
			AssociateObjectType: "FileEntity",
		}},
	}
	var response fileHandleBatchResponse
	if postErr := c.rest(ctx, http.MethodPost, c.fileEndpoint, "/fileHandle/batch", request, &response); postErr != nil {
		return nil, postErr
	}
	if len(response.RequestedFiles) == 0 || response.RequestedFiles[0].FileHandle == nil {
		return nil, fmt.Errorf("No file handle returned for %s", entityID)
	}
	return response.RequestedFiles[0].FileHandle, nil
}

func (c *SynapseRestClient) rest(ctx context.Context, method, base, apiPath string, body, out interface{}) error {
	var payload io.Reader
	if body != nil {
		encoded, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return marshalErr
		}
		payload = bytes.NewReader(encoded)
	}

	request, requestErr := http.NewRequestWithContext(ctx, method, base+apiPath, payload)
	if requestErr != nil {
		return requestErr
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return c.do(request, out)
}

func (c *SynapseRestClient) do(request *http.Request, out interface{}) error {
	if c.authToken != "" {
		request.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	response, doErr := c.httpClient.Do(request)
	if doErr != nil {
		return doErr
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return ErrPermissionDenied
	case response.StatusCode >= 400:
		var failure struct {
			Reason string `json:"reason"`
		}
		json.NewDecoder(response.Body).Decode(&failure)
		return &synapseError{StatusCode: response.StatusCode, Reason: failure.Reason}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}

func kindFromConcreteType(concreteType string) EntityKind {
	switch concreteType {
	case projectConcreteType:
		return EntityKindProject
	case folderConcreteType:
		return EntityKindFolder
	case fileConcreteType:
		return EntityKindFile
	}
	return ""
}
