package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// uploadPool bounds the number of concurrent file transfers. Folder
// traversal stays on the submitting goroutine so a folder is always
// resolved before anything beneath it is handed to a worker.
type uploadPool struct {
	semaphore chan int
	wg        *sync.WaitGroup
}

func newUploadPool(size int) *uploadPool {
	if size < 1 {
		size = 1
	}
	return &uploadPool{
		semaphore: make(chan int, size),
		wg:        new(sync.WaitGroup),
	}
}

func (p *uploadPool) Submit(task func()) {
	p.wg.Add(1)
	go func() {
		p.semaphore <- 1
		defer p.wg.Done()
		defer func() { <-p.semaphore }()
		task()
	}()
}

func (p *uploadPool) Wait() {
	p.wg.Wait()
}

// syncFolder walks a local directory and mirrors it under the resolved
// Synapse parent. Files are handed to the upload pool; subfolders are
// resolved in order on this goroutine and recursed into. A nil parent
// means the folder above failed, so the whole subtree is reported and
// skipped.
func (m *Migrator) syncFolder(ctx context.Context, localPath string, parent *Entity) {
	if parent == nil {
		m.stats.AddError("Parent not found, cannot upload folder: %s", localPath)
		return
	}

	dirs, files, listErr := listDirAndFiles(localPath)
	if listErr != nil {
		m.stats.AddError("Error uploading folder: %s, %s", localPath, listErr)
		return
	}

	for _, dirName := range dirs {
		m.stats.AddFound(filepath.Join(localPath, dirName))
	}
	for _, file := range files {
		m.stats.AddFound(filepath.Join(localPath, file.Name))
	}

	for _, file := range files {
		filePath := filepath.Join(localPath, file.Name)
		fileName := file.Name
		fileSize := file.Size
		m.pool.Submit(func() {
			m.findOrUploadFile(ctx, filePath, fileName, fileSize, parent)
		})
	}

	for _, dirName := range dirs {
		dirPath := filepath.Join(localPath, dirName)
		if badChars := invalidNameChars(dirName); len(badChars) > 0 {
			m.stats.AddError("Folder name: \"%s\" contains invalid characters: \"%s\"", dirPath, string(badChars))
			continue
		}
		folder := m.findOrCreateFolder(ctx, dirPath, dirName, parent, false)
		m.syncFolder(ctx, dirPath, folder)
	}
}

// findOrCreateFolder resolves the named folder under parent, creating it
// when it does not exist yet. Returns nil after recording an error when
// the folder cannot be resolved, which the caller treats as a failed
// subtree.
func (m *Migrator) findOrCreateFolder(ctx context.Context, localPath, name string, parent *Entity, isRemoteOnly bool) *Entity {
	if parent == nil {
		m.stats.AddError("Parent not found, cannot create folder: %s", localPath)
		return nil
	}
	if badChars := invalidNameChars(name); len(badChars) > 0 {
		m.stats.AddError("Folder name: \"%s\" contains invalid characters: \"%s\"", localPath, string(badChars))
		return nil
	}

	fullSynapsePath := m.cache.SynapsePath(name, parent)
	subject := fmt.Sprintf("%s -> %s", localPath, fullSynapsePath)

	// a folder resolved earlier in the run never goes back to Synapse
	if childID, cached := m.cache.ChildID(parent.ID, name); cached {
		m.stats.AddProcessed(localPath)
		return m.cache.Get(childID)
	}

	folderID, findErr := m.synapse.FindChildID(ctx, parent.ID, name)
	if errors.Is(findErr, ErrNotFound) && trimmedName(name) != name {
		folderID, findErr = m.synapse.FindChildID(ctx, parent.ID, trimmedName(name))
	}

	switch {
	case findErr == nil:
		folder, getErr := m.synapse.GetEntity(ctx, folderID)
		if getErr != nil {
			m.stats.AddError("[Folder ERROR] %s : %s", subject, getErr)
			return nil
		}
		m.cache.Register(folder)
		m.recordProcessed(localPath, fullSynapsePath, folder.ID, isRemoteOnly)
		log.Info(fmt.Sprintf("[Folder EXISTS]: %s", subject))
		return folder
	case errors.Is(findErr, ErrNotFound):
		// fall through to create
	default:
		m.stats.AddError("[Folder ERROR] %s : %s", subject, findErr)
		return nil
	}

	var folder *Entity
	createErr := withRetry(m.retry, "Folder", subject, func() error {
		created, storeErr := m.synapse.CreateFolder(ctx, parent.ID, name)
		if storeErr == nil {
			folder = created
		}
		return storeErr
	})
	if createErr != nil {
		m.stats.AddError("[Folder FAILED] %s : %s", subject, createErr)
		return nil
	}

	m.cache.Register(folder)
	m.recordProcessed(localPath, fullSynapsePath, folder.ID, isRemoteOnly)
	log.Info(fmt.Sprintf("[Folder CREATED] %s", subject))
	return folder
}

// findOrUploadFile brings one local file to Synapse. A file that already
// exists remotely with a matching digest is left alone; a differing
// digest triggers a re-upload as a new revision of the same entity.
func (m *Migrator) findOrUploadFile(ctx context.Context, localPath, name string, size int64, parent *Entity) {
	if parent == nil {
		m.stats.AddError("Parent not found, cannot upload file: %s", localPath)
		return
	}
	if badChars := invalidNameChars(name); len(badChars) > 0 {
		m.stats.AddError("File name: \"%s\" contains invalid characters: \"%s\"", localPath, string(badChars))
		return
	}

	fullSynapsePath := m.cache.SynapsePath(name, parent)
	if size < 1 {
		log.Info(fmt.Sprintf("Skipping Empty File: %s", localPath))
		m.recordProcessed(localPath, fullSynapsePath, "", false)
		return
	}

	if dupErr := m.stats.AddSynapsePath(fullSynapsePath, localPath); dupErr != nil {
		m.stats.AddError("Error uploading file: %s, %s", localPath, dupErr)
		return
	}

	localMD5, md5Err := fileMD5(localPath)
	if md5Err != nil {
		m.stats.AddError("Error uploading file: %s, %s", localPath, md5Err)
		return
	}

	subject := fmt.Sprintf("%s -> %s", localPath, fullSynapsePath)

	existingID := ""
	fileID, findErr := m.synapse.FindChildID(ctx, parent.ID, name)
	if errors.Is(findErr, ErrNotFound) && trimmedName(name) != name {
		fileID, findErr = m.synapse.FindChildID(ctx, parent.ID, trimmedName(name))
	}

	switch {
	case findErr == nil:
		existing, getErr := m.synapse.GetEntity(ctx, fileID)
		if getErr != nil {
			m.stats.AddError("[File ERROR] %s : %s", subject, getErr)
			return
		}
		// a revision replaces the entity content, so the stored name
		// must match the local file before we touch it
		if existing.Name != name && existing.Name != trimmedName(name) {
			m.stats.AddError("Synapse name mismatch for: %s, expected \"%s\" but found \"%s\"", localPath, name, existing.Name)
			return
		}
		if existing.ContentMD5 == localMD5 {
			log.Info(fmt.Sprintf("[File is CURRENT] %s", subject))
			m.recordProcessed(localPath, fullSynapsePath, existing.ID, false)
			return
		}
		log.Info(fmt.Sprintf("[File has CHANGES] %s", subject))
		existingID = existing.ID
	case errors.Is(findErr, ErrNotFound):
		// brand new file
	default:
		m.stats.AddError("[File ERROR] %s : %s", subject, findErr)
		return
	}

	var uploaded *Entity
	uploadErr := withRetry(m.retry, "File", subject, func() error {
		stored, storeErr := m.synapse.UploadFile(ctx, parent.ID, existingID, localPath, name)
		if storeErr == nil {
			uploaded = stored
		}
		return storeErr
	})
	if uploadErr != nil {
		m.stats.AddError("[File FAILED] %s : %s", subject, uploadErr)
		return
	}

	if uploaded.ContentMD5 != localMD5 {
		m.stats.AddError("Local MD5 does not match remote MD5 for: %s", localPath)
	}
	if uploaded.ContentSize != size {
		m.stats.AddError("Local size does not match remote size for: %s", localPath)
	}

	m.recordProcessed(localPath, fullSynapsePath, uploaded.ID, false)
	log.Info(fmt.Sprintf("[File UPLOADED] %s", subject))
}

func (m *Migrator) recordProcessed(localPath, remotePath, synapseID string, isRemoteOnly bool) {
	if ledgerErr := m.ledger.Append(localPath, remotePath, synapseID, isRemoteOnly); ledgerErr != nil {
		m.stats.AddError("Error writing processed log: %s", ledgerErr)
	}
	m.stats.AddProcessed(localPath)
}
