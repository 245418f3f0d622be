package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Verifier compares a completed checkout tree against the processed log
// and reports every non-empty file that never made it to Synapse. With
// remote checking enabled it also re-hashes each migrated file and
// compares the digest against the live Synapse entity.
type Verifier struct {
	synapse     SynapseClient
	checkRemote bool
	stats       *runStats
	byLocalPath map[string][]ledgerRow
}

func NewVerifier(synapse SynapseClient, checkRemote bool) *Verifier {
	return &Verifier{
		synapse:     synapse,
		checkRemote: checkRemote,
		stats:       newRunStats(),
		byLocalPath: make(map[string][]ledgerRow),
	}
}

func (v *Verifier) Run(ctx context.Context, ledgerPath, rootDir string) error {
	startTime := time.Now()
	log.Info(fmt.Sprintf("Started at: %s", startTime.Format(timestampFormat)))
	log.Info(fmt.Sprintf("Checkout Root Directory: %s", rootDir))
	log.Info(fmt.Sprintf("CSV File: %s", ledgerPath))

	rows, loadErr := readLedgerCSV(ledgerPath)
	if loadErr != nil {
		return fmt.Errorf("Error reading processed CSV: %s", loadErr)
	}
	log.Info(fmt.Sprintf("CSV Rows Loaded: %d", len(rows)))

	v.byLocalPath = make(map[string][]ledgerRow)
	for _, row := range rows {
		if row.RemoteOnly {
			continue
		}
		v.byLocalPath[row.LocalPath] = append(v.byLocalPath[row.LocalPath], row)
	}

	v.compareDir(ctx, rootDir)

	log.Info(strings.Repeat("#", 80))
	log.Info(fmt.Sprintf("Ended at: %s, total duration: %s", time.Now().Format(timestampFormat), time.Since(startTime)))

	if verifyErrors := v.stats.Errors(); len(verifyErrors) > 0 {
		log.Info(strings.Repeat("!", 80))
		log.Info("Completed with Errors:")
		for _, line := range verifyErrors {
			log.Error(fmt.Sprintf(" - %s", line))
		}
	} else {
		log.Info("Completed Successfully.")
	}
	return nil
}

func (v *Verifier) compareDir(ctx context.Context, localPath string) {
	dirs, files, listErr := listDirAndFiles(localPath)
	if listErr != nil {
		v.stats.AddError("Error reading directory: %s, %s", localPath, listErr)
		return
	}

	for _, file := range files {
		filePath := filepath.Join(localPath, file.Name)
		matches := v.byLocalPath[filePath]
		if len(matches) > 1 {
			v.stats.AddError("Found more than one file matching path: %s", filePath)
		}
		if len(matches) > 0 {
			log.Info(fmt.Sprintf("[FILE MIGRATED] %s", filePath))
			if v.checkRemote {
				v.compareRemote(ctx, filePath, matches[0])
			}
		} else if file.Size > 0 {
			v.stats.AddError("[FILE NOT MIGRATED] %s", filePath)
		} else {
			log.Warn(fmt.Sprintf("[FILE NOT MIGRATED] [HAS ZERO SIZE] %s", filePath))
		}
	}

	for _, dirName := range dirs {
		v.compareDir(ctx, filepath.Join(localPath, dirName))
	}
}

func (v *Verifier) compareRemote(ctx context.Context, filePath string, row ledgerRow) {
	// empty files are recorded without an entity, nothing to check
	if row.SynapseID == "" {
		return
	}

	entity, getErr := v.synapse.GetEntity(ctx, row.SynapseID)
	if getErr != nil {
		v.stats.AddError("Error loading Synapse entity %s for %s: %s", row.SynapseID, filePath, getErr)
		return
	}
	localMD5, md5Err := fileMD5(filePath)
	if md5Err != nil {
		v.stats.AddError("Error reading %s: %s", filePath, md5Err)
		return
	}
	if entity.ContentMD5 != localMD5 {
		v.stats.AddError("Local MD5 does not match remote MD5 for: %s", filePath)
	}
}
