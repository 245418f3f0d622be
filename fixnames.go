package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// NameFixer renames files and directories whose names Synapse would
// reject, replacing each offending character with ReplaceChar. An empty
// ReplaceChar removes the characters. DryRun reports what would change
// without touching the filesystem.
type NameFixer struct {
	DryRun      bool
	ReplaceChar string
	renamed     []string
	errors      []string
}

func (f *NameFixer) Execute(startPath string) {
	fixedPath := f.checkForRename(startPath)
	f.processDir(fixedPath)

	log.Info(strings.Repeat("=", 80))

	if len(f.renamed) > 0 {
		log.Info("Renamed Directories and Files:")
		for _, line := range f.renamed {
			log.Info(fmt.Sprintf("  %s", line))
		}
	}

	if len(f.errors) > 0 {
		log.Info("Errors:")
		for _, line := range f.errors {
			log.Info(fmt.Sprintf("  %s", line))
		}
		log.Info("Finished with errors.")
	} else {
		log.Info("Finished successfully.")
	}

	if f.DryRun {
		log.Info(strings.Repeat("!", 80))
		log.Info("!!! Dry Run Only - No Files or Directories Changed !!!")
		log.Info(strings.Repeat("!", 80))
	}
}

func (f *NameFixer) processDir(localPath string) {
	log.Info(strings.Repeat("-", 80))
	log.Info(fmt.Sprintf("Processing: %s", localPath))

	dirs, files, listErr := listDirAndFiles(localPath)
	if listErr != nil {
		f.addError(fmt.Sprintf("Error reading directory: %s : %s", localPath, listErr))
		return
	}

	for _, file := range files {
		f.checkForRename(filepath.Join(localPath, file.Name))
	}
	for _, dirName := range dirs {
		// renaming the directory first keeps the recursion on the new path
		fixedDirPath := f.checkForRename(filepath.Join(localPath, dirName))
		f.processDir(fixedDirPath)
	}
}

// checkForRename renames the entry when its name has invalid characters
// and returns the path the entry lives at afterwards. The old path comes
// back whenever the rename is refused or fails.
func (f *NameFixer) checkForRename(localPath string) string {
	name := filepath.Base(localPath)
	badChars := invalidNameChars(name)
	if len(badChars) == 0 {
		return localPath
	}

	newName := name
	for _, badChar := range badChars {
		newName = strings.ReplaceAll(newName, string(badChar), f.ReplaceChar)
	}
	log.Info(fmt.Sprintf("  - Renaming: %s -> %s - Removing: %s", name, newName, string(badChars)))

	if trimmedName(newName) == "" {
		f.addError(fmt.Sprintf("Error renaming: %s : replacement leaves an empty name", localPath))
		return localPath
	}

	newPath := filepath.Join(filepath.Dir(localPath), newName)
	if _, statErr := os.Stat(newPath); statErr == nil {
		f.addError(fmt.Sprintf("Name collision. Cannot rename: %s -> %s", localPath, newPath))
		return localPath
	}

	if f.DryRun {
		f.renamed = append(f.renamed, fmt.Sprintf("%s -> %s", localPath, newPath))
		return localPath
	}

	if renameErr := os.Rename(localPath, newPath); renameErr != nil {
		f.addError(fmt.Sprintf("Error renaming: %s : %s", localPath, renameErr))
		return localPath
	}
	f.renamed = append(f.renamed, fmt.Sprintf("%s -> %s", localPath, newPath))
	return newPath
}

func (f *NameFixer) addError(message string) {
	log.Error(message)
	f.errors = append(f.errors, message)
}
