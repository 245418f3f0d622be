package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

type localEntry struct {
	Name string
	Size int64
}

// listDirAndFiles returns the directory names and file entries of a
// directory, sorted by name. Git bookkeeping (".git" directories and
// "*.gitlog" files) is excluded from migration.
func listDirAndFiles(dirPath string) ([]string, []localEntry, error) {
	entries, readErr := os.ReadDir(dirPath)
	if readErr != nil {
		return nil, nil, readErr
	}

	dirs := make([]string, 0)
	files := make([]localEntry, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			if entry.Name() == ".git" {
				log.Info(fmt.Sprintf("Skipping GIT Directory: %s", filepath.Join(dirPath, entry.Name())))
				continue
			}
			dirs = append(dirs, entry.Name())
			continue
		}
		if strings.HasSuffix(entry.Name(), ".gitlog") {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			return nil, nil, infoErr
		}
		files = append(files, localEntry{Name: entry.Name(), Size: info.Size()})
	}
	return dirs, files, nil
}

// expandPath resolves env vars and a leading ~ into an absolute path.
func expandPath(localPath string) (string, error) {
	expanded := os.ExpandEnv(localPath)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", homeErr
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
	}
	return filepath.Abs(expanded)
}

func splitPathParts(remotePath string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(remotePath, "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return parts
}
