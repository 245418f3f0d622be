package main

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// runStats tracks what a single run discovered, what it finished, and
// everything that went wrong. Every local path that gets added to found
// must eventually be marked processed or the run reports it.
type runStats struct {
	lock         *sync.Mutex
	found        []string
	foundSeen    map[string]bool
	processed    map[string]bool
	errors       []string
	errorSeen    map[string]bool
	mappings     []string
	synapsePaths map[string]string
}

func newRunStats() *runStats {
	return &runStats{
		lock:         new(sync.Mutex),
		found:        make([]string, 0),
		foundSeen:    make(map[string]bool),
		processed:    make(map[string]bool),
		errors:       make([]string, 0),
		errorSeen:    make(map[string]bool),
		mappings:     make([]string, 0),
		synapsePaths: make(map[string]string),
	}
}

func (s *runStats) AddFound(localPath string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.foundSeen[localPath] {
		return
	}
	s.foundSeen[localPath] = true
	s.found = append(s.found, localPath)
}

func (s *runStats) AddProcessed(localPath string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.processed[localPath] = true
}

func (s *runStats) AddMapping(line string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.mappings = append(s.mappings, line)
}

// AddError logs the message and records it for the run summary.
func (s *runStats) AddError(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	log.Error(message)
	s.Record(message)
}

// Record keeps an error for the summary without logging it again.
func (s *runStats) Record(message string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.errorSeen[message] {
		return
	}
	s.errorSeen[message] = true
	s.errors = append(s.errors, message)
}

// AddSynapsePath claims a remote path for a local file. Two local files
// resolving to the same remote path would silently overwrite each other,
// so the second claim is refused.
func (s *runStats) AddSynapsePath(synapsePath, localPath string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, claimed := s.synapsePaths[synapsePath]; claimed {
		return fmt.Errorf("Duplicate synapse path found: %s for: %s", synapsePath, localPath)
	}
	s.synapsePaths[synapsePath] = localPath
	return nil
}

func (s *runStats) Errors() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	errorList := make([]string, len(s.errors))
	copy(errorList, s.errors)
	return errorList
}

func (s *runStats) Mappings() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	mappingList := make([]string, len(s.mappings))
	copy(mappingList, s.mappings)
	return mappingList
}

// FoundNotProcessed returns every discovered path that never finished,
// in discovery order.
func (s *runStats) FoundNotProcessed() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	missing := make([]string, 0)
	for _, localPath := range s.found {
		if !s.processed[localPath] {
			missing = append(missing, localPath)
		}
	}
	return missing
}
