package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

var jobHeader = []string{"git_url", "git_folder", "synapse_project_id", "synapse_path"}

type JobDescriptor struct {
	GitURL           string
	GitFolder        string
	SynapseProjectID string
	SynapsePath      string
}

func readJobCSV(csvPath string) ([]JobDescriptor, error) {
	fd, openErr := os.Open(csvPath)
	if openErr != nil {
		return nil, openErr
	}
	defer fd.Close()

	reader := csv.NewReader(fd)
	header, headerErr := reader.Read()
	if headerErr != nil {
		return nil, headerErr
	}

	columns := make(map[string]int)
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, name := range jobHeader {
		if _, found := columns[name]; !found {
			return nil, fmt.Errorf("Job CSV missing required column: %s", name)
		}
	}

	jobs := make([]JobDescriptor, 0)
	for {
		record, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, readErr
		}
		jobs = append(jobs, JobDescriptor{
			GitURL:           strings.TrimSpace(record[columns["git_url"]]),
			GitFolder:        strings.TrimSpace(record[columns["git_folder"]]),
			SynapseProjectID: strings.TrimSpace(record[columns["synapse_project_id"]]),
			SynapsePath:      strings.Trim(strings.TrimSpace(record[columns["synapse_path"]]), "/"),
		})
	}
	return jobs, nil
}

func projectName(repoName, gitFolder string) string {
	name := fmt.Sprintf("GHAP - %s", repoName)
	if gitFolder != "" {
		name = fmt.Sprintf("%s - %s", name, strings.ReplaceAll(gitFolder, "/", "-"))
	}
	return name
}

type Migrator struct {
	synapse      SynapseClient
	fetcher      RepoFetcher
	notifier     Notifier
	appConfig    AppConfig
	cache        *entityCache
	stats        *runStats
	ledger       *Ledger
	pool         *uploadPool
	retry        retryPolicy
	fetchedRepos map[string]string
}

func NewMigrator(synapse SynapseClient, fetcher RepoFetcher, notifier Notifier, appConfig AppConfig) *Migrator {
	return &Migrator{
		synapse:   synapse,
		fetcher:   fetcher,
		notifier:  notifier,
		appConfig: appConfig,
		cache:     newEntityCache(),
		stats:     newRunStats(),
		ledger:    NewLedger(appConfig.Ledger.Path, appConfig.Ledger.BatchSize),
		pool:      newUploadPool(appConfig.Concurrency),
		retry: retryPolicy{
			MaxAttempts: appConfig.Retry.MaxAttempts,
			MinDelay:    appConfig.Retry.MinDelay,
			MaxDelay:    appConfig.Retry.MaxDelay,
		},
		fetchedRepos: make(map[string]string),
	}
}

// Run migrates every job row in the CSV and prints the run summary. The
// returned error covers setup failures only; per-path failures are
// collected, reported at the end, and never abort the run.
func (m *Migrator) Run(ctx context.Context, csvPath string) error {
	m.stats = newRunStats()
	m.cache = newEntityCache()
	m.ledger = NewLedger(m.appConfig.Ledger.Path, m.appConfig.Ledger.BatchSize)
	m.fetchedRepos = make(map[string]string)

	startTime := time.Now()
	log.Info(fmt.Sprintf("Started at: %s", startTime.Format(timestampFormat)))
	log.Info(fmt.Sprintf("CSV File: %s", csvPath))
	log.Info(fmt.Sprintf("Work Directory: %s", m.appConfig.WorkDir))

	jobs, csvErr := readJobCSV(csvPath)
	if csvErr != nil {
		return fmt.Errorf("Error reading job CSV: %s", csvErr)
	}

	if loginErr := m.synapse.Login(ctx); loginErr != nil {
		return fmt.Errorf("Synapse login failed: %s", loginErr)
	}

	if m.appConfig.AdminTeamID != "" {
		log.Info(fmt.Sprintf("Loading Admin Team ID: %s", m.appConfig.AdminTeamID))
		team, teamErr := m.synapse.GetTeam(ctx, m.appConfig.AdminTeamID)
		if teamErr != nil {
			return fmt.Errorf("Error loading admin team: %s", teamErr)
		}
		log.Info(fmt.Sprintf("Admin Team Loaded: %s", team.Name))
	}

	if m.appConfig.StorageLocationID != 0 {
		log.Info(fmt.Sprintf("Loading Storage Location ID: %d", m.appConfig.StorageLocationID))
		location, locationErr := m.synapse.GetStorageLocation(ctx, m.appConfig.StorageLocationID)
		if locationErr != nil {
			return fmt.Errorf("Error loading storage location: %s", locationErr)
		}
		log.Info(fmt.Sprintf("Storage Location: %s", location.Bucket))
	}

	for _, job := range jobs {
		m.runJob(ctx, job)
	}
	m.pool.Wait()

	if closeErr := m.ledger.Close(); closeErr != nil {
		m.stats.AddError("Error writing processed log: %s", closeErr)
	}

	log.Info(strings.Repeat("#", 80))
	log.Info(fmt.Sprintf("Ended at: %s, total duration: %s", time.Now().Format(timestampFormat), time.Since(startTime)))

	for _, localPath := range m.stats.FoundNotProcessed() {
		m.stats.Record(fmt.Sprintf("Path found but not processed: %s", localPath))
	}

	if mappings := m.stats.Mappings(); len(mappings) > 0 {
		log.Info("Synapse Projects:")
		for _, line := range mappings {
			log.Info(fmt.Sprintf(" - %s", line))
		}
	}

	if runErrors := m.stats.Errors(); len(runErrors) > 0 {
		log.Info(strings.Repeat("!", 80))
		log.Info("Completed with Errors:")
		for _, line := range runErrors {
			log.Error(fmt.Sprintf(" - %s", line))
		}
	} else {
		log.Info("Completed Successfully.")
	}

	if m.notifier != nil {
		if notifyErr := m.notifier.NotifyRunResults(csvPath, m.stats); notifyErr != nil {
			log.Warn(fmt.Sprintf("Error publishing run notification: %s", notifyErr))
		}
	}
	return nil
}

func (m *Migrator) runJob(ctx context.Context, job JobDescriptor) {
	log.Info(strings.Repeat("=", 80))
	log.Info(fmt.Sprintf("Processing %s", job.GitURL))
	if job.GitFolder != "" {
		log.Info(fmt.Sprintf("  - Target Folder: %s", job.GitFolder))
	}

	repoName, _, parseErr := parseGitURL(job.GitURL, m.appConfig.WorkDir)
	if parseErr != nil {
		m.stats.AddError("Error parsing git url: %s : %s", job.GitURL, parseErr)
		return
	}

	repoPath, fetched := m.fetchedRepos[job.GitURL]
	if fetched {
		log.Info(fmt.Sprintf("  - Repo Root: %s", repoPath))
	} else {
		fetchedPath, fetchErrs := m.fetcher.Fetch(job.GitURL)
		if len(fetchErrs) > 0 {
			for _, fetchErr := range fetchErrs {
				m.stats.AddError("%s", fetchErr)
			}
			return
		}
		repoPath = fetchedPath
		m.fetchedRepos[job.GitURL] = repoPath
	}

	nameOrID := job.SynapseProjectID
	if nameOrID == "" {
		nameOrID = projectName(repoName, job.GitFolder)
	}

	project := m.resolveProject(ctx, nameOrID)
	if project == nil {
		m.stats.AddError("Could not get project for %s.", job.GitURL)
		return
	}

	if job.GitFolder != "" {
		m.stats.AddMapping(fmt.Sprintf("%s (%s) -> %s (%s)", job.GitURL, job.GitFolder, project.Name, project.ID))
	} else {
		m.stats.AddMapping(fmt.Sprintf("%s -> %s (%s)", job.GitURL, project.Name, project.ID))
	}

	// folders named in the job row exist only on the Synapse side, the
	// repo tree is mirrored beneath the deepest one
	parent := project
	remotePath := ""
	for _, segment := range splitPathParts(job.SynapsePath) {
		remotePath = path.Join(remotePath, segment)
		parent = m.findOrCreateFolder(ctx, remotePath, segment, parent, true)
		if parent == nil {
			break
		}
	}

	startPath := repoPath
	if job.GitFolder != "" {
		startPath = filepath.Join(repoPath, filepath.FromSlash(job.GitFolder))
	}
	m.syncFolder(ctx, startPath, parent)
}

func isSynapseID(nameOrID string) bool {
	return strings.HasPrefix(strings.ToLower(nameOrID), "syn")
}

// findProject resolves an existing project by Synapse ID or by name.
func (m *Migrator) findProject(ctx context.Context, nameOrID string) (*Entity, error) {
	if isSynapseID(nameOrID) {
		return m.synapse.GetEntity(ctx, nameOrID)
	}
	projectID, findErr := m.synapse.FindChildID(ctx, "", nameOrID)
	if findErr != nil {
		return nil, findErr
	}
	return m.synapse.GetEntity(ctx, projectID)
}

func (m *Migrator) resolveProject(ctx context.Context, nameOrID string) *Entity {
	project, findErr := m.findProject(ctx, nameOrID)
	if findErr != nil {
		// only a project named by convention may be created, an explicit
		// syn ID that fails to resolve is reported instead
		if isSynapseID(nameOrID) || !errors.Is(findErr, ErrNotFound) {
			m.stats.AddError("Script user does not have READ permission to Project: %s", nameOrID)
			return nil
		}
	}

	if project != nil {
		log.Info(fmt.Sprintf("[Project FOUND] %s: %s", project.ID, project.Name))
		canWrite, permErr := m.synapse.CanWrite(ctx, project.ID)
		if permErr != nil || !canWrite {
			m.stats.AddError("Script user does not have WRITE permission to Project: %s", nameOrID)
			return nil
		}
	} else {
		created, createErr := m.synapse.CreateProject(ctx, nameOrID)
		if createErr != nil {
			m.stats.AddError("Error creating project: %s, %s", nameOrID, createErr)
			return nil
		}
		project = created
		log.Info(fmt.Sprintf("[Project CREATED] %s: %s", project.ID, project.Name))

		if m.appConfig.StorageLocationID != 0 {
			log.Info(fmt.Sprintf("Setting storage location for project: %s: %s", project.ID, project.Name))
			if storageErr := m.synapse.SetStorageLocation(ctx, project.ID); storageErr != nil {
				m.stats.AddError("Error creating project: %s, %s", nameOrID, storageErr)
			}
		}
		if m.appConfig.AdminTeamID != "" {
			log.Info(fmt.Sprintf("Granting admin permissions to team on Project: %s: %s", project.ID, project.Name))
			if grantErr := m.synapse.GrantAdminAccess(ctx, project.ID, m.appConfig.AdminTeamID); grantErr != nil {
				m.stats.AddError("Error creating project: %s, %s", nameOrID, grantErr)
			}
		}
	}

	m.cache.Register(project)
	return project
}
