package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func runAppConfig(t *testing.T) AppConfig {
	t.Helper()
	return AppConfig{
		WorkDir:     t.TempDir(),
		Concurrency: 2,
		Ledger:      LedgerConfig{Path: filepath.Join(t.TempDir(), "processed.csv"), BatchSize: 100},
		Retry:       RetryConfig{MaxAttempts: 3, MinDelay: 1, MaxDelay: 2},
	}
}

func writeJobCSV(t *testing.T, rows ...string) string {
	t.Helper()
	content := "git_url,git_folder,synapse_project_id,synapse_path\n"
	for _, row := range rows {
		content += row + "\n"
	}
	return writeTestFile(t, t.TempDir(), "jobs.csv", content)
}

func TestRunMigratesJobCSV(t *testing.T) {
	repo := t.TempDir()
	writeTestFile(t, repo, "data.csv", "a,b,c")

	repoURL := "https://github.com/ghap/data-repo.git"
	fetcher := &MockRepoFetcher{Paths: map[string]string{repoURL: repo}}
	synapse := NewMockSynapseClient()
	appConfig := runAppConfig(t)
	migrator := NewMigrator(synapse, fetcher, nil, appConfig)

	csvPath := writeJobCSV(t, repoURL+",,,")
	runErr := migrator.Run(context.Background(), csvPath)
	assert.Nil(t, runErr)

	assert.Equal(t, 1, synapse.LoginCalls)
	assert.Equal(t, []string{"GHAP - data-repo"}, synapse.ProjectCreateRequests)
	assert.Len(t, synapse.UploadRequests, 1)
	assert.Equal(t, "data.csv", synapse.UploadRequests[0].Name)
	assert.Len(t, migrator.stats.Errors(), 0)
	assert.Equal(t, []string{repoURL + " -> GHAP - data-repo (syn1)"}, migrator.stats.Mappings())

	rows := ledgerRowsByLocalPath(t, appConfig.Ledger.Path)
	assert.Len(t, rows, 1)
	assert.Equal(t, "GHAP - data-repo/data.csv", rows[filepath.Join(repo, "data.csv")].RemotePath)
}

func TestRunUsesExistingProjectByID(t *testing.T) {
	repo := t.TempDir()
	writeTestFile(t, repo, "data.csv", "a,b,c")

	repoURL := "https://github.com/ghap/data-repo.git"
	fetcher := &MockRepoFetcher{Paths: map[string]string{repoURL: repo}}
	synapse := NewMockSynapseClient()
	seedProject(synapse, "syn100", "Existing Project")
	migrator := NewMigrator(synapse, fetcher, nil, runAppConfig(t))

	csvPath := writeJobCSV(t, repoURL+",,syn100,")
	runErr := migrator.Run(context.Background(), csvPath)
	assert.Nil(t, runErr)

	assert.Len(t, synapse.ProjectCreateRequests, 0)
	assert.Len(t, synapse.UploadRequests, 1)
	assert.Equal(t, "syn100", synapse.UploadRequests[0].ParentID)
	assert.Equal(t, []string{repoURL + " -> Existing Project (syn100)"}, migrator.stats.Mappings())
}

func TestRunReportsWriteDeniedProject(t *testing.T) {
	repoURL := "https://github.com/ghap/data-repo.git"
	fetcher := &MockRepoFetcher{Paths: map[string]string{repoURL: t.TempDir()}}
	synapse := NewMockSynapseClient()
	seedProject(synapse, "syn100", "Existing Project")
	synapse.WriteDenied["syn100"] = true
	migrator := NewMigrator(synapse, fetcher, nil, runAppConfig(t))

	csvPath := writeJobCSV(t, repoURL+",,syn100,")
	runErr := migrator.Run(context.Background(), csvPath)
	assert.Nil(t, runErr)

	runErrors := migrator.stats.Errors()
	assert.Contains(t, runErrors, "Script user does not have WRITE permission to Project: syn100")
	assert.Contains(t, runErrors, fmt.Sprintf("Could not get project for %s.", repoURL))
	assert.Len(t, synapse.UploadRequests, 0)
}

func TestRunMissingProjectIDIsNotCreated(t *testing.T) {
	repoURL := "https://github.com/ghap/data-repo.git"
	fetcher := &MockRepoFetcher{Paths: map[string]string{repoURL: t.TempDir()}}
	synapse := NewMockSynapseClient()
	migrator := NewMigrator(synapse, fetcher, nil, runAppConfig(t))

	csvPath := writeJobCSV(t, repoURL+",,syn404,")
	runErr := migrator.Run(context.Background(), csvPath)
	assert.Nil(t, runErr)

	assert.Len(t, synapse.ProjectCreateRequests, 0)
	assert.Contains(t, migrator.stats.Errors(), "Script user does not have READ permission to Project: syn404")
}

func TestRunFetchFailureIsolatesRow(t *testing.T) {
	goodRepo := t.TempDir()
	writeTestFile(t, goodRepo, "data.csv", "a,b,c")

	badURL := "https://github.com/ghap/broken.git"
	goodURL := "https://github.com/ghap/data-repo.git"
	fetcher := &MockRepoFetcher{
		Paths: map[string]string{goodURL: goodRepo},
		Errs:  map[string][]error{badURL: {fmt.Errorf("Error cloning repo: %s : connection refused", badURL)}},
	}
	synapse := NewMockSynapseClient()
	migrator := NewMigrator(synapse, fetcher, nil, runAppConfig(t))

	csvPath := writeJobCSV(t, badURL+",,,", goodURL+",,,")
	runErr := migrator.Run(context.Background(), csvPath)
	assert.Nil(t, runErr)

	runErrors := migrator.stats.Errors()
	assert.Len(t, runErrors, 1)
	assert.Contains(t, runErrors[0], "Error cloning repo:")
	// the second row still went through
	assert.Equal(t, []string{"GHAP - data-repo"}, synapse.ProjectCreateRequests)
	assert.Len(t, synapse.UploadRequests, 1)
}

func TestRunFetchesEachRepoOnce(t *testing.T) {
	repo := t.TempDir()
	writeTestFile(t, repo, "data.csv", "a,b,c")
	docsDir := filepath.Join(repo, "docs")
	assert.Nil(t, os.Mkdir(docsDir, 0755))
	writeTestFile(t, docsDir, "readme.md", "# docs")

	repoURL := "https://github.com/ghap/data-repo.git"
	fetcher := &MockRepoFetcher{Paths: map[string]string{repoURL: repo}}
	synapse := NewMockSynapseClient()
	migrator := NewMigrator(synapse, fetcher, nil, runAppConfig(t))

	csvPath := writeJobCSV(t, repoURL+",,,", repoURL+",docs,,")
	runErr := migrator.Run(context.Background(), csvPath)
	assert.Nil(t, runErr)

	assert.Equal(t, []string{repoURL}, fetcher.FetchRequests)
	assert.Equal(t, []string{"GHAP - data-repo", "GHAP - data-repo - docs"}, synapse.ProjectCreateRequests)
	assert.Len(t, migrator.stats.Mappings(), 2)
	docsProjectID := synapse.childIndex[""]["GHAP - data-repo - docs"]
	assert.Contains(t, migrator.stats.Mappings(), fmt.Sprintf("%s (docs) -> GHAP - data-repo - docs (%s)", repoURL, docsProjectID))
}

func TestRunCreatesRemoteOnlyFolders(t *testing.T) {
	repo := t.TempDir()
	writeTestFile(t, repo, "data.csv", "a,b,c")

	repoURL := "https://github.com/ghap/data-repo.git"
	fetcher := &MockRepoFetcher{Paths: map[string]string{repoURL: repo}}
	synapse := NewMockSynapseClient()
	appConfig := runAppConfig(t)
	migrator := NewMigrator(synapse, fetcher, nil, appConfig)

	csvPath := writeJobCSV(t, repoURL+",,,raw/2024")
	runErr := migrator.Run(context.Background(), csvPath)
	assert.Nil(t, runErr)
	assert.Len(t, migrator.stats.Errors(), 0)

	assert.Len(t, synapse.FolderCreateRequests, 2)
	assert.Equal(t, "raw", synapse.FolderCreateRequests[0].Name)
	assert.Equal(t, "syn1", synapse.FolderCreateRequests[0].ParentID)
	assert.Equal(t, "2024", synapse.FolderCreateRequests[1].Name)
	assert.Equal(t, "syn2", synapse.FolderCreateRequests[1].ParentID)
	assert.Len(t, synapse.UploadRequests, 1)
	assert.Equal(t, "syn3", synapse.UploadRequests[0].ParentID)

	rows := ledgerRowsByLocalPath(t, appConfig.Ledger.Path)
	assert.True(t, rows["raw"].RemoteOnly)
	assert.Equal(t, "GHAP - data-repo/raw", rows["raw"].RemotePath)
	assert.True(t, rows["raw/2024"].RemoteOnly)
	assert.False(t, rows[filepath.Join(repo, "data.csv")].RemoteOnly)
}

func TestRunAppliesProjectSetupForNewProjects(t *testing.T) {
	repo := t.TempDir()
	writeTestFile(t, repo, "data.csv", "a,b,c")

	repoURL := "https://github.com/ghap/data-repo.git"
	fetcher := &MockRepoFetcher{Paths: map[string]string{repoURL: repo}}
	synapse := NewMockSynapseClient()
	appConfig := runAppConfig(t)
	appConfig.AdminTeamID = "273948"
	appConfig.StorageLocationID = 98765
	migrator := NewMigrator(synapse, fetcher, nil, appConfig)

	csvPath := writeJobCSV(t, repoURL+",,,")
	runErr := migrator.Run(context.Background(), csvPath)
	assert.Nil(t, runErr)

	assert.Equal(t, []string{"syn1"}, synapse.StorageLocationRequests)
	assert.Len(t, synapse.GrantRequests, 1)
	assert.Equal(t, "syn1", synapse.GrantRequests[0].ProjectID)
	assert.Equal(t, "273948", synapse.GrantRequests[0].TeamID)
}

func TestRunMissingCSVReturnsError(t *testing.T) {
	synapse := NewMockSynapseClient()
	migrator := NewMigrator(synapse, &MockRepoFetcher{}, nil, runAppConfig(t))

	runErr := migrator.Run(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, runErr, "Error reading job CSV:")
}

func TestReadJobCSVMissingColumn(t *testing.T) {
	csvPath := writeTestFile(t, t.TempDir(), "jobs.csv", "git_url,git_folder,synapse_project_id\nhttps://example.com/a.git,,\n")

	_, readErr := readJobCSV(csvPath)
	assert.ErrorContains(t, readErr, "Job CSV missing required column: synapse_path")
}

func TestReadJobCSVTrimsFields(t *testing.T) {
	csvPath := writeTestFile(t, t.TempDir(), "jobs.csv",
		"git_url,git_folder,synapse_project_id,synapse_path\n"+
			" https://example.com/a.git , docs , syn42 , /raw/2024/ \n")

	jobs, readErr := readJobCSV(csvPath)
	assert.Nil(t, readErr)
	assert.Len(t, jobs, 1)
	assert.Equal(t, "https://example.com/a.git", jobs[0].GitURL)
	assert.Equal(t, "docs", jobs[0].GitFolder)
	assert.Equal(t, "syn42", jobs[0].SynapseProjectID)
	assert.Equal(t, "raw/2024", jobs[0].SynapsePath)
}

func TestProjectName(t *testing.T) {
	assert.Equal(t, "GHAP - data-repo", projectName("data-repo", ""))
	assert.Equal(t, "GHAP - data-repo - a-b", projectName("data-repo", "a/b"))
}
