package main

import (
	"testing"

	"github.com/jinzhu/configor"
	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	configPath := writeTestFile(t, t.TempDir(), "config.yml", "workdir: /tmp/ghap-test\n")

	var appConfig AppConfig
	loadErr := configor.Load(&appConfig, configPath)
	assert.Nil(t, loadErr)

	assert.Equal(t, "/tmp/ghap-test", appConfig.WorkDir)
	assert.Equal(t, 8, appConfig.Concurrency)
	assert.Equal(t, "https://repo-prod.prod.sagebase.org/repo/v1", appConfig.Synapse.Endpoint)
	assert.Equal(t, "https://repo-prod.prod.sagebase.org/file/v1", appConfig.Synapse.FileEndpoint)
	assert.Equal(t, "https://repo-prod.prod.sagebase.org/auth/v1", appConfig.Synapse.AuthEndpoint)
	assert.Equal(t, 3600, appConfig.Synapse.UploadTimeout)
	assert.Equal(t, "processed.csv", appConfig.Ledger.Path)
	assert.Equal(t, 5000, appConfig.Ledger.BatchSize)
	assert.Equal(t, 5, appConfig.Retry.MaxAttempts)
	assert.Equal(t, 1, appConfig.Retry.MinDelay)
	assert.Equal(t, 5, appConfig.Retry.MaxDelay)
}

func TestConfigOverrides(t *testing.T) {
	configPath := writeTestFile(t, t.TempDir(), "config.yml",
		"workdir: /data/checkouts\n"+
			"concurrency: 3\n"+
			"storagelocationid: 98765\n"+
			"synapse:\n"+
			"  username: migrator\n"+
			"  uploadtimeout: 120\n"+
			"storage:\n"+
			"  provider: aws\n"+
			"  bucket: ghap-archive\n"+
			"  region: us-east-1\n"+
			"ledger:\n"+
			"  path: /data/processed.csv\n"+
			"  batchsize: 250\n")

	var appConfig AppConfig
	loadErr := configor.Load(&appConfig, configPath)
	assert.Nil(t, loadErr)

	assert.Equal(t, "/data/checkouts", appConfig.WorkDir)
	assert.Equal(t, 3, appConfig.Concurrency)
	assert.Equal(t, int64(98765), appConfig.StorageLocationID)
	assert.Equal(t, "migrator", appConfig.Synapse.Username)
	assert.Equal(t, 120, appConfig.Synapse.UploadTimeout)
	assert.Equal(t, "aws", appConfig.Storage.Provider)
	assert.Equal(t, "ghap-archive", appConfig.Storage.Bucket)
	assert.Equal(t, "/data/processed.csv", appConfig.Ledger.Path)
	assert.Equal(t, 250, appConfig.Ledger.BatchSize)
}

func TestConfigReadsTokenFromEnv(t *testing.T) {
	t.Setenv("SYNAPSE_AUTH_TOKEN", "token-from-env")
	configPath := writeTestFile(t, t.TempDir(), "config.yml", "workdir: /tmp/ghap-test\n")

	var appConfig AppConfig
	loadErr := configor.Load(&appConfig, configPath)
	assert.Nil(t, loadErr)
	assert.Equal(t, "token-from-env", appConfig.Synapse.AuthToken)
}

func TestClientFromConfigWithoutProvider(t *testing.T) {
	bucketClient, clientErr := StorageConfig{}.ClientFromConfig()
	assert.Nil(t, clientErr)
	assert.Nil(t, bucketClient)
}

func TestClientFromConfigUnknownProvider(t *testing.T) {
	_, clientErr := StorageConfig{Provider: "azure"}.ClientFromConfig()
	assert.ErrorContains(t, clientErr, "Unknown cloud provider: azure")
}

func TestConfigStringArray(t *testing.T) {
	appConfig := AppConfig{
		WorkDir:           "/data/checkouts",
		Concurrency:       4,
		AdminTeamID:       "273948",
		StorageLocationID: 98765,
		Schedule:          "0 2 * * *",
		Synapse:           SynapseConfig{Endpoint: "https://repo-prod.prod.sagebase.org/repo/v1"},
		Storage:           StorageConfig{Provider: "aws", Bucket: "ghap-archive"},
		Ledger:            LedgerConfig{Path: "/data/processed.csv"},
		Notify:            NotifyConfig{Topic: "arn:aws:sns:us-east-1:1234:migrations"},
	}

	lines := appConfig.ConfigStringArray()
	assert.Contains(t, lines, "  - Work Directory: /data/checkouts")
	assert.Contains(t, lines, "  - Concurrent Uploads: 4")
	assert.Contains(t, lines, "  - Storage: ghap-archive (aws)")
	assert.Contains(t, lines, "  - Storage Location ID: 98765")
	assert.Contains(t, lines, "  - Admin Team ID: 273948")
	assert.Contains(t, lines, "  - SNSTopic: arn:aws:sns:us-east-1:1234:migrations")
	assert.Contains(t, lines, "  - Schedule: 0 2 * * *")
}

func TestConfigStringArrayMinimal(t *testing.T) {
	appConfig := AppConfig{WorkDir: "/tmp/ghap", Concurrency: 8}
	assert.Len(t, appConfig.ConfigStringArray(), 4)
}
