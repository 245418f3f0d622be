package main

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"
)

type AppConfig struct {
	WorkDir           string `default:"~/tmp/ghap"`
	Concurrency       int    `default:"8"`
	AdminTeamID       string
	StorageLocationID int64
	Schedule          string
	Synapse           SynapseConfig
	Storage           StorageConfig
	Ledger            LedgerConfig
	Retry             RetryConfig
	Notify            NotifyConfig
}

type SynapseConfig struct {
	Endpoint      string `default:"https://repo-prod.prod.sagebase.org/repo/v1"`
	FileEndpoint  string `default:"https://repo-prod.prod.sagebase.org/file/v1"`
	AuthEndpoint  string `default:"https://repo-prod.prod.sagebase.org/auth/v1"`
	Username      string `env:"SYNAPSE_USERNAME"`
	Password      string `env:"SYNAPSE_PASSWORD"`
	AuthToken     string `env:"SYNAPSE_AUTH_TOKEN"`
	UploadTimeout int    `default:"3600"`
}

type StorageConfig struct {
	Provider string
	Bucket   string
	BaseKey  string
	Profile  string
	Region   string
}

type LedgerConfig struct {
	Path      string `default:"processed.csv"`
	BatchSize int    `default:"5000"`
}

type RetryConfig struct {
	MaxAttempts int `default:"5"`
	MinDelay    int `default:"1"`
	MaxDelay    int `default:"5"`
}

type NotifyConfig struct {
	Topic   string
	Profile string
	Region  string
}

// ClientFromConfig builds the bucket client for the configured storage
// provider. An empty provider means uploads go through the Synapse file
// endpoint and no bucket client is needed.
func (c StorageConfig) ClientFromConfig() (BucketClient, error) {
	var bucketClient BucketClient

	switch c.Provider {
	case "":
		return nil, nil
	case "aws":
		cfg, err := config.LoadDefaultConfig(context.TODO(),
			config.WithSharedConfigProfile(c.Profile),
			config.WithRegion(c.Region))
		if err != nil {
			return bucketClient, fmt.Errorf("Error creating s3 client: %+v\n", err)
		}
		awsS3Client := s3.NewFromConfig(cfg)
		bucketClient = &S3Client{Client: awsS3Client}
	case "gcp":
		gcsClient, err := gcs.NewClient(context.TODO(), option.WithScopes(gcs.ScopeReadWrite))
		if err != nil {
			return bucketClient, fmt.Errorf("Error creating gcs client: %+v\n", err)
		}
		bucketClient = &GCSClient{Client: gcsClient}
	default:
		return bucketClient, fmt.Errorf("Unknown cloud provider: %s", c.Provider)
	}

	return bucketClient, nil
}

func (c AppConfig) ConfigStringArray() []string {
	configStrArr := make([]string, 0)
	configStrArr = append(configStrArr, fmt.Sprintf("  - Work Directory: %s", c.WorkDir))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Concurrent Uploads: %d", c.Concurrency))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Synapse Endpoint: %s", c.Synapse.Endpoint))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Processed Log: %s", c.Ledger.Path))

	if c.Storage.Provider != "" {
		configStrArr = append(configStrArr, fmt.Sprintf("  - Storage: %s (%s)", c.Storage.Bucket, c.Storage.Provider))
	}
	if c.StorageLocationID != 0 {
		configStrArr = append(configStrArr, fmt.Sprintf("  - Storage Location ID: %d", c.StorageLocationID))
	}
	if c.AdminTeamID != "" {
		configStrArr = append(configStrArr, fmt.Sprintf("  - Admin Team ID: %s", c.AdminTeamID))
	}
	if c.Notify.Topic != "" {
		configStrArr = append(configStrArr, fmt.Sprintf("  - SNSTopic: %s", c.Notify.Topic))
	}
	if c.Schedule != "" {
		configStrArr = append(configStrArr, fmt.Sprintf("  - Schedule: %s", c.Schedule))
	}

	return configStrArr
}
