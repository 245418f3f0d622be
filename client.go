package main

import (
	"context"
	"os"
)

// BucketClient is the storage backend behind a Synapse storage location.
// Uploads stream file content into the bucket; ObjectSize reads back the
// size of what actually landed there.
type BucketClient interface {
	UploadFile(ctx context.Context, bucketName string, key string, file *os.File) error
	ObjectSize(ctx context.Context, bucketName string, key string) (int64, error)
}
