package main

import (
	"context"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

type GCSClient struct {
	Client *storage.Client
}

func (s *GCSClient) UploadFile(ctx context.Context, bucketName, key string, file *os.File) error {
	object := s.Client.Bucket(bucketName).Object(key)
	objWriter := object.NewWriter(ctx)
	if _, uploadErr := io.Copy(objWriter, file); uploadErr != nil {
		objWriter.Close()
		return uploadErr
	}
	if closeErr := objWriter.Close(); closeErr != nil {
		return closeErr
	}

	return nil
}

func (s *GCSClient) ObjectSize(ctx context.Context, bucketName, key string) (int64, error) {
	attrs, attrErr := s.Client.Bucket(bucketName).Object(key).Attrs(ctx)
	if attrErr != nil {
		return 0, attrErr
	}

	return attrs.Size, nil
}
