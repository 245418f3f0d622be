package main

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Client struct {
	Client *s3.Client
}

func (s *S3Client) UploadFile(ctx context.Context, bucketName, key string, file *os.File) error {
	uploader := manager.NewUploader(s.Client)
	_, putErr := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   file,
	})

	return putErr
}

func (s *S3Client) ObjectSize(ctx context.Context, bucketName, key string) (int64, error) {
	head, headErr := s.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	if headErr != nil {
		return 0, headErr
	}

	return head.ContentLength, nil
}
