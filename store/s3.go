package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client defines the S3 operations used by the store.
type S3Client interface {
	GetObject(ctx context.Context, params *s3v2.GetObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3v2.PutObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3v2.DeleteObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.DeleteObjectOutput, error)
}

// S3Store implements ObjectStore on a single S3 bucket. PutIfAbsent
// uses the If-None-Match conditional write, so locks held through this
// store cannot be double-acquired by racing writers.
type S3Store struct {
	client S3Client
	bucket string
}

// NewS3Store creates a store over the given bucket.
func NewS3Store(client S3Client, bucket string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
	}
}

// Get returns the object body, mapping NoSuchKey to ErrNotFound.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3v2.GetObjectInput{
		Bucket: awsv2.String(s.bucket),
		Key:    awsv2.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return body, nil
}

// Put writes the object unconditionally.
func (s *S3Store) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3v2.PutObjectInput{
		Bucket: awsv2.String(s.bucket),
		Key:    awsv2.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// PutIfAbsent writes the object with If-None-Match so S3 rejects the
// write when the key already exists.
func (s *S3Store) PutIfAbsent(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3v2.PutObjectInput{
		Bucket:      awsv2.String(s.bucket),
		Key:         awsv2.String(key),
		Body:        bytes.NewReader(body),
		IfNoneMatch: awsv2.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "PreconditionFailed", "ConditionalRequestConflict":
				return ErrPreconditionFailed
			}
		}
		return fmt.Errorf("conditional put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Delete removes the object. S3 treats deleting a missing key as
// success, matching the interface contract.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3v2.DeleteObjectInput{
		Bucket: awsv2.String(s.bucket),
		Key:    awsv2.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

var _ ObjectStore = (*S3Store)(nil)
