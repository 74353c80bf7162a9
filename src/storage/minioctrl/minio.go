// Package minioctrl archives uploaded documents to object storage so the
// original file survives after its fragments are indexed.
package minioctrl

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultDocumentBucket holds retained document uploads.
const DefaultDocumentBucket = "documents"

type MinioService struct {
	client *minio.Client
}

func NewMinioService(endpoint, accessKeyID, secretAccessKey string, useSSL bool) (*MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
	}, nil
}

func (s *MinioService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := s.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// documentKey names an archived upload by its owner and document id.
func documentKey(ownerID int64, documentID, fileName string) string {
	return fmt.Sprintf("%d/%s/%s", ownerID, documentID, fileName)
}

// ArchiveDocument stores the uploaded file under the owner's prefix.
func (s *MinioService) ArchiveDocument(ctx context.Context, bucketName string, ownerID int64, documentID, fileName string, data io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, bucketName, documentKey(ownerID, documentID, fileName), data, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to archive document: %w", err)
	}

	return nil
}

// FetchDocument reads an archived upload back.
func (s *MinioService) FetchDocument(ctx context.Context, bucketName string, ownerID int64, documentID, fileName string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucketName, documentKey(ownerID, documentID, fileName), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get archived document: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived document: %w", err)
	}

	return data, nil
}

// RemoveDocument deletes an archived upload, typically after the user
// confirms deleting the document's fragments.
func (s *MinioService) RemoveDocument(ctx context.Context, bucketName string, ownerID int64, documentID, fileName string) error {
	err := s.client.RemoveObject(ctx, bucketName, documentKey(ownerID, documentID, fileName), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to remove archived document: %w", err)
	}

	return nil
}

// DocumentArchive scopes the minio service to the one bucket the gateway
// reads and deletes archived uploads from.
type DocumentArchive struct {
	service *MinioService
	bucket  string
}

func NewDocumentArchive(service *MinioService, bucket string) *DocumentArchive {
	return &DocumentArchive{
		service: service,
		bucket:  bucket,
	}
}

func (a *DocumentArchive) Fetch(ctx context.Context, ownerID int64, documentID, fileName string) ([]byte, error) {
	return a.service.FetchDocument(ctx, a.bucket, ownerID, documentID, fileName)
}

func (a *DocumentArchive) Remove(ctx context.Context, ownerID int64, documentID, fileName string) error {
	return a.service.RemoveDocument(ctx, a.bucket, ownerID, documentID, fileName)
}
