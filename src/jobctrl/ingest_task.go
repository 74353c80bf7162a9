package jobctrl

import (
	"context"
	"encoding/json"
	"fmt"

	"knowbot/src/core/knowledge"
	"knowbot/src/fsutil"
	"knowbot/src/infrastructure/job"
	"knowbot/src/infrastructure/log"
	"knowbot/src/storage/minioctrl"
)

// IngestTask processes one uploaded document: extract pages, index them as
// fragments, archive the original, and apply the scratch retention policy.
type IngestTask struct {
	ingestor     *knowledge.Ingestor
	minioService *minioctrl.MinioService
	files        fsutil.FileStore
	bucket       string
	retention    knowledge.RetentionPolicy
}

func NewIngestTask(
	ingestor *knowledge.Ingestor,
	minioService *minioctrl.MinioService,
	files fsutil.FileStore,
	bucket string,
	retention knowledge.RetentionPolicy,
) *IngestTask {
	return &IngestTask{
		ingestor:     ingestor,
		minioService: minioService,
		files:        files,
		bucket:       bucket,
		retention:    retention,
	}
}

func (task *IngestTask) HandleIngestTask(ctx context.Context, payload json.RawMessage) error {
	var ingestPayload job.IngestPayload
	if err := json.Unmarshal(payload, &ingestPayload); err != nil {
		return fmt.Errorf("failed to unmarshal ingest payload: %w", err)
	}

	pages, err := knowledge.ExtractPages(ingestPayload.Path)
	if err != nil {
		return fmt.Errorf("failed to extract pages: %w", err)
	}

	stored, err := task.ingestor.IngestPages(ctx, pages, ingestPayload.OwnerID, ingestPayload.DocumentID, ingestPayload.FileName)
	if err != nil {
		return fmt.Errorf("failed to ingest document: %w", err)
	}

	if err := task.archive(ctx, ingestPayload); err != nil {
		// The fragments are indexed; a failed archive only loses the
		// original file copy.
		log.Error(err, "failed to archive document",
			"document_id", ingestPayload.DocumentID)
	}

	if !task.retention.KeepDocuments {
		if err := task.files.RemoveAll(ingestPayload.Path); err != nil {
			log.Error(err, "failed to remove scratch document", "path", ingestPayload.Path)
		}
	}

	log.Info("ingest job finished",
		"owner_id", ingestPayload.OwnerID,
		"document_id", ingestPayload.DocumentID,
		"pages", len(pages),
		"fragments", stored)
	return nil
}

func (task *IngestTask) archive(ctx context.Context, p job.IngestPayload) error {
	if task.minioService == nil {
		return nil
	}

	if err := task.minioService.EnsureBucketExists(ctx, task.bucket); err != nil {
		return fmt.Errorf("failed to ensure document bucket exists: %w", err)
	}

	f, err := task.files.ReadFileAsStream(p.Path)
	if err != nil {
		return fmt.Errorf("failed to open scratch document: %w", err)
	}
	defer f.Close()

	return task.minioService.ArchiveDocument(ctx, task.bucket, p.OwnerID, p.DocumentID, p.FileName, f, -1)
}
