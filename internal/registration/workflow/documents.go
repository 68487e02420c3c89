package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/attribute"

	"ncc/internal/blobstore"
	"ncc/internal/registration/models"
	id "ncc/pkg/domain"
	dErrors "ncc/pkg/domain-errors"
	audit "ncc/pkg/platform/audit"
	"ncc/pkg/platform/sentinel"
	"ncc/pkg/requestcontext"
)

// Upload is a document received from the applicant. Size is the declared
// size; a negative value means unknown.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// UploadResult reports a stored document. Merged is false when the file is
// stored but its reference has not reached both records yet.
type UploadResult struct {
	Kind      models.DocumentKind `json:"kind"`
	FileID    string              `json:"fileId"`
	LocalName string              `json:"localName"`
	Merged    bool                `json:"merged"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// UploadDocument validates, stores and links one document.
func (s *Service) UploadDocument(ctx context.Context, userID id.UserID, kind models.DocumentKind, upload Upload) (*UploadResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.UploadDocument")
	defer span.End()
	span.SetAttributes(attribute.String("kind", string(kind)))

	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if _, err := models.ParseDocumentKind(string(kind)); err != nil {
		return nil, err
	}
	if upload.Body == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "file is required")
	}

	content, contentType, err := s.checkUpload(kind, upload)
	if err != nil {
		s.logger.InfoContext(ctx, "document rejected",
			"reason", dErrors.MessageOf(err),
			"user_id", userID,
			"kind", kind,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	localName := filepath.Base(upload.Filename)
	fileID, err := s.Blobs.Upload(ctx, s.cfg.bucket(kind), blobstore.File{
		Name:        localName,
		ContentType: contentType,
		Size:        int64(len(content)),
		Body:        bytes.NewReader(content),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store document",
			"error", err,
			"user_id", userID,
			"kind", kind,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store document, please try again")
	}

	res := &UploadResult{Kind: kind, FileID: fileID, LocalName: localName}
	sess, _ := s.loadSession(ctx, userID)

	merged, err := s.Reconciler.MergeFileReference(ctx, userID, sess.RegistrationDocID, kind, fileID)
	res.Merged = err == nil && merged.Merged()
	if !res.Merged {
		res.Warnings = append(res.Warnings, "document saved; it will be linked to your registration on submission")
	}

	sess.RecordDocument(kind, models.SessionDocument{
		FileID:     fileID,
		LocalName:  localName,
		UploadedAt: requestcontext.Now(ctx),
	})
	if err := s.saveSession(ctx, sess); err != nil {
		res.Warnings = append(res.Warnings, "your progress could not be saved for later")
	}

	s.logAudit(ctx, audit.Event{
		UserID:         userID,
		RegistrationID: sess.RegistrationID,
		Subject:        fileID,
		Action:         string(audit.EventDocumentUploaded),
		To:             string(kind),
	})
	return res, nil
}

// checkUpload enforces the size limit before reading more than the limit,
// then sniffs the content type.
func (s *Service) checkUpload(kind models.DocumentKind, upload Upload) ([]byte, string, error) {
	limit := s.cfg.MaxUploadBytes
	if upload.Size > limit {
		s.metrics.IncrementUploadRejected("size")
		return nil, "", tooLarge(limit)
	}
	content, err := io.ReadAll(io.LimitReader(upload.Body, limit+1))
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read upload")
	}
	if int64(len(content)) > limit {
		s.metrics.IncrementUploadRejected("size")
		return nil, "", tooLarge(limit)
	}
	if len(content) == 0 {
		s.metrics.IncrementUploadRejected("empty")
		return nil, "", dErrors.New(dErrors.CodeValidation, "file is empty")
	}

	detected := mimetype.Detect(content)
	if !slices.ContainsFunc(kind.AllowedTypes(), detected.Is) {
		s.metrics.IncrementUploadRejected("type")
		return nil, "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("unsupported file type %s: %s must be %s", detected.String(), kind, kind.AllowedLabel()))
	}
	return content, detected.String(), nil
}

func tooLarge(limit int64) error {
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("file too large: maximum size is %d MB", limit>>20))
}

// DocumentPreviewURL returns a short-lived URL for the applicant's current document.
func (s *Service) DocumentPreviewURL(ctx context.Context, userID id.UserID, kind models.DocumentKind) (string, error) {
	if userID.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if _, err := models.ParseDocumentKind(string(kind)); err != nil {
		return "", err
	}
	sess, _ := s.loadSession(ctx, userID)
	profile, reg, err := s.persisted(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load persisted documents for preview",
			"error", err,
			"user_id", userID,
		)
	}
	ref := sess.Overlay(models.ResolveDocuments(profile, reg)).Get(kind)
	if !ref.Present() {
		return "", dErrors.New(dErrors.CodeNotFound, "document has not been uploaded")
	}
	url, err := s.Blobs.PreviewURL(ctx, s.cfg.bucket(kind), ref.FileID, blobstore.PreviewOptions{
		Expiry: s.cfg.PreviewExpiry,
		Inline: true,
	})
	if err != nil {
		return "", previewError(err)
	}
	return url, nil
}

func previewError(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create preview link")
}
