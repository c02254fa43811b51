package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"time"

	"github.com/rs/zerolog"

	"bermybanana/api/internal/ids"
	"bermybanana/api/internal/media/sniffer"
	"bermybanana/api/internal/models"
	"bermybanana/api/internal/repository"
	"bermybanana/api/internal/storage"
)

const maxAvatarBytes = 10 << 20 // 10 MiB

// UploadService stores user-provided avatar images and registers them as
// reference images.
type UploadService struct {
	refs  *repository.ReferenceRepository
	store *storage.ObjectStore
	log   zerolog.Logger
}

func NewUploadService(refs *repository.ReferenceRepository, store *storage.ObjectStore, log zerolog.Logger) *UploadService {
	return &UploadService{
		refs:  refs,
		store: store,
		log:   log,
	}
}

type UploadInput struct {
	UserID string
	File   multipart.File
	Header *multipart.FileHeader
}

func (s *UploadService) UploadAvatar(ctx context.Context, input UploadInput) (models.ReferenceImage, error) {
	if input.File == nil || input.Header == nil {
		return models.ReferenceImage{}, invalidField("file", "required")
	}
	if input.Header.Size > maxAvatarBytes {
		return models.ReferenceImage{}, invalidField("file", "too large")
	}

	data, err := io.ReadAll(io.LimitReader(input.File, maxAvatarBytes+1))
	if err != nil {
		return models.ReferenceImage{}, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return models.ReferenceImage{}, invalidField("file", "empty")
	}
	if len(data) > maxAvatarBytes {
		return models.ReferenceImage{}, invalidField("file", "too large")
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	result, err := sniffer.DetectHead(head)
	if err != nil {
		if errors.Is(err, sniffer.ErrUnsupportedFormat) {
			return models.ReferenceImage{}, invalidField("file", "must be a jpeg, png or webp image")
		}
		return models.ReferenceImage{}, err
	}

	declared := sniffer.MimeTypeFromHTTP(http.Header(input.Header.Header))
	if declared != "" && declared != result.MIME {
		return models.ReferenceImage{}, invalidField("file", fmt.Sprintf("content type mismatch: declared %s, actual %s", declared, result.MIME))
	}

	refID := ids.New()
	bucket := s.store.AvatarsBucket()
	objectKey := path.Join(input.UserID, fmt.Sprintf("%s.%s", refID, result.Type))

	if _, err := s.store.Put(ctx, bucket, objectKey, bytes.NewReader(data), int64(len(data)), result.MIME); err != nil {
		return models.ReferenceImage{}, err
	}

	ref := models.ReferenceImage{
		ID:        refID,
		UserID:    input.UserID,
		Bucket:    bucket,
		ObjectKey: objectKey,
		URL:       s.store.PublicURL(bucket, objectKey),
		IsAvatar:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.refs.Create(ctx, ref); err != nil {
		return models.ReferenceImage{}, fmt.Errorf("save reference: %w", err)
	}

	return ref, nil
}
