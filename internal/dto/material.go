package dto

import (
	"github.com/techkwon/Qbot/internal/models"
	"github.com/techkwon/Qbot/pkg/storage"
)

// PresignUploadRequest describes a file the browser is about to upload.
type PresignUploadRequest struct {
	Filename  string `json:"filename" validate:"required,max=255"`
	MimeType  string `json:"mime_type" validate:"required"`
	SizeBytes int64  `json:"size_bytes" validate:"required,gt=0"`
}

// PresignUploadResponse returns the stored material and where to PUT the bytes.
type PresignUploadResponse struct {
	Material models.Material          `json:"material"`
	Upload   storage.PresignedRequest `json:"upload"`
}

// MaterialDownloadResponse returns a time-limited download URL.
type MaterialDownloadResponse struct {
	Material models.Material          `json:"material"`
	Download storage.PresignedRequest `json:"download"`
}
