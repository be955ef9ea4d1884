package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
	"github.com/techkwon/Qbot/pkg/storage"
)

type materialRepository interface {
	Create(ctx context.Context, m *models.Material) error
	ListByChatbot(ctx context.Context, chatbotID string) ([]models.Material, error)
	FindByID(ctx context.Context, chatbotID, id string) (*models.Material, error)
	Delete(ctx context.Context, chatbotID, id string) (string, error)
}

type objectStore interface {
	PresignPut(ctx context.Context, key, contentType string, size int64) (*storage.PresignedRequest, error)
	PresignGet(ctx context.Context, key string) (*storage.PresignedRequest, error)
	Delete(ctx context.Context, key string) error
}

type chatbotAccess interface {
	CheckAccess(ctx context.Context, userID, chatbotID string) error
}

// MaterialConfig bounds what teachers may upload.
type MaterialConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// MaterialService manages teaching files attached to chatbots.
type MaterialService struct {
	repo      materialRepository
	store     objectStore
	ownership chatbotOwnership
	access    chatbotAccess
	validator *validator.Validate
	logger    *zap.Logger
	maxSize   int64
	allowed   map[string]struct{}
}

// NewMaterialService constructs a MaterialService.
func NewMaterialService(repo materialRepository, store objectStore, ownership chatbotOwnership, access chatbotAccess, cfg MaterialConfig, validate *validator.Validate, logger *zap.Logger) *MaterialService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mime := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(mime))] = struct{}{}
	}
	return &MaterialService{
		repo:      repo,
		store:     store,
		ownership: ownership,
		access:    access,
		validator: validate,
		logger:    logger,
		maxSize:   cfg.MaxFileSizeBytes,
		allowed:   allowed,
	}
}

// PresignUpload registers a material and returns the URL the browser should PUT the file to.
func (s *MaterialService) PresignUpload(ctx context.Context, teacherID, chatbotID string, req dto.PresignUploadRequest) (*dto.PresignUploadResponse, error) {
	req.Filename = strings.TrimSpace(req.Filename)
	req.MimeType = strings.ToLower(strings.TrimSpace(req.MimeType))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload payload")
	}
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[req.MimeType]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "file type is not allowed")
		}
	}
	if s.maxSize > 0 && req.SizeBytes > s.maxSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds maximum size")
	}

	config, err := s.ownership.AssertOwnsChatbot(ctx, teacherID, chatbotID)
	if err != nil {
		return nil, err
	}

	material := &models.Material{
		ID:        uuid.NewString(),
		ChatbotID: config.ID,
		Filename:  req.Filename,
		MimeType:  req.MimeType,
		SizeBytes: req.SizeBytes,
	}
	material.ObjectKey = storage.ObjectKey("materials", config.ID, material.ID, req.Filename)

	upload, err := s.store.PresignPut(ctx, material.ObjectKey, material.MimeType, material.SizeBytes)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to presign upload")
	}
	if err := s.repo.Create(ctx, material); err != nil {
		return nil, storeError(err, "failed to save material")
	}

	s.logger.Info("material registered", zap.String("chatbot_id", config.ID), zap.String("material_id", material.ID), zap.Int64("size_bytes", material.SizeBytes))
	return &dto.PresignUploadResponse{Material: *material, Upload: *upload}, nil
}

// List returns the materials of an owned chatbot.
func (s *MaterialService) List(ctx context.Context, teacherID, chatbotID string) ([]models.Material, error) {
	config, err := s.ownership.AssertOwnsChatbot(ctx, teacherID, chatbotID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListByChatbot(ctx, config.ID)
	if err != nil {
		return nil, storeError(err, "failed to list materials")
	}
	return items, nil
}

// ListForStudent returns the materials of a chatbot the student may open.
func (s *MaterialService) ListForStudent(ctx context.Context, userID, chatbotID string) ([]models.Material, error) {
	if err := s.access.CheckAccess(ctx, userID, chatbotID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByChatbot(ctx, chatbotID)
	if err != nil {
		return nil, storeError(err, "failed to list materials")
	}
	return items, nil
}

// PresignDownload returns a download URL for the chatbot owner.
func (s *MaterialService) PresignDownload(ctx context.Context, teacherID, chatbotID, materialID string) (*dto.MaterialDownloadResponse, error) {
	if _, err := s.ownership.AssertOwnsChatbot(ctx, teacherID, chatbotID); err != nil {
		return nil, err
	}
	return s.download(ctx, chatbotID, materialID)
}

// PresignStudentDownload returns a download URL when the gate lets the student open the chatbot.
func (s *MaterialService) PresignStudentDownload(ctx context.Context, userID, chatbotID, materialID string) (*dto.MaterialDownloadResponse, error) {
	if err := s.access.CheckAccess(ctx, userID, chatbotID); err != nil {
		return nil, err
	}
	return s.download(ctx, chatbotID, materialID)
}

// Delete removes the material row and then its blob. A failed blob delete is logged only.
func (s *MaterialService) Delete(ctx context.Context, teacherID, chatbotID, materialID string) error {
	if _, err := s.ownership.AssertOwnsChatbot(ctx, teacherID, chatbotID); err != nil {
		return err
	}
	if !validUUID(materialID) {
		return appErrors.Clone(appErrors.ErrNotFound, "material not found")
	}
	key, err := s.repo.Delete(ctx, chatbotID, materialID)
	if err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return storeError(err, "failed to delete material")
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete material object", zap.String("object_key", key), zap.Error(err))
	}
	return nil
}

func (s *MaterialService) download(ctx context.Context, chatbotID, materialID string) (*dto.MaterialDownloadResponse, error) {
	if !validUUID(materialID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
	}
	material, err := s.repo.FindByID(ctx, chatbotID, materialID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, storeError(err, "failed to load material")
	}
	link, err := s.store.PresignGet(ctx, material.ObjectKey)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to presign download")
	}
	return &dto.MaterialDownloadResponse{Material: *material, Download: *link}, nil
}
