package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
	"github.com/techkwon/Qbot/pkg/storage"
)

type memoryMaterialRepo struct {
	mu    sync.Mutex
	items map[string]models.Material
}

func (m *memoryMaterialRepo) Create(ctx context.Context, material *models.Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	material.CreatedAt = time.Now().UTC()
	m.items[material.ID] = *material
	return nil
}

func (m *memoryMaterialRepo) ListByChatbot(ctx context.Context, chatbotID string) ([]models.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Material
	for _, item := range m.items {
		if item.ChatbotID == chatbotID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memoryMaterialRepo) FindByID(ctx context.Context, chatbotID, id string) (*models.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.ChatbotID != chatbotID {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (m *memoryMaterialRepo) Delete(ctx context.Context, chatbotID, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.ChatbotID != chatbotID {
		return "", sql.ErrNoRows
	}
	delete(m.items, id)
	return item.ObjectKey, nil
}

type fakeObjectStore struct {
	deleted []string
	failGet error
}

func (f *fakeObjectStore) PresignPut(ctx context.Context, key, contentType string, size int64) (*storage.PresignedRequest, error) {
	return &storage.PresignedRequest{URL: "https://bucket.local/" + key, Method: "PUT"}, nil
}

func (f *fakeObjectStore) PresignGet(ctx context.Context, key string) (*storage.PresignedRequest, error) {
	if f.failGet != nil {
		return nil, f.failGet
	}
	return &storage.PresignedRequest{URL: "https://bucket.local/" + key, Method: "GET"}, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type materialFixture struct {
	svc   *MaterialService
	repo  *memoryMaterialRepo
	store *fakeObjectStore
}

func newMaterialFixture() materialFixture {
	gateRepo := newMemoryGateRepo()
	gateRepo.addChatbot(gateChatbotID, []string{"1-1"}, models.Unlimited())
	gateRepo.addStudent("user-in", studentOneID, "1-1")
	gateRepo.addStudent("user-out", studentTwoID, "2-1")

	repo := &memoryMaterialRepo{items: map[string]models.Material{}}
	store := &fakeObjectStore{}
	svc := NewMaterialService(
		repo,
		store,
		NewAttemptService(gateRepo, nil, nil, nil, nil, nil),
		NewGateService(gateRepo, nil, nil, nil, nil),
		MaterialConfig{MaxFileSizeBytes: 1024, AllowedMIMEs: []string{"application/pdf", "image/png"}},
		nil,
		nil,
	)
	return materialFixture{svc: svc, repo: repo, store: store}
}

func TestMaterialServicePresignUpload(t *testing.T) {
	f := newMaterialFixture()

	resp, err := f.svc.PresignUpload(context.Background(), gateTeacherID, gateChatbotID, dto.PresignUploadRequest{
		Filename:  "  week 1 notes.pdf ",
		MimeType:  "Application/PDF",
		SizeBytes: 512,
	})
	require.NoError(t, err)
	assert.Equal(t, "PUT", resp.Upload.Method)
	assert.Equal(t, "application/pdf", resp.Material.MimeType)
	assert.True(t, strings.HasPrefix(resp.Material.ObjectKey, "materials/"+gateChatbotID+"/"+resp.Material.ID+"-"))
	assert.True(t, strings.HasSuffix(resp.Material.ObjectKey, "week_1_notes.pdf"))

	items, err := f.svc.List(context.Background(), gateTeacherID, gateChatbotID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMaterialServicePresignUploadRejects(t *testing.T) {
	cases := []struct {
		name string
		req  dto.PresignUploadRequest
		code string
	}{
		{"disallowed mime", dto.PresignUploadRequest{Filename: "a.exe", MimeType: "application/x-msdownload", SizeBytes: 10}, appErrors.ErrValidation.Code},
		{"too large", dto.PresignUploadRequest{Filename: "a.pdf", MimeType: "application/pdf", SizeBytes: 4096}, appErrors.ErrValidation.Code},
		{"missing filename", dto.PresignUploadRequest{MimeType: "application/pdf", SizeBytes: 10}, appErrors.ErrValidation.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newMaterialFixture()
			_, err := f.svc.PresignUpload(context.Background(), gateTeacherID, gateChatbotID, tc.req)
			assert.Equal(t, tc.code, errorCode(err))
			assert.Empty(t, f.repo.items)
		})
	}

	f := newMaterialFixture()
	_, err := f.svc.PresignUpload(context.Background(), "teacher-2", gateChatbotID, dto.PresignUploadRequest{Filename: "a.pdf", MimeType: "application/pdf", SizeBytes: 10})
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))
}

func TestMaterialServiceStudentDownloadFollowsGate(t *testing.T) {
	f := newMaterialFixture()
	resp, err := f.svc.PresignUpload(context.Background(), gateTeacherID, gateChatbotID, dto.PresignUploadRequest{Filename: "map.png", MimeType: "image/png", SizeBytes: 100})
	require.NoError(t, err)

	link, err := f.svc.PresignStudentDownload(context.Background(), "user-in", gateChatbotID, resp.Material.ID)
	require.NoError(t, err)
	assert.Equal(t, "GET", link.Download.Method)

	_, err = f.svc.PresignStudentDownload(context.Background(), "user-out", gateChatbotID, resp.Material.ID)
	assert.Equal(t, appErrors.ErrClassNotAllowed.Code, errorCode(err))

	_, err = f.svc.ListForStudent(context.Background(), "user-unknown", gateChatbotID)
	assert.Equal(t, appErrors.ErrProfileNotFound.Code, errorCode(err))

	_, err = f.svc.PresignDownload(context.Background(), gateTeacherID, gateChatbotID, "not-a-uuid")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))

	f.store.failGet = errors.New("connection refused")
	_, err = f.svc.PresignDownload(context.Background(), gateTeacherID, gateChatbotID, resp.Material.ID)
	assert.Equal(t, appErrors.ErrUpstreamFailure.Code, errorCode(err))
}

func TestMaterialServiceDelete(t *testing.T) {
	f := newMaterialFixture()
	resp, err := f.svc.PresignUpload(context.Background(), gateTeacherID, gateChatbotID, dto.PresignUploadRequest{Filename: "map.png", MimeType: "image/png", SizeBytes: 100})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), gateTeacherID, gateChatbotID, resp.Material.ID))
	assert.Equal(t, []string{resp.Material.ObjectKey}, f.store.deleted)

	err = f.svc.Delete(context.Background(), gateTeacherID, gateChatbotID, resp.Material.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))
}
