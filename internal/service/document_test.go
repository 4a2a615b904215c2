package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/domain"
)

func TestDocumentService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("stores content and registers the document as pending", func(t *testing.T) {
		mockDocRepo := new(MockDocumentRepository)
		mockChunkRepo := new(MockChunkRepository)
		mockProjectRepo := new(MockProjectRepository)
		mockStore := new(MockObjectStore)

		mockProjectRepo.On("GetByID", mock.Anything, "project-1").Return(&domain.Project{ID: "project-1"}, nil)
		mockStore.On("Upload", mock.Anything, mock.MatchedBy(func(key string) bool {
			return strings.HasPrefix(key, "documents/project-1/doc-id-1/") &&
				strings.HasSuffix(key, "guide.md")
		}), "text/markdown", mock.Anything).Return(nil)
		mockDocRepo.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Document) bool {
			return d.ID == "doc-id-1" &&
				d.ProjectID == "project-1" &&
				d.Filename == "guide.md" &&
				d.OriginalFilename == "guide.md" &&
				d.Status == domain.DocumentStatusPending &&
				d.ProcessingError == ""
		})).Return(nil)

		svc := NewDocumentService(mockDocRepo, mockChunkRepo, mockProjectRepo, mockStore)
		svc.uuidGen = NewMockUUIDGenerator("doc-id-1")

		doc, err := svc.Upload(ctx, UploadDocumentInput{
			ProjectID: "project-1",
			Filename:  "guide.md",
			MimeType:  "text/markdown",
			Content:   strings.NewReader("# Guide"),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.DocumentStatusPending, doc.Status)
		mockDocRepo.AssertExpectations(t)
		mockStore.AssertExpectations(t)
	})

	t.Run("sanitizes hostile filenames in the storage key", func(t *testing.T) {
		mockDocRepo := new(MockDocumentRepository)
		mockProjectRepo := new(MockProjectRepository)
		mockStore := new(MockObjectStore)

		mockProjectRepo.On("GetByID", mock.Anything, "project-1").Return(&domain.Project{ID: "project-1"}, nil)
		mockStore.On("Upload", mock.Anything, mock.MatchedBy(func(key string) bool {
			return !strings.Contains(key, "..") && strings.HasSuffix(key, "passwd")
		}), "text/plain", mock.Anything).Return(nil)
		mockDocRepo.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Document) bool {
			// The original name survives verbatim for display only.
			return d.OriginalFilename == "../../etc/passwd" && d.Filename == "passwd"
		})).Return(nil)

		svc := NewDocumentService(mockDocRepo, new(MockChunkRepository), mockProjectRepo, mockStore)

		_, err := svc.Upload(ctx, UploadDocumentInput{
			ProjectID: "project-1",
			Filename:  "../../etc/passwd",
			MimeType:  "text/plain",
			Content:   strings.NewReader("x"),
		})
		require.NoError(t, err)
		mockStore.AssertExpectations(t)
	})

	t.Run("rejects missing filename", func(t *testing.T) {
		svc := NewDocumentService(new(MockDocumentRepository), new(MockChunkRepository), new(MockProjectRepository), new(MockObjectStore))

		_, err := svc.Upload(ctx, UploadDocumentInput{ProjectID: "project-1", MimeType: "text/plain"})
		require.Error(t, err)

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
	})

	t.Run("rejects missing mime type", func(t *testing.T) {
		svc := NewDocumentService(new(MockDocumentRepository), new(MockChunkRepository), new(MockProjectRepository), new(MockObjectStore))

		_, err := svc.Upload(ctx, UploadDocumentInput{ProjectID: "project-1", Filename: "a.txt"})
		require.Error(t, err)

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
	})

	t.Run("fails when project does not exist", func(t *testing.T) {
		mockProjectRepo := new(MockProjectRepository)
		notFound := domain.NewDomainError(domain.ErrCodeNotFound, "project not found")
		mockProjectRepo.On("GetByID", mock.Anything, "missing").Return(nil, notFound)

		mockStore := new(MockObjectStore)
		svc := NewDocumentService(new(MockDocumentRepository), new(MockChunkRepository), mockProjectRepo, mockStore)

		_, err := svc.Upload(ctx, UploadDocumentInput{
			ProjectID: "missing",
			Filename:  "a.txt",
			MimeType:  "text/plain",
			Content:   strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, notFound)
		mockStore.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("removes the stored object when registration fails", func(t *testing.T) {
		mockDocRepo := new(MockDocumentRepository)
		mockProjectRepo := new(MockProjectRepository)
		mockStore := new(MockObjectStore)

		mockProjectRepo.On("GetByID", mock.Anything, "project-1").Return(&domain.Project{ID: "project-1"}, nil)
		mockStore.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		mockDocRepo.On("Create", mock.Anything, mock.Anything).Return(errors.New("insert failed"))
		mockStore.On("DeleteObject", mock.Anything, mock.Anything).Return(nil)

		svc := NewDocumentService(mockDocRepo, new(MockChunkRepository), mockProjectRepo, mockStore)

		_, err := svc.Upload(ctx, UploadDocumentInput{
			ProjectID: "project-1",
			Filename:  "a.txt",
			MimeType:  "text/plain",
			Content:   strings.NewReader("x"),
		})
		require.Error(t, err)
		mockStore.AssertCalled(t, "DeleteObject", mock.Anything, mock.Anything)
	})
}

func TestDocumentService_Reads(t *testing.T) {
	ctx := context.Background()

	t.Run("ListChunks requires an existing document", func(t *testing.T) {
		mockDocRepo := new(MockDocumentRepository)
		mockChunkRepo := new(MockChunkRepository)

		notFound := domain.NewDomainError(domain.ErrCodeNotFound, "document not found")
		mockDocRepo.On("GetByID", mock.Anything, "missing").Return(nil, notFound)

		svc := NewDocumentService(mockDocRepo, mockChunkRepo, new(MockProjectRepository), new(MockObjectStore))

		_, err := svc.ListChunks(ctx, "missing")
		assert.ErrorIs(t, err, notFound)
		mockChunkRepo.AssertNotCalled(t, "ListByDocument", mock.Anything, mock.Anything)
	})

	t.Run("ListChunks returns chunks in position order", func(t *testing.T) {
		mockDocRepo := new(MockDocumentRepository)
		mockChunkRepo := new(MockChunkRepository)

		mockDocRepo.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{ID: "doc-1"}, nil)
		chunks := []*domain.DocumentChunk{
			{ID: "c1", Position: 0},
			{ID: "c2", Position: 1},
		}
		mockChunkRepo.On("ListByDocument", mock.Anything, "doc-1").Return(chunks, nil)

		svc := NewDocumentService(mockDocRepo, mockChunkRepo, new(MockProjectRepository), new(MockObjectStore))

		got, err := svc.ListChunks(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, chunks, got)
	})

	t.Run("DownloadURL presigns the stored object", func(t *testing.T) {
		mockDocRepo := new(MockDocumentRepository)
		mockStore := new(MockObjectStore)

		mockDocRepo.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{
			ID:         "doc-1",
			StorageKey: "documents/project-1/doc-1/a.txt",
		}, nil)
		mockStore.On("GenerateDownloadURL", mock.Anything, "documents/project-1/doc-1/a.txt").
			Return("https://s3.example.com/presigned", nil)

		svc := NewDocumentService(mockDocRepo, new(MockChunkRepository), new(MockProjectRepository), mockStore)

		url, err := svc.DownloadURL(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "https://s3.example.com/presigned", url)
	})

	t.Run("DownloadURL rejects documents without stored content", func(t *testing.T) {
		mockDocRepo := new(MockDocumentRepository)
		mockDocRepo.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{ID: "doc-1"}, nil)

		svc := NewDocumentService(mockDocRepo, new(MockChunkRepository), new(MockProjectRepository), new(MockObjectStore))

		_, err := svc.DownloadURL(ctx, "doc-1")
		require.Error(t, err)

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeInvalidOperation, domainErr.Code)
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"guide.md", "guide.md"},
		{"../../etc/passwd", "passwd"},
		{"..\\..\\windows\\system32", "system32"},
		{"my file (final).txt", "my_file__final_.txt"},
		{"", "document"},
		{"..", "document"},
		{"répört.md", "r_p_rt.md"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), "input %q", tt.in)
	}
}
