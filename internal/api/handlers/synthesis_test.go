package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
)

type MockSynthesisService struct {
	mock.Mock
}

func (m *MockSynthesisService) Generate(ctx context.Context, projectID string) (*domain.AudienceSynthesis, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AudienceSynthesis), args.Error(1)
}

func (m *MockSynthesisService) GetCurrent(ctx context.Context, projectID string) (*domain.AudienceSynthesis, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AudienceSynthesis), args.Error(1)
}

func (m *MockSynthesisService) GetVersion(ctx context.Context, projectID string, version int64) (*domain.AudienceSynthesis, error) {
	args := m.Called(ctx, projectID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AudienceSynthesis), args.Error(1)
}

func (m *MockSynthesisService) ListVersions(ctx context.Context, projectID string) ([]*service.SynthesisVersionInfo, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*service.SynthesisVersionInfo), args.Error(1)
}

func newTestSynthesis() *domain.AudienceSynthesis {
	now := time.Now().UTC()
	return &domain.AudienceSynthesis{
		ID:                "synth-123",
		ProjectID:         "proj-456",
		Version:           3,
		Overview:          "Users mostly ask about setup.",
		CommonQuestions:   []domain.QuestionPattern{{Pattern: "How do I install?", Frequency: 4}},
		KnowledgeGaps:     []domain.KnowledgeGap{{Topic: "uninstall", Severity: "medium", Suggestion: "add a section"}},
		Sentiment:         domain.SentimentMixed,
		Insights:          []string{"setup friction"},
		ConversationCount: 5,
		TotalMessages:     23,
		CoveredFrom:       now.Add(-24 * time.Hour),
		CoveredTo:         now,
		CreatedAt:         now,
	}
}

func requestWithURLParam(method, url, key, value string) *http.Request {
	req := httptest.NewRequest(method, url, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestSynthesisHandler_Generate_Success(t *testing.T) {
	mockSvc := new(MockSynthesisService)
	handler := NewSynthesisHandler(mockSvc)

	mockSvc.On("Generate", mock.Anything, "proj-456").Return(newTestSynthesis(), nil)

	req := requestWithURLParam(http.MethodPost, "/projects/proj-456/synthesis", "id", "proj-456")
	w := httptest.NewRecorder()

	handler.Generate(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "synth-123", data["id"])
	assert.Equal(t, float64(3), data["version"])
	assert.Equal(t, "mixed", data["sentiment"])
	mockSvc.AssertExpectations(t)
}

func TestSynthesisHandler_Generate_InsufficientData(t *testing.T) {
	mockSvc := new(MockSynthesisService)
	handler := NewSynthesisHandler(mockSvc)

	mockSvc.On("Generate", mock.Anything, "proj-456").Return(nil, domain.ErrInsufficientData)

	req := requestWithURLParam(http.MethodPost, "/projects/proj-456/synthesis", "id", "proj-456")
	w := httptest.NewRecorder()

	handler.Generate(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not enough conversation data")
}

func TestSynthesisHandler_GetCurrent_NotFound(t *testing.T) {
	mockSvc := new(MockSynthesisService)
	handler := NewSynthesisHandler(mockSvc)

	mockSvc.On("GetCurrent", mock.Anything, "proj-456").Return(nil, domain.ErrSynthesisNotFound)

	req := requestWithURLParam(http.MethodGet, "/projects/proj-456/synthesis", "id", "proj-456")
	w := httptest.NewRecorder()

	handler.GetCurrent(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestSynthesisHandler_GetVersion(t *testing.T) {
	t.Run("valid version", func(t *testing.T) {
		mockSvc := new(MockSynthesisService)
		handler := NewSynthesisHandler(mockSvc)

		mockSvc.On("GetVersion", mock.Anything, "proj-456", int64(2)).Return(newTestSynthesis(), nil)

		req := requestWithURLParam(http.MethodGet, "/projects/proj-456/synthesis/versions/2", "id", "proj-456")
		rctx := chi.RouteContext(req.Context())
		rctx.URLParams.Add("version", "2")
		w := httptest.NewRecorder()

		handler.GetVersion(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockSvc.AssertExpectations(t)
	})

	for _, bad := range []string{"abc", "0", "-1"} {
		t.Run("rejects version "+bad, func(t *testing.T) {
			mockSvc := new(MockSynthesisService)
			handler := NewSynthesisHandler(mockSvc)

			req := requestWithURLParam(http.MethodGet, "/projects/proj-456/synthesis/versions/"+bad, "id", "proj-456")
			rctx := chi.RouteContext(req.Context())
			rctx.URLParams.Add("version", bad)
			w := httptest.NewRecorder()

			handler.GetVersion(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "invalid version")
			mockSvc.AssertNotCalled(t, "GetVersion", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSynthesisHandler_ListVersions(t *testing.T) {
	mockSvc := new(MockSynthesisService)
	handler := NewSynthesisHandler(mockSvc)

	infos := []*service.SynthesisVersionInfo{
		{ID: "s-1", Version: 1, ConversationCount: 3, CreatedAt: "2026-08-01T00:00:00Z"},
		{ID: "s-2", Version: 2, ConversationCount: 7, CreatedAt: "2026-08-10T00:00:00Z"},
	}
	mockSvc.On("ListVersions", mock.Anything, "proj-456").Return(infos, nil)

	req := requestWithURLParam(http.MethodGet, "/projects/proj-456/synthesis/versions", "id", "proj-456")
	w := httptest.NewRecorder()

	handler.ListVersions(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].([]interface{})
	require.Len(t, data, 2)
	first := data[0].(map[string]interface{})
	assert.Equal(t, float64(1), first["version"])
	assert.Equal(t, float64(3), first["conversation_count"])
	mockSvc.AssertExpectations(t)
}
