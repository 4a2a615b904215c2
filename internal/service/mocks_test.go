package service

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/workerpool"
)

// MockDocumentRepository is a mock implementation of DocumentRepositoryInterface
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) ListByProject(ctx context.Context, projectID string) ([]*domain.Document, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) ClaimNextPending(ctx context.Context) (*domain.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) UpdateStatus(ctx context.Context, id string, from, to domain.DocumentStatus, errMsg string) error {
	args := m.Called(ctx, id, from, to, errMsg)
	return args.Error(0)
}

func (m *MockDocumentRepository) ListReprocessable(ctx context.Context, projectID string, ids []string) ([]*domain.Document, error) {
	args := m.Called(ctx, projectID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) CountByStatus(ctx context.Context, status domain.DocumentStatus) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

// MockChunkRepository is a mock implementation of ChunkRepositoryInterface
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error {
	args := m.Called(ctx, documentID, chunks)
	return args.Error(0)
}

func (m *MockChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.DocumentChunk, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DocumentChunk), args.Error(1)
}

func (m *MockChunkRepository) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	args := m.Called(ctx, documentID)
	return args.Get(0).(int64), args.Error(1)
}

// MockProjectRepository is a mock implementation of ProjectRepositoryInterface
type MockProjectRepository struct {
	mock.Mock
}

func (m *MockProjectRepository) Create(ctx context.Context, p *domain.Project) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockProjectRepository) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Project), args.Error(1)
}

func (m *MockProjectRepository) List(ctx context.Context) ([]*domain.Project, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Project), args.Error(1)
}

// MockConversationRepository is a mock implementation of ConversationRepositoryInterface
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockConversationRepository) ListByProjectSince(ctx context.Context, projectID string, since time.Time) ([]*domain.Conversation, error) {
	args := m.Called(ctx, projectID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

// MockSynthesisRepository is a mock implementation of SynthesisRepositoryInterface
type MockSynthesisRepository struct {
	mock.Mock
}

func (m *MockSynthesisRepository) InsertNextVersion(ctx context.Context, s *domain.AudienceSynthesis) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSynthesisRepository) GetCurrent(ctx context.Context, projectID string) (*domain.AudienceSynthesis, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AudienceSynthesis), args.Error(1)
}

func (m *MockSynthesisRepository) GetByVersion(ctx context.Context, projectID string, version int64) (*domain.AudienceSynthesis, error) {
	args := m.Called(ctx, projectID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AudienceSynthesis), args.Error(1)
}

func (m *MockSynthesisRepository) ListVersions(ctx context.Context, projectID string) ([]*SynthesisVersionInfo, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*SynthesisVersionInfo), args.Error(1)
}

// MockAnalyzer is a mock implementation of ConversationAnalyzer
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) AnalyzeConversations(ctx context.Context, projectID string, transcripts []ConversationTranscript, documents []*domain.Document) (*domain.ConversationAnalysis, error) {
	args := m.Called(ctx, projectID, transcripts, documents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConversationAnalysis), args.Error(1)
}

// MockObjectStore is a mock implementation of ObjectStore
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Upload(ctx context.Context, key string, contentType string, body io.Reader) error {
	args := m.Called(ctx, key, contentType, body)
	return args.Error(0)
}

func (m *MockObjectStore) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) DeleteObject(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockEmbeddingChunkRepository is a mock implementation of EmbeddingChunkRepository
type MockEmbeddingChunkRepository struct {
	mock.Mock
}

func (m *MockEmbeddingChunkRepository) ListUnembedded(ctx context.Context, limit int) ([]*domain.DocumentChunk, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DocumentChunk), args.Error(1)
}

func (m *MockEmbeddingChunkRepository) UpdateEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	args := m.Called(ctx, chunkID, embedding)
	return args.Error(0)
}

// MockSearchChunkRepository is a mock implementation of SearchChunkRepository
type MockSearchChunkRepository struct {
	mock.Mock
}

func (m *MockSearchChunkRepository) SearchByEmbedding(ctx context.Context, projectID string, embedding []float32, limit int) ([]*ChunkSearchResult, error) {
	args := m.Called(ctx, projectID, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ChunkSearchResult), args.Error(1)
}

// MockUUIDGenerator returns a fixed sequence of ids.
type MockUUIDGenerator struct {
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		uuid := m.uuids[m.callCount]
		m.callCount++
		return uuid
	}
	return "default-uuid"
}

// mockTxRunner runs the transaction function against the given mocks with no
// real transaction semantics. A non-nil err short-circuits the commit.
type mockTxRunner struct {
	docs   DocumentRepositoryInterface
	chunks ChunkRepositoryInterface
	err    error
}

func (r *mockTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	if err := fn(mockTxRepos{docs: r.docs, chunks: r.chunks}); err != nil {
		return err
	}
	return r.err
}

type mockTxRepos struct {
	docs   DocumentRepositoryInterface
	chunks ChunkRepositoryInterface
}

func (r mockTxRepos) Documents() DocumentRepositoryInterface { return r.docs }
func (r mockTxRepos) Chunks() ChunkRepositoryInterface       { return r.chunks }

// stubFetcher hands out a fixed local path.
type stubFetcher struct {
	path    string
	err     error
	cleaned bool
}

func (f *stubFetcher) FetchToFile(ctx context.Context, key string) (string, func(), error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return f.path, func() { f.cleaned = true }, nil
}

// stubExecutor runs tasks inline and reports a fixed idle count.
type stubExecutor struct {
	idle int
	err  error
}

func (e *stubExecutor) Execute(ctx context.Context, task workerpool.Task, timeout time.Duration) (any, error) {
	if e.err != nil {
		return nil, e.err
	}
	return task(ctx)
}

func (e *stubExecutor) Stats() workerpool.Stats {
	return workerpool.Stats{Total: e.idle, Busy: 0, Idle: e.idle}
}

// stubProcessor returns a canned processing result.
type stubProcessor struct {
	result *ProcessedDocument
	err    error
}

func (p *stubProcessor) Process(ctx context.Context, filePath string, mimeType string) (*ProcessedDocument, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func (p *stubProcessor) Supports(mimeType string) bool { return true }
