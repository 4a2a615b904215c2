package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
	// DefaultAnalysisModel is the chat model used for conversation analysis
	DefaultAnalysisModel = openai.GPT4oMini

	// maxTranscriptChars bounds how much of one conversation goes into the
	// analysis prompt.
	maxTranscriptChars = 4000
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions, expected 1536")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// Client wraps the OpenAI API client
type Client struct {
	api        EmbeddingAPI
	dimensions int
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(apiKey string, model openai.EmbeddingModel) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &Client{
		api:        NewOpenAIAdapter(cfg.APIKey, cfg.EmbeddingModel),
		dimensions: dimensions,
	}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	expected := c.dimensions
	if expected <= 0 {
		expected = DefaultEmbeddingDimensions
	}
	if len(embedding) != expected {
		return nil, ErrWrongDimensions
	}

	return embedding, nil
}

// ChatAPI defines the interface for chat completion, satisfied by *openai.Client
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Analyzer turns conversation transcripts into synthesis content via a chat
// completion with a JSON response contract.
type Analyzer struct {
	api   ChatAPI
	model string
}

func NewAnalyzer(apiKey string, model string) *Analyzer {
	if model == "" {
		model = DefaultAnalysisModel
	}
	return &Analyzer{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// NewAnalyzerWithAPI creates an Analyzer with a custom chat API (for testing)
func NewAnalyzerWithAPI(api ChatAPI, model string) *Analyzer {
	if model == "" {
		model = DefaultAnalysisModel
	}
	return &Analyzer{api: api, model: model}
}

const analysisSystemPrompt = `You analyze audience conversations about a project's documentation.
Respond with a single JSON object with these keys:
"overview" (string), "common_questions" (array of {"pattern","frequency","source_documents"}),
"knowledge_gaps" (array of {"topic","severity","suggestion"}),
"doc_suggestions" (array of {"document_id","section","suggestion"}),
"sentiment" (one of "positive","neutral","negative","mixed"),
"insights" (array of strings).
Reference documents only by the ids listed in the input.`

type analysisPayload struct {
	Overview        string                      `json:"overview"`
	CommonQuestions []domain.QuestionPattern    `json:"common_questions"`
	KnowledgeGaps   []domain.KnowledgeGap       `json:"knowledge_gaps"`
	DocSuggestions  []domain.DocumentSuggestion `json:"doc_suggestions"`
	Sentiment       string                      `json:"sentiment"`
	Insights        []string                    `json:"insights"`
}

// AnalyzeConversations implements the service.ConversationAnalyzer interface.
func (a *Analyzer) AnalyzeConversations(ctx context.Context, projectID string, transcripts []service.ConversationTranscript, documents []*domain.Document) (*domain.ConversationAnalysis, error) {
	if len(transcripts) == 0 {
		return nil, errors.New("no transcripts to analyze")
	}

	resp, err := a.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildAnalysisInput(projectID, transcripts, documents)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &payload); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}

	return &domain.ConversationAnalysis{
		Overview:        payload.Overview,
		CommonQuestions: payload.CommonQuestions,
		KnowledgeGaps:   payload.KnowledgeGaps,
		DocSuggestions:  payload.DocSuggestions,
		Sentiment:       normalizeSentiment(payload.Sentiment),
		Insights:        payload.Insights,
	}, nil
}

func normalizeSentiment(s string) domain.SentimentTrend {
	switch domain.SentimentTrend(strings.ToLower(strings.TrimSpace(s))) {
	case domain.SentimentPositive:
		return domain.SentimentPositive
	case domain.SentimentNegative:
		return domain.SentimentNegative
	case domain.SentimentMixed:
		return domain.SentimentMixed
	default:
		return domain.SentimentNeutral
	}
}

func buildAnalysisInput(projectID string, transcripts []service.ConversationTranscript, documents []*domain.Document) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Project: %s\n\nDocuments:\n", projectID)
	if len(documents) == 0 {
		b.WriteString("(none)\n")
	}
	for _, d := range documents {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", d.ID, d.Filename, d.Status)
	}

	b.WriteString("\nConversations:\n")
	for i, t := range transcripts {
		title := t.Conversation.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "\n--- Conversation %d: %s ---\n", i+1, title)

		var tb strings.Builder
		for _, m := range t.Messages {
			fmt.Fprintf(&tb, "%s: %s\n", m.Role, m.Content)
		}
		transcript := tb.String()
		if len(transcript) > maxTranscriptChars {
			transcript = transcript[:maxTranscriptChars] + "\n[truncated]"
		}
		b.WriteString(transcript)
	}

	return b.String()
}
