package domain

import (
	"fmt"
	"time"
)

// SentimentTrend is the coarse audience sentiment tag attached to a synthesis.
type SentimentTrend string

const (
	SentimentPositive SentimentTrend = "positive"
	SentimentNeutral  SentimentTrend = "neutral"
	SentimentNegative SentimentTrend = "negative"
	SentimentMixed    SentimentTrend = "mixed"
)

// QuestionPattern is a recurring audience question with its observed frequency.
type QuestionPattern struct {
	Pattern         string   `json:"pattern"`
	Frequency       int      `json:"frequency"`
	SourceDocuments []string `json:"source_documents,omitempty"`
}

// KnowledgeGap describes a topic the documents fail to cover.
type KnowledgeGap struct {
	Topic      string `json:"topic"`
	Severity   string `json:"severity"`
	Suggestion string `json:"suggestion"`
}

// DocumentSuggestion is a concrete improvement proposal for one document.
type DocumentSuggestion struct {
	DocumentID string `json:"document_id"`
	Section    string `json:"section,omitempty"`
	Suggestion string `json:"suggestion"`
}

// AudienceSynthesis is an immutable, versioned rollup of a project's
// conversations. Versions are strictly increasing per project and are never
// mutated after commit; "current" means highest version.
type AudienceSynthesis struct {
	ID                string
	ProjectID         string
	Version           int64
	Overview          string
	CommonQuestions   []QuestionPattern
	KnowledgeGaps     []KnowledgeGap
	DocSuggestions    []DocumentSuggestion
	Sentiment         SentimentTrend
	Insights          []string
	ConversationCount int
	TotalMessages     int
	CoveredFrom       time.Time
	CoveredTo         time.Time
	CreatedAt         time.Time
}

// ConversationAnalysis is the analyzer output a synthesis version is built
// from. It carries no version or coverage metadata; the versioning engine
// attaches those when it commits a snapshot.
type ConversationAnalysis struct {
	Overview        string
	CommonQuestions []QuestionPattern
	KnowledgeGaps   []KnowledgeGap
	DocSuggestions  []DocumentSuggestion
	Sentiment       SentimentTrend
	Insights        []string
}

// ValidateSynthesis validates an AudienceSynthesis instance.
func ValidateSynthesis(s *AudienceSynthesis) error {
	if s == nil {
		return fmt.Errorf("synthesis cannot be nil")
	}
	if s.ID == "" {
		return fmt.Errorf("synthesis ID is required")
	}
	if s.ProjectID == "" {
		return fmt.Errorf("synthesis ProjectID is required")
	}
	if s.Version <= 0 {
		return fmt.Errorf("synthesis Version must be greater than 0")
	}
	if !isValidSentimentTrend(s.Sentiment) {
		return fmt.Errorf("synthesis Sentiment is invalid: %s", s.Sentiment)
	}
	if s.CoveredTo.Before(s.CoveredFrom) {
		return fmt.Errorf("synthesis covered range is inverted")
	}
	return nil
}

// isValidSentimentTrend checks if a SentimentTrend is valid.
func isValidSentimentTrend(s SentimentTrend) bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentMixed:
		return true
	}
	return false
}
