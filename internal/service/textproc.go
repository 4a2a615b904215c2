package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/parleyhq/parley/internal/domain"
)

// ChunkConfig controls sliding-window chunking of extracted text.
type ChunkConfig struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  1200,
		MinChars:  400,
		Overlap:   200,
		MaxChunks: 200,
	}
}

// TextProcessor processes plain-text and markdown documents. Headings drive
// the outline; chunking slides a window over each section and records rune
// offsets into the normalized full text.
type TextProcessor struct {
	cfg ChunkConfig
}

func NewTextProcessor() *TextProcessor {
	return &TextProcessor{cfg: DefaultChunkConfig()}
}

func NewTextProcessorWithConfig(cfg ChunkConfig) *TextProcessor {
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	return &TextProcessor{cfg: cfg}
}

var supportedTextMimes = map[string]bool{
	"text/plain":      true,
	"text/markdown":   true,
	"text/x-markdown": true,
}

func (p *TextProcessor) Supports(mimeType string) bool {
	return supportedTextMimes[baseMime(mimeType)]
}

func baseMime(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// Process reads the file and extracts text, outline, and chunks. A document
// whose outline cannot be determined still yields chunks; an empty document
// yields neither. Unsupported media types fail with ErrUnsupportedMimeType.
func (p *TextProcessor) Process(ctx context.Context, filePath string, mimeType string) (*ProcessedDocument, error) {
	if !p.Supports(mimeType) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMimeType, mimeType)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read document file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := normalizeText(string(data))
	if strings.TrimSpace(text) == "" {
		return &ProcessedDocument{FullText: text}, nil
	}

	markdown := strings.Contains(baseMime(mimeType), "markdown")
	outline := extractOutline(text, markdown)
	chunks := chunkSections(text, outline, p.cfg)

	return &ProcessedDocument{FullText: text, Outline: outline, Chunks: chunks}, nil
}

func normalizeText(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// extractOutline scans for headings. Markdown uses ATX and setext forms;
// plain text uses a heuristic for short title-cased lines after a blank line.
func extractOutline(text string, markdown bool) []OutlineEntry {
	lines := strings.Split(text, "\n")
	var outline []OutlineEntry

	offset := 0
	prevOffset := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if markdown {
			if level, title, ok := atxHeading(trimmed); ok {
				outline = append(outline, OutlineEntry{Title: title, Level: level, Offset: offset})
			} else if level, ok := setextLevel(trimmed); ok && i > 0 {
				prev := strings.TrimSpace(lines[i-1])
				if prev != "" && (len(outline) == 0 || outline[len(outline)-1].Offset != prevOffset) {
					outline = append(outline, OutlineEntry{Title: prev, Level: level, Offset: prevOffset})
				}
			}
		} else if trimmed != "" && (i == 0 || strings.TrimSpace(lines[i-1]) == "") && looksLikeHeading(trimmed) {
			outline = append(outline, OutlineEntry{Title: trimmed, Level: 1, Offset: offset})
		}

		prevOffset = offset
		offset += len([]rune(line)) + 1
	}

	return outline
}

func atxHeading(line string) (int, string, bool) {
	if !strings.HasPrefix(line, "#") {
		return 0, "", false
	}
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 {
		return 0, "", false
	}
	title := strings.TrimSpace(strings.TrimRight(line[level:], "#"))
	if title == "" {
		return 0, "", false
	}
	return level, title, true
}

func setextLevel(line string) (int, bool) {
	if len(line) < 2 {
		return 0, false
	}
	switch {
	case strings.Trim(line, "=") == "":
		return 1, true
	case strings.Trim(line, "-") == "":
		return 2, true
	}
	return 0, false
}

// looksLikeHeading reports whether a plain-text line reads like a section
// title: short, title-cased or numbered, and not ending in sentence
// punctuation.
func looksLikeHeading(line string) bool {
	runes := []rune(line)
	if len(runes) == 0 || len(runes) > 80 {
		return false
	}
	if !unicode.IsUpper(runes[0]) && !unicode.IsDigit(runes[0]) {
		return false
	}
	if strings.ContainsRune(".,;:!?", runes[len(runes)-1]) {
		return false
	}
	if len(strings.Fields(line)) > 12 {
		return false
	}
	return true
}

type section struct {
	title string
	start int
	end   int
}

func splitSections(runes []rune, outline []OutlineEntry) []section {
	if len(outline) == 0 {
		return []section{{start: 0, end: len(runes)}}
	}

	var sections []section
	if outline[0].Offset > 0 {
		sections = append(sections, section{start: 0, end: outline[0].Offset})
	}
	for i, h := range outline {
		end := len(runes)
		if i+1 < len(outline) {
			end = outline[i+1].Offset
		}
		sections = append(sections, section{title: h.Title, start: h.Offset, end: end})
	}
	return sections
}

func chunkSections(text string, outline []OutlineEntry, cfg ChunkConfig) []ChunkSpan {
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	runes := []rune(text)

	var spans []ChunkSpan
	for _, sec := range splitSections(runes, outline) {
		spans = appendSectionChunks(spans, runes, sec, cfg)
		if cfg.MaxChunks > 0 && len(spans) >= cfg.MaxChunks {
			spans = spans[:cfg.MaxChunks]
			break
		}
	}
	for i := range spans {
		spans[i].Position = i
	}
	return spans
}

func appendSectionChunks(spans []ChunkSpan, runes []rune, sec section, cfg ChunkConfig) []ChunkSpan {
	start := sec.start
	for start < sec.end {
		end := start + cfg.MaxChars
		if end > sec.end {
			end = sec.end
		}

		// Prefer breaking on whitespace, but never shrink below MinChars.
		if end < sec.end {
			cut := end
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			break
		}

		cs, ce := trimSpan(runes, start, end)
		if ce > cs {
			spans = append(spans, ChunkSpan{
				SectionTitle: sec.title,
				StartOffset:  cs,
				EndOffset:    ce,
				Content:      string(runes[cs:ce]),
			})
		}

		if end >= sec.end {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			nextStart = end - cfg.Overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}
	return spans
}

func trimSpan(runes []rune, start, end int) (int, int) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	return start, end
}
