// Package chunk splits documents into ordered, character-addressed chunks.
// The character-window strategy is the base case every other strategy
// falls back to for size enforcement, which keeps the forward-progress and
// coverage invariants in one place.
package chunk

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/sells-group/clinical-extract/internal/model"
)

// Strategy selects a chunking algorithm.
type Strategy string

const (
	// StrategyCharacter is a fixed character window with optional overlap.
	StrategyCharacter Strategy = "character"
	// StrategyToken windows by token count, falling back to character
	// windows when the tokenizer is unavailable.
	StrategyToken Strategy = "token"
	// StrategyRecursive splits on paragraph/sentence/word boundaries.
	StrategyRecursive Strategy = "recursive"
	// StrategyMarkdown splits on markdown structure.
	StrategyMarkdown Strategy = "markdown"
)

// Policy configures a chunking pass. Deterministic for a given document.
type Policy struct {
	Strategy  Strategy
	ChunkSize int
	Overlap   int
}

const defaultChunkSize = 2000

func (p Policy) size() int {
	if p.ChunkSize > 0 {
		return p.ChunkSize
	}
	return defaultChunkSize
}

// Select splits doc into ordered TextChunks per the policy. Chunks are
// ordered by StartIndex and, with overlap, cover [0, len(text)).
func Select(doc *model.Document, p Policy) ([]model.TextChunk, error) {
	if doc == nil {
		return nil, eris.New("chunk: nil document")
	}
	if len(doc.Text) == 0 {
		return nil, nil
	}

	switch p.Strategy {
	case StrategyCharacter, "":
		return characterChunks(doc, p.size(), p.Overlap)
	case StrategyToken:
		return tokenChunks(doc, p)
	case StrategyRecursive:
		sp := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(p.size()),
			textsplitter.WithChunkOverlap(p.Overlap),
		)
		return structuredChunks(doc, p, sp.SplitText)
	case StrategyMarkdown:
		sp := textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(p.size()),
			textsplitter.WithChunkOverlap(p.Overlap),
		)
		return structuredChunks(doc, p, sp.SplitText)
	default:
		return nil, eris.Errorf("chunk: unknown strategy %q", p.Strategy)
	}
}

// characterChunks windows the text by size with overlap. The step is
// clamped to at least 1 so iteration makes strictly forward progress even
// when overlap >= size.
func characterChunks(doc *model.Document, size, overlap int) ([]model.TextChunk, error) {
	return windowRange(doc, 0, len(doc.Text), size, overlap)
}

// tokenChunks windows by token count. Tokenizer failures (unknown encoding,
// unsupported model) degrade to character windows.
func tokenChunks(doc *model.Document, p Policy) ([]model.TextChunk, error) {
	sp := textsplitter.NewTokenSplitter(
		textsplitter.WithChunkSize(p.size()),
		textsplitter.WithChunkOverlap(p.Overlap),
	)
	pieces, err := sp.SplitText(doc.Text)
	if err != nil {
		zap.L().Warn("chunk: token splitter unavailable, falling back to character windows",
			zap.Error(err),
		)
		return characterChunks(doc, p.size(), p.Overlap)
	}
	chunks, ok := locatePieces(doc, pieces)
	if !ok {
		return characterChunks(doc, p.size(), p.Overlap)
	}
	return chunks, nil
}

// structuredChunks runs a structure-aware splitter, re-locates its pieces to
// absolute character offsets, and re-applies character windowing to any
// piece that still exceeds the size bound. If the splitter rewrote the text
// so pieces cannot be located, the whole pass degrades to character windows.
func structuredChunks(doc *model.Document, p Policy, split func(string) ([]string, error)) ([]model.TextChunk, error) {
	pieces, err := split(doc.Text)
	if err != nil {
		zap.L().Warn("chunk: structured splitter failed, falling back to character windows",
			zap.String("strategy", string(p.Strategy)),
			zap.Error(err),
		)
		return characterChunks(doc, p.size(), p.Overlap)
	}

	located, ok := locatePieces(doc, pieces)
	if !ok {
		zap.L().Debug("chunk: splitter output not locatable in source, falling back to character windows",
			zap.String("strategy", string(p.Strategy)),
		)
		return characterChunks(doc, p.size(), p.Overlap)
	}

	var chunks []model.TextChunk
	for _, c := range located {
		if c.EndIndex-c.StartIndex <= p.size() {
			chunks = append(chunks, c)
			continue
		}
		sub, err := windowRange(doc, c.StartIndex, c.EndIndex, p.size(), p.Overlap)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, sub...)
	}
	return chunks, nil
}

// windowRange applies character windowing to [from,to) of the document.
func windowRange(doc *model.Document, from, to, size, overlap int) ([]model.TextChunk, error) {
	step := size - overlap
	if step < 1 {
		step = 1
	}

	var chunks []model.TextChunk
	for start := from; start < to; start += step {
		end := start + size
		if end > to {
			end = to
		}
		c, err := model.NewTextChunk(doc, start, end)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
		if end == to {
			break
		}
	}
	return chunks, nil
}

// locatePieces maps split pieces back to absolute offsets by forward
// substring search. Returns ok=false when any non-empty piece cannot be
// found verbatim from the running cursor.
func locatePieces(doc *model.Document, pieces []string) ([]model.TextChunk, bool) {
	var chunks []model.TextChunk
	cursor := 0
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		idx := strings.Index(doc.Text[cursor:], piece)
		if idx < 0 {
			// Overlapping splitters can emit pieces that start before the
			// cursor; retry from the top before giving up.
			idx = strings.Index(doc.Text, piece)
			if idx < 0 {
				return nil, false
			}
			cursor = 0
		}
		start := cursor + idx
		c, err := model.NewTextChunk(doc, start, start+len(piece))
		if err != nil {
			return nil, false
		}
		chunks = append(chunks, c)
		cursor = start + 1
	}
	return chunks, true
}
