package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/clinical-extract/internal/align"
	"github.com/sells-group/clinical-extract/internal/chunk"
	"github.com/sells-group/clinical-extract/internal/model"
	"github.com/sells-group/clinical-extract/internal/schema"
)

const stage1Prompt = `Identify every mention of the following resource types in the clinical text below.

Resource types: %s

Clinical text:
%s

For each mention report the resource type and a citation: the shortest verbatim snippet from the text that evidences it. Report start_pos and end_pos character offsets into the text above when you are confident of them. Report nothing for types that are not mentioned.`

const stage2Prompt = `Extract %s records from the clinical excerpt below. Use only facts stated in the excerpt.

Excerpt:
%s`

const wholeDocPrompt = `Extract %s records from the clinical document below. Be thorough; use only facts stated in the document.

Document:
%s`

// windowSeparator joins context windows for the merged fallback pass.
const windowSeparator = "\n---\n"

// GuidedConfig tunes the two-stage protocol.
type GuidedConfig struct {
	ConcurrencyLimit    int
	WindowTimeout       time.Duration
	ContextWindowMargin int
	MaxItemsPerWindow   int

	// MergedFallbackTypes lists resource types prone to fragmented
	// evidence, eligible for the merged-window fallback pass.
	MergedFallbackTypes []string

	// Chunking splits the document for stage 1 when set; nil runs
	// discovery over the whole document in one pass.
	Chunking *chunk.Policy
}

func (c GuidedConfig) concurrency() int {
	if c.ConcurrencyLimit > 0 {
		return c.ConcurrencyLimit
	}
	return 4
}

func (c GuidedConfig) windowTimeout() time.Duration {
	if c.WindowTimeout > 0 {
		return c.WindowTimeout
	}
	return 45 * time.Second
}

func (c GuidedConfig) margin() int {
	if c.ContextWindowMargin > 0 {
		return c.ContextWindowMargin
	}
	return 200
}

// GuidedExtractor runs citation-guided two-stage extraction: stage 1
// discovers type-tagged citations across the document, stage 2 extracts
// typed records from a context window around each citation under bounded
// concurrency and per-window timeouts.
type GuidedExtractor struct {
	Pipeline *Pipeline
	Config   GuidedConfig
	Metrics  *Metrics
}

// located is a discovered citation with its absolute document interval,
// nil when the snippet could not be located.
type located struct {
	citation string
	interval *model.CharInterval
}

// Extract returns records grouped by resource type. Every requested type is
// present in the result, with an empty slice when nothing was found. Records
// within a type are in window completion order, not citation order. The only
// errors returned are context cancellation and deadline expiry; window
// failures degrade to empty results with metrics counters incremented.
func (g *GuidedExtractor) Extract(ctx context.Context, doc *model.Document, targets []schema.Resource) (map[string][]model.CitedRecord, error) {
	byType := make(map[string]schema.Resource, len(targets))
	allowed := make([]string, 0, len(targets))
	for _, t := range targets {
		name := t.ResourceType()
		if _, dup := byType[name]; dup {
			continue
		}
		byType[name] = t
		allowed = append(allowed, name)
	}

	citations, err := g.discover(ctx, doc, allowed)
	if err != nil {
		return nil, err
	}

	citesByType := make(map[string][]located, len(allowed))
	for _, c := range citations {
		citesByType[c.ResourceType] = append(citesByType[c.ResourceType], located{
			citation: c.Citation,
			interval: intervalOf(c),
		})
	}

	results := make(map[string][]model.CitedRecord, len(allowed))
	for _, name := range allowed {
		results[name] = []model.CitedRecord{}
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.Config.concurrency())
	var mu sync.Mutex

	for _, name := range allowed {
		target := byType[name]
		for _, cite := range citesByType[name] {
			grp.Go(func() error {
				records := g.extractWindow(gctx, doc, target, cite)
				if len(records) == 0 {
					return nil
				}
				mu.Lock()
				results[name] = append(results[name], records...)
				mu.Unlock()
				return nil
			})
		}
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, name := range allowed {
		cites := citesByType[name]
		if len(cites) == 0 || len(results[name]) > 0 {
			continue
		}
		recs := g.wholeDocumentPass(ctx, doc, byType[name], name)
		if len(recs) == 0 && len(cites) > 1 && g.mergedFallbackEligible(name) {
			recs = g.mergedWindowPass(ctx, doc, byType[name], name, cites)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[name] = append(results[name], recs...)
	}

	for name, recs := range results {
		g.Metrics.AddRecords(name, len(recs))
	}
	return results, nil
}

// discover runs stage 1, optionally chunked, merging chunk-local positions
// into absolute document offsets. Citations are ordered by discovery order.
func (g *GuidedExtractor) discover(ctx context.Context, doc *model.Document, allowed []string) ([]model.ResourceTypeCitation, error) {
	target := citationTarget{allowed: allowed}

	type piece struct {
		text   string
		offset int
	}
	pieces := []piece{{text: doc.Text}}
	if g.Config.Chunking != nil {
		chunks, err := chunk.Select(doc, *g.Config.Chunking)
		if err != nil {
			zap.L().Warn("extract: stage-1 chunking failed, using whole document",
				zap.String("document_id", doc.ID()),
				zap.Error(err),
			)
		} else {
			pieces = pieces[:0]
			for _, c := range chunks {
				pieces = append(pieces, piece{text: c.Text(), offset: c.StartIndex})
			}
		}
	}

	var citations []model.ResourceTypeCitation
	for _, pc := range pieces {
		instruction := fmt.Sprintf(stage1Prompt, strings.Join(allowed, ", "), pc.text)
		records, err := g.Pipeline.ExtractWith(ctx, target, instruction, true, 0, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zap.L().Warn("extract: stage-1 discovery failed for chunk",
				zap.String("document_id", doc.ID()),
				zap.Int("offset", pc.offset),
				zap.Error(err),
			)
			continue
		}
		for _, r := range records {
			c := citationFromRecord(r)
			if c.ResourceType == "" || c.Citation == "" {
				continue
			}
			citations = append(citations, absolutize(c, pc.text, pc.offset, doc.Text))
		}
	}
	return citations, nil
}

// extractWindow runs one stage-2 task under the per-window timeout. Failures
// and timeouts yield an empty result and never affect sibling windows.
func (g *GuidedExtractor) extractWindow(ctx context.Context, doc *model.Document, target schema.Resource, cite located) []model.CitedRecord {
	wctx, cancel := context.WithTimeout(ctx, g.Config.windowTimeout())
	defer cancel()

	window := g.contextWindow(doc, cite)
	name := target.ResourceType()
	records, err := g.Pipeline.Extract(wctx, target, fmt.Sprintf(stage2Prompt, name, window), true, g.Config.MaxItemsPerWindow)
	if err != nil {
		if IsWindowTimeout(wctx, err) {
			g.Metrics.IncWindowTimeout()
			zap.L().Warn("extract: window timed out",
				zap.String("resource_type", name),
				zap.String("citation", cite.citation),
			)
		} else {
			zap.L().Warn("extract: window failed",
				zap.String("resource_type", name),
				zap.String("citation", cite.citation),
				zap.Error(err),
			)
		}
		return nil
	}

	out := make([]model.CitedRecord, 0, len(records))
	for _, r := range records {
		out = append(out, model.CitedRecord{
			Record:   r,
			Citation: cite.citation,
			Interval: cite.interval,
		})
	}
	return out
}

// contextWindow expands a located citation by the configured margin and
// snaps outward to sentence boundaries. Unlocated citations fall back to the
// raw citation text.
func (g *GuidedExtractor) contextWindow(doc *model.Document, cite located) string {
	if cite.interval == nil || !cite.interval.Located() {
		return cite.citation
	}

	start := *cite.interval.StartPos - g.Config.margin()
	if start < 0 {
		start = 0
	}
	end := *cite.interval.EndPos + g.Config.margin()
	if end > len(doc.Text) {
		end = len(doc.Text)
	}
	return doc.Text[snapBack(doc.Text, start):snapForward(doc.Text, end)]
}

// wholeDocumentPass is the zero-yield fallback: one compact pass over the
// full document for a single type.
func (g *GuidedExtractor) wholeDocumentPass(ctx context.Context, doc *model.Document, target schema.Resource, name string) []model.CitedRecord {
	records, err := g.Pipeline.Extract(ctx, target, fmt.Sprintf(wholeDocPrompt, name, doc.Text), true, g.Config.MaxItemsPerWindow)
	if err != nil {
		zap.L().Warn("extract: whole-document fallback failed",
			zap.String("resource_type", name),
			zap.Error(err),
		)
		return nil
	}

	out := make([]model.CitedRecord, 0, len(records))
	for _, r := range records {
		out = append(out, model.CitedRecord{Record: r})
	}
	return out
}

// mergedWindowPass concatenates all windows for a type and runs one combined
// extraction. The combined pass cannot tell which discovered citation each
// record came from, so records carry no citation or interval, like the
// whole-document fallback.
func (g *GuidedExtractor) mergedWindowPass(ctx context.Context, doc *model.Document, target schema.Resource, name string, cites []located) []model.CitedRecord {
	parts := make([]string, 0, len(cites))
	for _, c := range cites {
		parts = append(parts, g.contextWindow(doc, c))
	}
	combined := strings.Join(parts, windowSeparator)

	records, err := g.Pipeline.Extract(ctx, target, fmt.Sprintf(stage2Prompt, name, combined), true, g.Config.MaxItemsPerWindow)
	if err != nil {
		zap.L().Warn("extract: merged-window fallback failed",
			zap.String("resource_type", name),
			zap.Error(err),
		)
		return nil
	}

	out := make([]model.CitedRecord, 0, len(records))
	for _, r := range records {
		out = append(out, model.CitedRecord{Record: r})
	}
	return out
}

func (g *GuidedExtractor) mergedFallbackEligible(name string) bool {
	for _, t := range g.Config.MergedFallbackTypes {
		if t == name {
			return true
		}
	}
	return false
}

// absolutize resolves a citation's document-absolute interval: a literal
// search in the chunk is authoritative; model-reported positions are used
// only when the search fails and they fall inside the document.
func absolutize(c model.ResourceTypeCitation, chunkText string, offset int, docText string) model.ResourceTypeCitation {
	if iv := align.Locate(c.Citation, chunkText, offset, true); iv != nil {
		c.StartPos = iv.StartPos
		c.EndPos = iv.EndPos
		return c
	}
	if c.StartPos != nil && c.EndPos != nil {
		s, e := *c.StartPos+offset, *c.EndPos+offset
		if s >= 0 && s < e && e <= len(docText) {
			c.StartPos, c.EndPos = &s, &e
			return c
		}
	}
	c.StartPos, c.EndPos = nil, nil
	return c
}

func intervalOf(c model.ResourceTypeCitation) *model.CharInterval {
	if c.StartPos == nil || c.EndPos == nil {
		return nil
	}
	return model.NewCharInterval(*c.StartPos, *c.EndPos)
}

// citationFromRecord reads a stage-1 record map into a citation value.
func citationFromRecord(r map[string]any) model.ResourceTypeCitation {
	c := model.ResourceTypeCitation{}
	c.ResourceType, _ = r["resource_type"].(string)
	c.Citation, _ = r["citation"].(string)
	c.StartPos = intField(r, "start_pos")
	c.EndPos = intField(r, "end_pos")
	return c
}

func intField(r map[string]any, key string) *int {
	switch v := r[key].(type) {
	case int:
		return &v
	case int64:
		n := int(v)
		return &n
	case float64:
		n := int(v)
		return &n
	}
	return nil
}

// snapBack moves i backward to just after the previous sentence boundary.
func snapBack(text string, i int) int {
	for i > 0 && !sentenceBoundary(text[i-1]) {
		i--
	}
	return i
}

// snapForward moves i forward to just past the next sentence boundary.
func snapForward(text string, i int) int {
	for i < len(text) {
		if sentenceBoundary(text[i]) {
			return i + 1
		}
		i++
	}
	return len(text)
}

func sentenceBoundary(b byte) bool {
	return b == '.' || b == '!' || b == '?' || b == '\n'
}

// citationTarget is the stage-1 discovery schema: type-tagged citations
// constrained to an allow-list.
type citationTarget struct {
	allowed []string
}

func (citationTarget) ResourceType() string { return "ResourceTypeCitation" }

func (t citationTarget) Construct(fields map[string]any) (map[string]any, error) {
	rt, _ := fields["resource_type"].(string)
	cite, _ := fields["citation"].(string)
	if rt == "" || cite == "" {
		return nil, eris.New("extract: citation requires resource_type and citation")
	}
	for _, a := range t.allowed {
		if a == rt {
			return fields, nil
		}
	}
	return nil, eris.Errorf("extract: resource type %q not in allow-list", rt)
}

func (citationTarget) ExtractableFields() []string {
	return []string{"resource_type", "citation", "start_pos", "end_pos"}
}

func (citationTarget) RequiredExtractables() []string {
	return []string{"resource_type", "citation"}
}

func (t citationTarget) LLMHints() []string {
	return []string{
		"resource_type must be one of: " + strings.Join(t.allowed, ", "),
		"citation must be copied verbatim from the text",
	}
}
