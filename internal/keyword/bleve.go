package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/ragchat/internal/models"
)

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

type bleveDoc struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Source  string `json:"source"`
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the index mapping, remove the index directory to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer lowercases and tokenizes without stemming, so titles match word for word.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", text)
	docMapping.AddFieldMappingsAt("title", text)
	docMapping.AddFieldMappingsAt("source", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("passage", docMapping)
	im.DefaultType = "passage"
	im.DefaultMapping = docMapping
	return im
}

// Index adds passages in one batch.
func (b *BleveIndex) Index(ctx context.Context, passages []*models.Passage) error {
	batch := b.index.NewBatch()
	for _, p := range passages {
		if err := batch.Index(p.ID(), bleveDoc{Content: p.Content(), Title: p.Title(), Source: p.Source()}); err != nil {
			return fmt.Errorf("index passage %s: %w", p.ID(), err)
		}
	}
	return b.index.Batch(batch)
}

// Search runs a match (or fuzzy) query and returns up to limit results, best first.
// With opts.TitleBoost > 1 the title and content are queried separately and scores are added,
// the title score multiplied by the boost.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	var o SearchOptions
	if opts != nil {
		o = *opts
	}
	if o.TitleBoost <= 1 {
		return b.searchField(ctx, query, "", limit, o.Fuzziness, 1)
	}

	reqSize := max(limit*2, 50)
	titleHits, err := b.searchField(ctx, query, "title", reqSize, o.Fuzziness, o.TitleBoost)
	if err != nil {
		return nil, err
	}
	contentHits, err := b.searchField(ctx, query, "content", reqSize, o.Fuzziness, 1)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64)
	for _, h := range titleHits {
		scores[h.ID] += h.Score
	}
	for _, h := range contentHits {
		scores[h.ID] += h.Score
	}
	merged := make([]*KeywordResult, 0, len(scores))
	for id, s := range scores {
		merged = append(merged, &KeywordResult{ID: id, Score: s})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (b *BleveIndex) searchField(ctx context.Context, query, field string, size, fuzziness int, boost float64) ([]*KeywordResult, error) {
	req := bleve.NewSearchRequest(buildQuery(query, field, fuzziness))
	req.Size = size
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score * boost}
	}
	return out, nil
}

// buildQuery returns a match query, or a disjunction of per-term fuzzy queries when fuzziness > 0.
// An empty field searches all fields.
func buildQuery(query, field string, fuzziness int) blevequery.Query {
	terms := strings.Fields(strings.ToLower(query))
	if fuzziness <= 0 || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes passages from the index.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// DocCount returns the number of indexed passages.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
