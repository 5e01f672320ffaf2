package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchHit is one matching message.
type SearchHit struct {
	SessionID string
	Seq       int
	Role      string
	Score     float64
}

// SearchIndex is a full-text index over recorded messages.
type SearchIndex struct {
	index bleve.Index
	path  string
}

// OpenSearchIndex opens the index at path, creating it if missing and
// recreating it if it cannot be opened.
func OpenSearchIndex(path string) (*SearchIndex, error) {
	index, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
	case err != nil:
		log.Printf("⚠️  Search index unreadable (%v), recreating", err)
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove search index: %w", err)
		}
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate search index: %w", err)
		}
	}
	return &SearchIndex{index: index, path: path}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	for _, name := range []string{"session_id", "role"} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		doc.AddFieldMappingsAt(name, f)
	}

	seq := bleve.NewNumericFieldMapping()
	seq.Store = true
	doc.AddFieldMappingsAt("seq", seq)

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = false
	doc.AddFieldMappingsAt("content", content)

	indexMapping.DefaultMapping = doc
	return indexMapping
}

func docID(sessionID string, seq int) string {
	return fmt.Sprintf("%s/%d", sessionID, seq)
}

func messageDoc(m Message) map[string]any {
	return map[string]any{
		"session_id": m.SessionID,
		"role":       string(m.Role),
		"seq":        float64(m.Seq),
		"content":    m.Content,
	}
}

// IndexMessage adds or replaces one message.
func (s *SearchIndex) IndexMessage(m Message) error {
	return s.index.Index(docID(m.SessionID, m.Seq), messageDoc(m))
}

// Reindex rebuilds the entries of every session in store.
func (s *SearchIndex) Reindex(ctx context.Context, store *Store) (int, error) {
	sessions, err := store.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range sessions {
		msgs, err := store.Messages(ctx, sess.ID)
		if err != nil {
			return n, err
		}
		batch := s.index.NewBatch()
		for _, m := range msgs {
			if err := batch.Index(docID(m.SessionID, m.Seq), messageDoc(m)); err != nil {
				return n, fmt.Errorf("failed to add message %s to batch: %w", docID(m.SessionID, m.Seq), err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return n, fmt.Errorf("failed to index session %s: %w", sess.ID, err)
		}
		n += len(msgs)
	}
	return n, nil
}

// Search returns the k best matching messages. role filters by message role when set.
func (s *SearchIndex) Search(text, role string, k int) ([]SearchHit, error) {
	var q query.Query = bleve.NewMatchQuery(text)
	if role != "" {
		roleQuery := bleve.NewTermQuery(role)
		roleQuery.SetField("role")
		q = bleve.NewConjunctionQuery(q, roleQuery)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = k
	req.Fields = []string{"session_id", "role", "seq"}

	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := SearchHit{Score: h.Score}
		if v, ok := h.Fields["session_id"].(string); ok {
			hit.SessionID = v
		}
		if v, ok := h.Fields["role"].(string); ok {
			hit.Role = v
		}
		if v, ok := h.Fields["seq"].(float64); ok {
			hit.Seq = int(v)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *SearchIndex) Close() error {
	return s.index.Close()
}
