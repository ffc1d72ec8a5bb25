package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type KnowledgeConfig struct {
	Dimension    int
	IVFMinChunks int
	IVFLists     int
	IVFProbe     int
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	ID       uint                   `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}

type knowledgeEntry struct {
	id       uint
	content  string
	metadata map[string]interface{}
	unit     []float32 // normalised embedding
}

// KnowledgeService stores chunks in the database and serves cosine top-k
// search from an in-memory copy. Below IVFMinChunks every chunk is scored;
// from there on an IVF index narrows the scan and results become approximate.
type KnowledgeService struct {
	db       *gorm.DB
	embedder Embedder
	cfg      KnowledgeConfig

	mu      sync.RWMutex
	loaded  bool
	entries []knowledgeEntry
	ivf     *ivfIndex
}

func NewKnowledgeService(db *gorm.DB, embedder Embedder, cfg KnowledgeConfig) *KnowledgeService {
	return &KnowledgeService{db: db, embedder: embedder, cfg: cfg}
}

func (s *KnowledgeService) Dimension() int { return s.cfg.Dimension }

// Upsert appends a chunk; there is no in-place update.
func (s *KnowledgeService) Upsert(ctx context.Context, content string, metadata map[string]interface{}, vector []float32) (*models.KnowledgeChunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, invalidInput("content is required")
	}
	if len(vector) != s.cfg.Dimension {
		return nil, dimensionMismatch(s.cfg.Dimension, len(vector))
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}
	chunk := &models.KnowledgeChunk{
		Content:   content,
		Metadata:  datatypes.JSONMap(metadata),
		Embedding: datatypes.JSON(raw),
		Dimension: len(vector),
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(chunk).Error; err != nil {
		return nil, fmt.Errorf("failed to store knowledge chunk: %w", err)
	}

	unit := make([]float32, len(vector))
	copy(unit, vector)
	normalize(unit)

	s.mu.Lock()
	s.entries = append(s.entries, knowledgeEntry{id: chunk.ID, content: content, metadata: metadata, unit: unit})
	s.maintainIndex()
	s.mu.Unlock()
	return chunk, nil
}

// UpsertText embeds content with the configured embedder and stores it.
func (s *KnowledgeService) UpsertText(ctx context.Context, content string, metadata map[string]interface{}) (*models.KnowledgeChunk, error) {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}
	return s.Upsert(ctx, content, metadata, vec)
}

// ensureLoaded reads every chunk of the configured dimension once.
func (s *KnowledgeService) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	var chunks []models.KnowledgeChunk
	if err := s.db.WithContext(ctx).Where("dimension = ?", s.cfg.Dimension).Order("id asc").Find(&chunks).Error; err != nil {
		return fmt.Errorf("failed to load knowledge chunks: %w", err)
	}
	entries := make([]knowledgeEntry, 0, len(chunks))
	for _, c := range chunks {
		var vec []float32
		if err := json.Unmarshal(c.Embedding, &vec); err != nil || len(vec) != s.cfg.Dimension {
			utils.ErrorLogger.WithFields(logrus.Fields{"chunk_id": c.ID}).Error("skipping chunk with unreadable embedding")
			continue
		}
		normalize(vec)
		entries = append(entries, knowledgeEntry{id: c.ID, content: c.Content, metadata: c.Metadata, unit: vec})
	}
	s.entries = entries
	s.ivf = nil
	s.loaded = true
	s.maintainIndex()
	utils.InfoLogger.Infof("knowledge index loaded with %d chunks", len(entries))
	return nil
}

// maintainIndex trains the IVF index once the threshold is reached and
// retrains when the index has doubled since. Callers hold s.mu.
func (s *KnowledgeService) maintainIndex() {
	n := len(s.entries)
	if s.cfg.IVFMinChunks <= 0 || n < s.cfg.IVFMinChunks {
		s.ivf = nil
		return
	}
	if s.ivf != nil && n < 2*s.ivf.trainedOn {
		s.ivf.add(n-1, s.entries[n-1].unit)
		return
	}
	vectors := make([][]float32, n)
	for i, e := range s.entries {
		vectors[i] = e.unit
	}
	s.ivf = trainIVF(vectors, s.cfg.IVFLists, s.cfg.IVFProbe)
	utils.InfoLogger.Infof("knowledge ivf index trained: %d chunks, %d lists", n, len(s.ivf.centroids))
}

// Approximate reports whether searches currently go through the IVF index.
func (s *KnowledgeService) Approximate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ivf != nil
}

// Search ranks chunks by cosine similarity to query, highest first, ties
// broken by the most recently inserted chunk. topK is clamped to the index
// size; topK <= 0 yields no results.
func (s *KnowledgeService) Search(ctx context.Context, query []float32, topK int) ([]SearchResult, error) {
	if len(query) != s.cfg.Dimension {
		return nil, dimensionMismatch(s.cfg.Dimension, len(query))
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		pos   int
		score float64
	}
	var hits []scored
	if s.ivf != nil {
		for _, pos := range s.ivf.candidates(q) {
			hits = append(hits, scored{pos: pos, score: dot(q, s.entries[pos].unit)})
		}
	}
	// probed lists too small for topK: fall back to a full scan
	if s.ivf == nil || len(hits) < topK {
		hits = make([]scored, len(s.entries))
		for i, e := range s.entries {
			hits[i] = scored{pos: i, score: dot(q, e.unit)}
		}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return s.entries[hits[a].pos].id > s.entries[hits[b].pos].id
	})
	if topK > len(hits) {
		topK = len(hits)
	}

	results := make([]SearchResult, 0, topK)
	for _, h := range hits[:topK] {
		e := s.entries[h.pos]
		results = append(results, SearchResult{ID: e.id, Content: e.content, Metadata: e.metadata, Score: h.score})
	}
	return results, nil
}

// SearchText embeds the query and searches.
func (s *KnowledgeService) SearchText(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, invalidInput("query is required")
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, vec, topK)
}

// Count -> chunks in the in-memory index
func (s *KnowledgeService) Count(ctx context.Context) (int, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
