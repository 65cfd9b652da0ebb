package docindex

import (
	"context"
	"fmt"
	"log"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const milvusCollection = "doc_sections"

// MilvusIndex stores documentation sections in a Milvus collection with
// an HNSW index over cosine similarity.
type MilvusIndex struct {
	mc       client.Client
	embedder Embedder
}

func NewMilvusIndex(ctx context.Context, addr string, embedder Embedder) (*MilvusIndex, error) {
	mc, err := client.NewClient(ctx, client.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("connecting to milvus: %w", err)
	}
	idx := &MilvusIndex{mc: mc, embedder: embedder}
	if err := idx.ensureCollection(ctx); err != nil {
		mc.Close()
		return nil, err
	}
	return idx, nil
}

func (m *MilvusIndex) ensureCollection(ctx context.Context) error {
	has, err := m.mc.HasCollection(ctx, milvusCollection)
	if err != nil {
		return fmt.Errorf("checking collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema().
			WithName(milvusCollection).
			WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName("session_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
			WithField(entity.NewField().WithName("start").WithDataType(entity.FieldTypeDouble)).
			WithField(entity.NewField().WithName("end").WithDataType(entity.FieldTypeDouble)).
			WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192)).
			WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(m.embedder.Dim())))
		if err := m.mc.CreateCollection(ctx, schema, 1); err != nil {
			return fmt.Errorf("creating collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("building index spec: %w", err)
	}
	if err := m.mc.CreateIndex(ctx, milvusCollection, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}
	if err := m.mc.LoadCollection(ctx, milvusCollection, false); err != nil {
		return fmt.Errorf("loading collection: %w", err)
	}
	return nil
}

func (m *MilvusIndex) Close() {
	m.mc.Close()
}

func (m *MilvusIndex) Upsert(ctx context.Context, sessionID string, entries []Entry) (int, error) {
	var sessionIDs []string
	var starts, ends []float64
	var texts []string
	var vectors [][]float32
	for _, e := range entries {
		embedding, err := m.embedder.Embed(ctx, e.Text)
		if err != nil {
			log.Printf("docindex: embedding section at %.0fs failed, skipping: %v", e.Start, err)
			continue
		}
		sessionIDs = append(sessionIDs, sessionID)
		starts = append(starts, e.Start)
		ends = append(ends, e.End)
		texts = append(texts, e.Text)
		vectors = append(vectors, embedding)
	}
	if len(vectors) == 0 {
		return 0, nil
	}
	_, err := m.mc.Insert(ctx, milvusCollection, "",
		entity.NewColumnVarChar("session_id", sessionIDs),
		entity.NewColumnDouble("start", starts),
		entity.NewColumnDouble("end", ends),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", m.embedder.Dim(), vectors),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting sections: %w", err)
	}
	return len(vectors), nil
}

func (m *MilvusIndex) Search(ctx context.Context, sessionID, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	sp, err := entity.NewIndexHNSWSearchParam(74)
	if err != nil {
		return nil, fmt.Errorf("building search params: %w", err)
	}
	filter := fmt.Sprintf(`session_id == "%s"`, sessionID)
	results, err := m.mc.Search(ctx, milvusCollection, nil, filter,
		[]string{"start", "end", "text"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("searching sections: %w", err)
	}

	var hits []Hit
	for _, res := range results {
		cols := map[string]entity.Column{}
		for _, c := range res.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < res.ResultCount; i++ {
			var h Hit
			if c, ok := cols["start"].(*entity.ColumnDouble); ok && i < len(c.Data()) {
				h.Start = c.Data()[i]
			}
			if c, ok := cols["end"].(*entity.ColumnDouble); ok && i < len(c.Data()) {
				h.End = c.Data()[i]
			}
			if c, ok := cols["text"].(*entity.ColumnVarChar); ok && i < len(c.Data()) {
				h.Text = c.Data()[i]
			}
			if i < len(res.Scores) {
				h.Score = float64(res.Scores[i])
			}
			hits = append(hits, h)
		}
	}
	return hits, nil
}
