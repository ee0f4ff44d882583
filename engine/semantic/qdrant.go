package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
)

// Payload field names used in Qdrant points.
const (
	fieldText          = "text"
	fieldChunkID       = "chunk_id"
	fieldSource        = "source"
	fieldSectionNumber = "section_number"
	fieldSectionTitle  = "section_title"
)

// QdrantStore is the sole owner of all Qdrant operations.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dims        int
}

// NewQdrant creates a QdrantStore connected to Qdrant at the given gRPC
// address.
func NewQdrant(addr, collection string) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantStore) Close() error {
	return q.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if it does not
// exist. The same metric serves index build and query time.
func (q *QdrantStore) EnsureCollection(ctx context.Context, dims int) error {
	q.dims = dims

	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", q.collection, err)
	}
	return nil
}

// Upsert stores embedded chunks as Qdrant points with typed payload fields.
func (q *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := map[string]*pb.Value{
			fieldText:    {Kind: &pb.Value_StringValue{StringValue: r.Chunk.Text}},
			fieldChunkID: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.Chunk.ID)}},
			fieldSource:  {Kind: &pb.Value_StringValue{StringValue: r.Chunk.Source}},
		}
		if r.Chunk.SectionNumber != "" {
			payload[fieldSectionNumber] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.Chunk.SectionNumber}}
		}
		if r.Chunk.SectionTitle != "" {
			payload[fieldSectionTitle] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.Chunk.SectionTitle}}
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// Search performs k-NN cosine similarity search.
func (q *QdrantStore) Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := r.GetPayload()
		results[i] = SearchResult{
			ID:    r.GetId().GetUuid(),
			Score: r.GetScore(),
			Chunk: domain.Chunk{
				ID:            int(payload[fieldChunkID].GetIntegerValue()),
				Text:          payload[fieldText].GetStringValue(),
				Source:        payload[fieldSource].GetStringValue(),
				SectionNumber: payload[fieldSectionNumber].GetStringValue(),
				SectionTitle:  payload[fieldSectionTitle].GetStringValue(),
			},
		}
	}
	return results, nil
}

// Count returns the exact number of points in the collection.
func (q *QdrantStore) Count(ctx context.Context) (uint64, error) {
	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("semantic: count: %w", err)
	}
	return resp.GetResult().GetCount(), nil
}

// Reset drops and recreates the collection, discarding all points.
// EnsureCollection must have run first so the dimensionality is known.
func (q *QdrantStore) Reset(ctx context.Context) error {
	if q.dims == 0 {
		return fmt.Errorf("semantic: reset before EnsureCollection")
	}
	_, err := q.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: q.collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", q.collection, err)
	}
	return q.EnsureCollection(ctx, q.dims)
}
