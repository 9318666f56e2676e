package services

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorPoint is one stored vector with its payload.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// VectorSearchResult is one similarity hit.
type VectorSearchResult struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// VectorStore abstracts the similarity index so the memory service can be
// tested without a running Qdrant.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, vectorSize uint64) error
	Upsert(ctx context.Context, collection string, points []VectorPoint) error
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32, filter map[string]string) ([]VectorSearchResult, error)
	SetPayload(ctx context.Context, collection, pointID string, payload map[string]any) error
}

// QdrantStore is the production VectorStore over the Qdrant gRPC API.
type QdrantStore struct {
	points      pb.PointsClient
	collections pb.CollectionsClient
}

func NewQdrantStore(addr string) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return &QdrantStore{
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// EnsureCollection creates the collection if it does not already exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, vectorSize uint64) error {
	resp, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if resp.GetResult().GetExists() {
		return nil
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []VectorPoint) error {
	qPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		qPoints[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: toQdrantPayload(p.Payload),
		}
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         qPoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32, filter map[string]string) ([]VectorSearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		ScoreThreshold: &scoreThreshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filter) > 0 {
		var must []*pb.Condition
		for k, v := range filter {
			must = append(must, &pb.Condition{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: k,
						Match: &pb.Match{
							MatchValue: &pb.Match_Keyword{Keyword: v},
						},
					},
				},
			})
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]VectorSearchResult, len(resp.Result))
	for i, r := range resp.Result {
		id := r.Id.GetUuid()
		if id == "" {
			id = fmt.Sprintf("%d", r.Id.GetNum())
		}
		results[i] = VectorSearchResult{
			ID:      id,
			Score:   r.Score,
			Payload: fromQdrantPayload(r.Payload),
		}
	}
	return results, nil
}

func (s *QdrantStore) SetPayload(ctx context.Context, collection, pointID string, payload map[string]any) error {
	_, err := s.points.SetPayload(ctx, &pb.SetPayloadPoints{
		CollectionName: collection,
		Payload:        toQdrantPayload(payload),
		PointsSelector: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set payload: %w", err)
	}
	return nil
}

func toQdrantPayload(payload map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
		case int:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
		case float64:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
		case bool:
			out[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
		case []string:
			items := make([]*pb.Value, len(val))
			for i, s := range val {
				items[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
			}
			out[k] = &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: items}}}
		}
	}
	return out
}

func fromQdrantPayload(payload map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *pb.Value_BoolValue:
			out[k] = kind.BoolValue
		case *pb.Value_ListValue:
			var items []string
			for _, item := range kind.ListValue.GetValues() {
				if s, ok := item.GetKind().(*pb.Value_StringValue); ok {
					items = append(items, s.StringValue)
				}
			}
			out[k] = items
		}
	}
	return out
}
