// Package qdrant provides a FactIndex implementation using Qdrant.
package qdrant

import (
	"context"
	"errors"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"github.com/ersonp/lore-state/internal/infrastructure/config"
)

// Payload keys stored with each point.
const (
	keyGameID      = "game_id"
	keyCycle       = "cycle"
	keyDescription = "description"
	keyImportance  = "importance"
	keyType        = "fact_type"
	keyDomain      = "domain"
	keyLocationID  = "location_id"
)

const defaultSearchLimit = 10

// Repository implements ports.FactIndex and ports.CollectionManager using Qdrant.
type Repository struct {
	client     pb.CollectionsClient
	points     pb.PointsClient
	collection string
	conn       *grpc.ClientConn
}

// NewRepository creates a new Qdrant repository.
func NewRepository(cfg config.QdrantConfig) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return &Repository{
		client:     pb.NewCollectionsClient(conn),
		points:     pb.NewPointsClient(conn),
		collection: cfg.Collection,
		conn:       conn,
	}, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// Close closes the gRPC connection.
func (r *Repository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// EnsureCollection creates the collection and its payload indexes if the
// collection doesn't exist.
func (r *Repository) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	_, err := r.client.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collection,
	})
	if err == nil {
		return nil
	}

	_, err = r.client.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
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
		return fmt.Errorf("creating collection: %w", err)
	}

	indexes := map[string]pb.FieldType{
		keyGameID: pb.FieldType_FieldTypeKeyword,
		keyCycle:  pb.FieldType_FieldTypeInteger,
	}
	for field, fieldType := range indexes {
		_, err := r.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: r.collection,
			FieldName:      field,
			FieldType:      fieldType.Enum(),
		})
		if err != nil {
			return fmt.Errorf("indexing payload field %s: %w", field, err)
		}
	}

	return nil
}

// DeleteCollection removes the collection and all its points. A missing
// collection is not an error.
func (r *Repository) DeleteCollection(ctx context.Context) error {
	_, err := r.client.Delete(ctx, &pb.DeleteCollection{
		CollectionName: r.collection,
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return nil
}

// IndexFacts upserts one point per fact, keyed by the fact ID.
func (r *Repository) IndexFacts(ctx context.Context, facts []*entities.Fact, embeddings [][]float32) error {
	if len(facts) != len(embeddings) {
		return fmt.Errorf("indexing %d facts with %d embeddings", len(facts), len(embeddings))
	}
	if len(facts) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(facts))
	for i, fact := range facts {
		point, err := factToPoint(fact, embeddings[i])
		if err != nil {
			return err
		}
		points = append(points, point)
	}

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	return nil
}

// SearchFacts returns the facts of gameID closest to embedding.
func (r *Repository) SearchFacts(ctx context.Context, gameID string, embedding []float32, limit int) ([]ports.FactHit, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		Filter:         gameFilter(gameID),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	return scoredPointsToHits(resp.Result), nil
}

// DeleteFactsAfter removes the points of gameID with a cycle after cycle.
func (r *Repository) DeleteFactsAfter(ctx context.Context, gameID string, cycle int) error {
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: afterCycleFilter(gameID, cycle),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points after cycle %d: %w", cycle, err)
	}

	return nil
}

// Count returns the number of indexed facts.
func (r *Repository) Count(ctx context.Context) (uint64, error) {
	resp, err := r.client.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collection,
	})
	if err != nil {
		return 0, fmt.Errorf("getting collection info: %w", err)
	}

	if resp.Result.PointsCount == nil {
		return 0, nil
	}

	return *resp.Result.PointsCount, nil
}

func factToPoint(fact *entities.Fact, embedding []float32) (*pb.PointStruct, error) {
	if fact.ID == "" {
		return nil, errors.New("fact has no ID")
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("fact %s has no embedding", fact.ID)
	}

	payload := map[string]*pb.Value{
		keyGameID:      stringValue(fact.GameID),
		keyCycle:       intValue(int64(fact.Cycle)),
		keyDescription: stringValue(fact.Description),
		keyImportance:  intValue(int64(fact.Importance)),
		keyType:        stringValue(string(fact.Type)),
		keyDomain:      stringValue(string(fact.Domain)),
	}
	if fact.LocationID != "" {
		payload[keyLocationID] = stringValue(fact.LocationID)
	}

	return &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: fact.ID},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: embedding},
			},
		},
		Payload: payload,
	}, nil
}

func gameFilter(gameID string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{keywordCondition(keyGameID, gameID)},
	}
}

func afterCycleFilter(gameID string, cycle int) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			keywordCondition(keyGameID, gameID),
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key:   keyCycle,
						Range: &pb.Range{Gt: pb.PtrOf(float64(cycle))},
					},
				},
			},
		},
	}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func scoredPointsToHits(points []*pb.ScoredPoint) []ports.FactHit {
	hits := make([]ports.FactHit, 0, len(points))
	for _, point := range points {
		payload := point.Payload
		hits = append(hits, ports.FactHit{
			FactID:      point.Id.GetUuid(),
			Cycle:       int(getIntValue(payload, keyCycle)),
			Description: getStringValue(payload, keyDescription),
			Importance:  int(getIntValue(payload, keyImportance)),
			Score:       point.Score,
		})
	}
	return hits
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(n int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}}
}

// Helper functions for payload extraction.
func getStringValue(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func getIntValue(payload map[string]*pb.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

var (
	_ ports.FactIndex         = (*Repository)(nil)
	_ ports.CollectionManager = (*Repository)(nil)
)
