// Package qdrant implements vector.Index on a managed Qdrant collection.
// Embedding happens server side through Qdrant inference: points and
// queries carry raw text plus a model name, never local vectors.
package qdrant

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/efebarandurmaz/jobscout/internal/job"
	"github.com/efebarandurmaz/jobscout/internal/rerank"
	"github.com/efebarandurmaz/jobscout/internal/vector"
)

// Payload keys written next to the job metadata fields.
const (
	textField      = "description"
	namespaceField = "namespace"
)

const DefaultModel = "sentence-transformers/all-minilm-l6-v2"

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Query(ctx context.Context, in *pb.QueryPoints, opts ...grpc.CallOption) (*pb.QueryResponse, error)
}

type collectionsAPI interface {
	CollectionExists(ctx context.Context, in *pb.CollectionExistsRequest, opts ...grpc.CallOption) (*pb.CollectionExistsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

type healthAPI interface {
	HealthCheck(ctx context.Context, in *pb.HealthCheckRequest, opts ...grpc.CallOption) (*pb.HealthCheckReply, error)
}

// Reranker refines the order of search candidates.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]rerank.Result, error)
}

// Config configures the connection and collection.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Namespace  string
	Model      string // inference model used for points and queries
	Dimension  int    // vector size when the collection must be created
}

// Option customises an Index.
type Option func(*Index)

// WithReranker enables the re-ranking pass on Search.
func WithReranker(r Reranker) Option {
	return func(i *Index) { i.reranker = r }
}

// Index implements vector.Index using Qdrant.
type Index struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	health      healthAPI
	reranker    Reranker
	logger      *slog.Logger

	collection string
	namespace  string
	model      string
	dimension  int
}

// New dials Qdrant over gRPC. The connection is lazy; use Ping or
// EnsureCollection to check it.
func New(ctx context.Context, cfg Config, opts ...Option) (*Index, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection is required")
	}

	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.APIKey != "" {
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}

	idx := newIndex(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), pb.NewQdrantClient(conn), cfg, opts...)
	idx.conn = conn
	return idx, nil
}

func newIndex(points pointsAPI, collections collectionsAPI, health healthAPI, cfg Config, opts ...Option) *Index {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	idx := &Index{
		points:      points,
		collections: collections,
		health:      health,
		logger:      slog.Default().With("component", "qdrant-index", "collection", cfg.Collection),
		collection:  cfg.Collection,
		namespace:   cfg.Namespace,
		model:       cfg.Model,
		dimension:   cfg.Dimension,
	}
	for _, o := range opts {
		o(idx)
	}
	return idx
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (i *Index) Backend() vector.Backend { return vector.BackendQdrant }

// EnsureCollection creates the collection with cosine distance when it does
// not exist yet.
func (i *Index) EnsureCollection(ctx context.Context) error {
	resp, err := i.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: i.collection})
	if err != nil {
		return err
	}
	if resp.GetResult().GetExists() {
		return nil
	}
	if i.dimension <= 0 {
		return fmt.Errorf("qdrant: collection %q does not exist and no dimension is configured", i.collection)
	}

	_, err = i.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(i.dimension), Distance: pb.Distance_Cosine},
		}},
	})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	if err != nil {
		return err
	}
	i.logger.Info("created collection", "dimension", i.dimension)
	return nil
}

// Ping checks that the server answers.
func (i *Index) Ping(ctx context.Context) error {
	_, err := i.health.HealthCheck(ctx, &pb.HealthCheckRequest{})
	return err
}

// Upsert sends every document in a single call. Point ids derive from the
// namespace and job id, so re-upserting a job overwrites it.
func (i *Index) Upsert(ctx context.Context, docs []job.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(docs))
	for n, d := range docs {
		text := d.CombinedText()
		points[n] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(i.namespace, d.JobID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{
				Vector: &pb.Vector_Document{Document: &pb.Document{Text: text, Model: i.model}},
			}}},
			Payload: i.payload(d, text),
		}
	}

	wait := true
	_, err := i.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return err
	}
	i.logger.Debug("upserted documents", "count", len(docs), "namespace", i.namespace)
	return nil
}

func (i *Index) payload(d job.Document, text string) map[string]*pb.Value {
	meta := d.StoredMetadata()
	payload := make(map[string]*pb.Value, len(meta)+2)
	for k, v := range meta {
		payload[string(k)] = stringValue(v)
	}
	payload[textField] = stringValue(&text)
	payload[namespaceField] = stringValue(&i.namespace)
	return payload
}

// Search asks Qdrant for topK nearest candidates in the namespace, then
// re-ranks them when a reranker is configured. Results are ordered by
// descending relevance score.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]job.Document, error) {
	if topK <= 0 {
		topK = vector.DefaultTopK
	}

	limit := uint64(topK)
	resp, err := i.points.Query(ctx, &pb.QueryPoints{
		CollectionName: i.collection,
		Query: &pb.Query{Variant: &pb.Query_Nearest{Nearest: &pb.VectorInput{
			Variant: &pb.VectorInput_Document{Document: &pb.Document{Text: query, Model: i.model}},
		}}},
		Filter:      namespaceFilter(i.namespace),
		Limit:       &limit,
		WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}

	hits := resp.GetResult()
	docs := make([]job.Document, len(hits))
	texts := make([]string, len(hits))
	for n, pt := range hits {
		doc, text, err := documentFromPayload(pt.GetPayload())
		if err != nil {
			return nil, fmt.Errorf("qdrant point %s: %w", pt.GetId().GetUuid(), err)
		}
		docs[n] = doc.WithScore(float64(pt.GetScore()))
		texts[n] = text
	}

	if i.reranker != nil && len(docs) > 0 {
		ranked, err := i.reranker.Rerank(ctx, query, texts, topK)
		if err != nil {
			return nil, err
		}
		reordered := make([]job.Document, 0, len(ranked))
		for _, r := range ranked {
			reordered = append(reordered, docs[r.Index].WithScore(r.Score))
		}
		docs = reordered
	}

	sort.SliceStable(docs, func(a, b int) bool {
		return *docs[a].RelevanceScore > *docs[b].RelevanceScore
	})
	return docs, nil
}

func (i *Index) Close() error {
	if i.conn == nil {
		return nil
	}
	return i.conn.Close()
}

// PointID is the UUIDv5 of "namespace/jobID".
func PointID(namespace, jobID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+jobID)).String()
}

func namespaceFilter(ns string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{{
		ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key:   namespaceField,
			Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: ns}},
		}},
	}}}
}

func stringValue(s *string) *pb.Value {
	if s == nil {
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	}
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: *s}}
}

// documentFromPayload splits a point payload into the job document and its
// combined text. Unknown keys are rejected; missing ones become nil.
func documentFromPayload(payload map[string]*pb.Value) (job.Document, string, error) {
	raw := make(map[string]*string, len(payload))
	var text string
	for k, v := range payload {
		switch k {
		case textField:
			text = v.GetStringValue()
			continue
		case namespaceField:
			continue
		}
		if _, isNull := v.GetKind().(*pb.Value_NullValue); isNull {
			raw[k] = nil
			continue
		}
		s := v.GetStringValue()
		raw[k] = &s
	}

	meta, err := job.ParseMetadata(raw)
	if err != nil {
		return job.Document{}, "", err
	}
	return job.FromMetadata(meta), text, nil
}

var _ vector.Index = (*Index)(nil)
