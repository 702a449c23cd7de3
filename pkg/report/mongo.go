package report

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/winch/pkg/errors"
)

const (
	// DefaultMongoDatabase is used when no database name is configured.
	DefaultMongoDatabase = "winch"
	reportsCollection    = "reports"
	mongoConnectTimeout  = 10 * time.Second
)

// MongoStore keeps reports in a MongoDB collection, one document per session.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to uri and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return NewMongoStoreFromClient(client, database), nil
}

// NewMongoStoreFromClient wraps an existing client. Close disconnects it.
func NewMongoStoreFromClient(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(reportsCollection),
	}
}

func (s *MongoStore) Save(ctx context.Context, r *Report) error {
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": r.ID}, r, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Report, error) {
	if id == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid report id %q", id)
	}

	var r Report
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if err == nil {
		return &r, nil
	}
	if !stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("get report: %w", err)
	}

	filter := bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(id)}}
	cur, err := s.collection.Find(ctx, filter, options.Find().SetLimit(2))
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	var found []*Report
	if err := cur.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, errors.New(errors.ErrCodeReportNotFound, "no report %q", id)
	case 1:
		return found[0], nil
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "report id %q is ambiguous", id)
	}
}

func (s *MongoStore) List(ctx context.Context, limit int) ([]*Report, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	var reports []*Report
	if err := cur.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	return reports, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

var _ Store = (*MongoStore)(nil)
