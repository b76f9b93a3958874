package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"market_pulse_backend/models"
)

// MongoNotificationCollection is where in-app notifications are stored
const MongoNotificationCollection = "notifications"

// MongoStore keeps notifications in MongoDB
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoStore connects to uri, verifies the connection and ensures indexes
func NewMongoStore(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	store := newMongoStore(client, client.Database(database).Collection(MongoNotificationCollection))
	_, err = store.collection.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		logger.Warn("failed to create notification index", zap.Error(err))
	}

	logger.Info("notifications stored in mongodb", zap.String("database", database))
	return store, nil
}

func newMongoStore(client *mongo.Client, collection *mongo.Collection) *MongoStore {
	return &MongoStore{client: client, collection: collection, now: time.Now}
}

func (s *MongoStore) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	_, err := s.collection.InsertOne(ctx, n)
	return err
}

func (s *MongoStore) List(ctx context.Context, ownerID string, opts ListOptions) ([]models.Notification, error) {
	filter := bson.M{"owner_id": ownerID}
	if opts.UnreadOnly {
		filter["read"] = false
	}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(listLimit(opts.Limit)))

	cursor, err := s.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	var items []models.Notification
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *MongoStore) UnreadCount(ctx context.Context, ownerID string) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{"owner_id": ownerID, "read": false})
}

func (s *MongoStore) MarkRead(ctx context.Context, ownerID, id string) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "owner_id": ownerID},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) MarkAllRead(ctx context.Context, ownerID string) (int64, error) {
	result, err := s.collection.UpdateMany(ctx,
		bson.M{"owner_id": ownerID, "read": false},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// Close disconnects from MongoDB
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
