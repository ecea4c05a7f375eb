package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"podmill/internal/logging"
	"podmill/internal/services"
)

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "persistence", "connect", "MongoDB URI is not configured", nil)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("docstore: connect: %w", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	return client, nil
}

// MongoStore persists documents in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
	now        func() time.Time
}

// MongoOption adjusts a MongoStore.
type MongoOption func(*MongoStore)

// WithMongoNamespace overrides the default database and collection names.
func WithMongoNamespace(database, collection string) MongoOption {
	return func(s *MongoStore) {
		s.collection = s.client.Database(database).Collection(collection)
	}
}

// WithMongoClock overrides the timestamp source.
func WithMongoClock(now func() time.Time) MongoOption {
	return func(s *MongoStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMongo builds a document store over the podmill.podcasts collection.
func NewMongo(client *mongo.Client, logger *slog.Logger, opts ...MongoOption) (*MongoStore, error) {
	if client == nil {
		return nil, errors.New("docstore: mongo client required")
	}
	store := &MongoStore{
		client:     client,
		collection: client.Database(DefaultDatabase).Collection(DefaultCollection),
		logger:     logging.NewComponentLogger(logger, "docstore"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	if store.logger == nil {
		store.logger = logging.NewNop()
	}
	return store, nil
}

// Save upserts the document and returns its ID, assigning one when missing.
func (s *MongoStore) Save(ctx context.Context, doc Document) (string, error) {
	if err := validateDocument(doc); err != nil {
		return "", err
	}
	doc = s.stampDocument(doc)

	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return "", classifyMongoError("save", err)
	}
	s.logger.Info("document saved",
		logging.String("doc_id", doc.ID),
		logging.String(logging.FieldUserID, doc.UserID),
		logging.String("filename", doc.Filename))
	return doc.ID, nil
}

// Get fetches one document by ID.
func (s *MongoStore) Get(ctx context.Context, id string) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, services.Wrap(services.ErrValidation, "persistence", "get", "document ID required", nil)
	}
	var doc Document
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{}, services.Wrap(services.ErrNotFound, "persistence", "get", fmt.Sprintf("document %s not found", id), nil)
	}
	if err != nil {
		return Document{}, classifyMongoError("get", err)
	}
	return doc, nil
}

// ListForUser returns the user's documents, newest first.
func (s *MongoStore) ListForUser(ctx context.Context, userID string, limit int) ([]Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, services.Wrap(services.ErrValidation, "persistence", "list", "user ID required", nil)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, classifyMongoError("list", err)
	}
	defer cursor.Close(ctx)

	docs := make([]Document, 0, limit)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError("list", err)
	}
	return docs, nil
}

// Delete removes one document by ID.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return services.Wrap(services.ErrValidation, "persistence", "delete", "document ID required", nil)
	}
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classifyMongoError("delete", err)
	}
	if res.DeletedCount == 0 {
		return services.Wrap(services.ErrNotFound, "persistence", "delete", fmt.Sprintf("document %s not found", id), nil)
	}
	return nil
}

// BatchSave upserts documents in MaxBatchSize chunks and returns their IDs in
// input order.
func (s *MongoStore) BatchSave(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	stamped := make([]Document, len(docs))
	for i, doc := range docs {
		if err := validateDocument(doc); err != nil {
			return nil, err
		}
		stamped[i] = s.stampDocument(doc)
	}

	ids := make([]string, 0, len(stamped))
	for _, bounds := range batchChunks(len(stamped)) {
		chunk := stamped[bounds[0]:bounds[1]]
		models := make([]mongo.WriteModel, 0, len(chunk))
		for _, doc := range chunk {
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": doc.ID}).
				SetReplacement(doc).
				SetUpsert(true))
		}
		if _, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
			return nil, classifyMongoError("batch_save", err)
		}
		for _, doc := range chunk {
			ids = append(ids, doc.ID)
		}
	}
	return ids, nil
}

// BatchGet fetches documents by ID in MaxBatchSize chunks. Results follow the
// requested order; unknown IDs are skipped.
func (s *MongoStore) BatchGet(ctx context.Context, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found := make(map[string]Document, len(ids))
	for _, bounds := range batchChunks(len(ids)) {
		chunk := ids[bounds[0]:bounds[1]]
		cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": chunk}})
		if err != nil {
			return nil, classifyMongoError("batch_get", err)
		}
		var docs []Document
		if err := cursor.All(ctx, &docs); err != nil {
			return nil, classifyMongoError("batch_get", err)
		}
		for _, doc := range docs {
			found[doc.ID] = doc
		}
	}

	results := make([]Document, 0, len(found))
	for _, id := range ids {
		if doc, ok := found[id]; ok {
			results = append(results, doc)
		}
	}
	return results, nil
}

// Ping verifies the MongoDB connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return classifyMongoError("ping", err)
	}
	return nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) stampDocument(doc Document) Document {
	now := s.now().UTC()
	if strings.TrimSpace(doc.ID) == "" {
		doc.ID = NewID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	return doc
}

func classifyMongoError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "persistence", op, "store call exceeded deadline", err)
	case errors.Is(err, context.Canceled):
		return services.Wrap(services.ErrTransient, "persistence", op, "store call cancelled", err)
	default:
		return services.Wrap(services.ErrTransient, "persistence", op, "store call failed", err)
	}
}
