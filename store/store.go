// Package store is the MongoDB persistence adapter for the message log.
//
// Messages are stored in the "messages" collection with the payload
// fields at the top level, a metadata subdocument carrying the sender
// and the (platform, chatId) routing fields, and the timestamp as a
// BSON datetime. Timestamps arrive as integer epoch seconds and the
// second<->datetime conversion round-trips losslessly.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LivelyChat/api/message"
)

const collectionName = "messages"

// Query filters a page of the message log. Platform and ChatID are
// optional; Before (epoch seconds, exclusive) bounds the page but not
// the total. Limit must already be validated by the caller.
type Query struct {
	Platform string
	ChatID   string
	Limit    int64
	Before   int64 // 0 means no bound
}

// Store owns the Mongo client for the durable message log. Connect is
// idempotent and safe for concurrent use; the client is never duplicated.
type Store struct {
	uri      string
	database string

	mu        sync.Mutex
	client    *mongo.Client
	connected bool
}

// New creates a Store addressing the given deployment. No I/O happens
// until Connect.
func New(uri, database string) *Store {
	return &Store{uri: uri, database: database}
}

// Connect establishes the client connection and ensures the indexes the
// query path relies on. Calling it again after success is a no-op.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.uri))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("mongo ping: %w", err)
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "metadata.platform", Value: 1}, {Key: "metadata.chatId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	}
	if _, err := client.Database(s.database).Collection(collectionName).Indexes().CreateMany(ctx, indexes); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("mongo ensure indexes: %w", err)
	}

	s.client = client
	s.connected = true
	slog.Info("connected", slog.String("component", "mongodb"), slog.String("database", s.database))
	return nil
}

// Disconnect closes the client. Safe to call when not connected.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	s.connected = false
	if err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	slog.Info("disconnected", slog.String("component", "mongodb"))
	return nil
}

// Ping reports whether the store is reachable, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	c, err := s.collection()
	if err != nil {
		return err
	}
	return c.Database().Client().Ping(ctx, nil)
}

func (s *Store) collection() (*mongo.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, fmt.Errorf("store not connected")
	}
	return s.client.Database(s.database).Collection(collectionName), nil
}

// SaveMessage appends a message to the log. Duplicate (platform,
// chatId, id) tuples are accepted; the log enforces no uniqueness.
func (s *Store) SaveMessage(ctx context.Context, msg message.Message) error {
	c, err := s.collection()
	if err != nil {
		return err
	}
	if _, err := c.InsertOne(ctx, toDocument(msg)); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Messages returns the total count matching the platform/chat filters
// (ignoring Before) and up to Limit messages matching all filters,
// newest first.
func (s *Store) Messages(ctx context.Context, q Query) (message.List, error) {
	c, err := s.collection()
	if err != nil {
		return message.List{}, err
	}

	filter := bson.M{}
	if q.Platform != "" {
		filter["metadata.platform"] = q.Platform
	}
	if q.ChatID != "" {
		filter["metadata.chatId"] = q.ChatID
	}

	total, err := c.CountDocuments(ctx, filter)
	if err != nil {
		return message.List{}, fmt.Errorf("count messages: %w", err)
	}

	if q.Before > 0 {
		filter["timestamp"] = bson.M{"$lt": secondsToTime(q.Before)}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(q.Limit)
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return message.List{}, fmt.Errorf("find messages: %w", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return message.List{}, fmt.Errorf("decode messages: %w", err)
	}

	msgs := make([]message.Message, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, fromDocument(d))
	}
	return message.List{Total: total, Messages: msgs}, nil
}

// CountMessages returns the total message count across all platforms
// and chats.
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	c, err := s.collection()
	if err != nil {
		return 0, err
	}
	n, err := c.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
