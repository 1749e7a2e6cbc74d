package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	logx "winova/pkg/logx"
)

const seqKey = "_seq"

type mongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
	log     logx.Logger
	seq     seqGen
}

func openMongo(cfg Config, log logx.Logger) (Gateway, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	dbName := strings.TrimSpace(cfg.Database)
	if dbName == "" {
		dbName = "winova"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	log.Info("mongo connected", logx.String("database", dbName))
	return &mongoStore{client: client, db: client.Database(dbName), timeout: timeout, log: log}, nil
}

func (s *mongoStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *mongoStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return ErrDisabled
	}
	return s.client.Ping(ctx, nil)
}

func (s *mongoStore) Insert(ctx context.Context, collection string, doc any) (string, error) {
	if s == nil || s.client == nil {
		return "", ErrDisabled
	}
	if !validCollection(collection) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	m, id, err := toDocument(doc)
	if err != nil {
		return "", err
	}
	m[seqKey] = s.seq.next()
	if _, err := s.db.Collection(collection).InsertOne(ctx, m); err != nil {
		return "", fmt.Errorf("mongo insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *mongoStore) Find(ctx context.Context, collection string, q Query, out any) error {
	if s == nil || s.client == nil {
		return ErrDisabled
	}
	if !validCollection(collection) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	filter, err := normalizeFilter(q.Filter)
	if err != nil {
		return err
	}
	field, desc, err := parseSort(q.Sort)
	if err != nil {
		return err
	}

	bf := bson.M{}
	for k, v := range filter {
		bf[k] = v
	}
	dir := 1
	if desc {
		dir = -1
	}
	sort := bson.D{}
	if field != "" {
		sort = append(sort, bson.E{Key: field, Value: dir})
	}
	sort = append(sort, bson.E{Key: seqKey, Value: dir})

	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.db.Collection(collection).Find(ctx, bf, opts)
	if err != nil {
		return fmt.Errorf("mongo find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var docs []map[string]any
	for cur.Next(ctx) {
		raw, err := bson.MarshalExtJSON(cur.Current, false, false)
		if err != nil {
			s.log.Warn("mongo: skipping undecodable document", logx.String("collection", collection), logx.Err(err))
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		delete(m, "_id")
		delete(m, seqKey)
		docs = append(docs, m)
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return decodeInto(docs, out)
}
