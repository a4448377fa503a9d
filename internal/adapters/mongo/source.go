// Package mongo streams listing documents from a MongoDB collection, such as
// the sample_airbnb.listingsAndReviews dataset.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"airbnb_insights/internal/adapters/observability"
	"airbnb_insights/internal/domain"
	"airbnb_insights/internal/mapper"
)

// projection keeps only the fields the mappers read.
var projection = bson.M{
	"name":                          1,
	"property_type":                 1,
	"room_type":                     1,
	"price":                         1,
	"address.country":               1,
	"host.host_name":                1,
	"availability.availability_365": 1,
}

type Source struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials and pings the cluster; a failed ping closes the client.
func Connect(ctx context.Context, uri, db, collection string, timeout time.Duration) (*Source, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		observability.ObserveExternal("mongo", "ping", 0, time.Since(start))
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	observability.ObserveExternal("mongo", "ping", 200, time.Since(start))
	log.Info().Str("db", db).Str("collection", collection).Msg("mongo connection ok")
	return &Source{client: client, coll: client.Database(db).Collection(collection)}, nil
}

func (s *Source) Name() string { return "mongo" }

func (s *Source) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// Collection exposes the handle for seeding in tests and tools.
func (s *Source) Collection() *mongo.Collection { return s.coll }

func (s *Source) LoadListings(ctx context.Context) ([]domain.ListingRecord, error) {
	start := time.Now()
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetProjection(projection).SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		observability.ObserveExternal("mongo", "find", 0, time.Since(start))
		return nil, fmt.Errorf("mongo: find: %w", err)
	}
	defer cur.Close(ctx)

	var (
		out     []domain.ListingRecord
		skipped int
	)
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode: %w", err)
		}
		m, _ := normalize(doc).(map[string]any)
		rec, err := mapper.Listing(m)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo: cursor: %w", err)
	}
	observability.ObserveExternal("mongo", "find", 200, time.Since(start))
	log.Info().Int("rows", len(out)).Int("skipped", skipped).Dur("took", time.Since(start)).Msg("mongo listings loaded")
	return out, nil
}

// normalize converts driver document types into plain maps and slices so the
// mappers' dotted-path lookups work on them.
func normalize(v any) any {
	switch t := v.(type) {
	case primitive.M:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = normalize(x)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = normalize(x)
		}
		return m
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case primitive.A:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = normalize(x)
		}
		return out
	case primitive.Decimal128:
		return t.String()
	}
	return v
}
