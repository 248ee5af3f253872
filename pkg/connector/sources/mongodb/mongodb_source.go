// Package mongodb provides a key-range source that scans a collection in
// _id order.
package mongodb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/base"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

const defaultPort = 27017

// KeyType is the BSON type of the _id values being scanned.
type KeyType string

const (
	KeyObjectID   KeyType = "objectid"
	KeyTypeString KeyType = "string"
	KeyInt        KeyType = "int"
)

// MongoDBSource scans [start_key, stop_key) of a collection's _id index.
// Each page asks for one document more than the page size; the extra
// document only decides whether the range continues.
type MongoDBSource struct {
	*base.BaseAdapter

	client   *mongo.Client
	coll     *mongo.Collection
	keyType  KeyType
	startKey string
	stopKey  string
	limit    int
}

// NewMongoDBSource creates an unconnected MongoDB source.
func NewMongoDBSource() *MongoDBSource {
	return &MongoDBSource{
		BaseAdapter: base.NewBaseAdapter("mongodb", core.FamilyRangeKey, "2.0.0"),
	}
}

// New adapts NewMongoDBSource to the registry's factory signature.
func New() core.Adapter { return NewMongoDBSource() }

// Connect validates cfg, then connects and pings the primary.
func (s *MongoDBSource) Connect(ctx context.Context, cfg *config.SourceConfig) error {
	if err := s.Begin(cfg, "database", "resource", "credentials.dsn|host"); err != nil {
		return err
	}

	keyType := KeyType(cfg.Option("key_type", string(KeyObjectID)))
	for _, k := range []string{cfg.StartKey, cfg.StopKey} {
		if k == "" {
			continue
		}
		if _, err := ParseKey(keyType, k); err != nil {
			return err
		}
	}

	clientOpts := options.Client().
		ApplyURI(URI(cfg)).
		SetConnectTimeout(cfg.Timeouts.Connect).
		SetAppName("nebula-extract")
	if err := clientOpts.Validate(); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "invalid MongoDB connection string")
	}

	connectCtx, cancel := s.ConnectContext(ctx)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to connect to MongoDB")
	}
	s.OnRelease(client.Disconnect)

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to ping MongoDB")
	}

	s.client = client
	s.coll = client.Database(cfg.Database).Collection(cfg.Resource)
	s.keyType = keyType
	s.startKey = cfg.StartKey
	s.stopKey = cfg.StopKey
	s.limit = cfg.PageLimit()

	s.GetLogger().Info("Connected to MongoDB",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Resource),
		zap.String("key_type", string(keyType)),
		zap.Int("page_size", s.limit))
	return s.MarkConnected()
}

// FetchPage reads the documents after the cursor's key, in _id order.
func (s *MongoDBSource) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
	if err := s.Guard(ctx, c); err != nil {
		return nil, err
	}
	after, _ := c.Key()

	filter, err := RangeFilter(s.keyType, s.startKey, s.stopKey, after)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := s.RequestContext(ctx)
	defer cancel()

	findOpts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(s.limit + 1))
	cur, err := s.coll.Find(reqCtx, filter, findOpts)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to query collection").
			WithDetail("after", after)
	}
	var docs []bson.M
	if err := cur.All(reqCtx, &docs); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to read documents").
			WithDetail("after", after)
	}

	return RangePage(docs, s.limit)
}

// EstimateTotal returns the collection's metadata count. It ignores the key
// range, so it is only an upper bound when start_key or stop_key is set.
func (s *MongoDBSource) EstimateTotal(ctx context.Context) (int64, bool, error) {
	if s.coll == nil {
		return 0, false, nil
	}
	reqCtx, cancel := s.RequestContext(ctx)
	defer cancel()
	n, err := s.coll.EstimatedDocumentCount(reqCtx)
	if err != nil {
		return 0, false, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to estimate document count")
	}
	return n, true, nil
}

// Disconnect closes the client.
func (s *MongoDBSource) Disconnect(ctx context.Context) error {
	s.client = nil
	s.coll = nil
	return s.Release(ctx)
}

// RangePage turns a lookahead batch of up to limit+1 documents into a page.
// The range continues only when the extra document is present.
func RangePage(docs []bson.M, limit int) (*core.Page, error) {
	more := len(docs) > limit
	if more {
		docs = docs[:limit]
	}

	records := make([]models.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, models.Record(normalizeDoc(doc)))
	}
	if !more {
		return &core.Page{Records: records, Next: cursor.RangeKey(lastKey(docs)).Exhaust()}, nil
	}

	key, err := KeyString(docs[len(docs)-1]["_id"])
	if err != nil {
		return nil, err
	}
	return &core.Page{Records: records, Next: cursor.RangeKey(key)}, nil
}

func lastKey(docs []bson.M) string {
	if len(docs) == 0 {
		return ""
	}
	key, _ := KeyString(docs[len(docs)-1]["_id"])
	return key
}

// RangeFilter builds the _id filter of one page. The first page (empty
// after) starts at start inclusively; later pages start after the last key
// seen. stop is exclusive.
func RangeFilter(keyType KeyType, start, stop, after string) (bson.D, error) {
	bounds := bson.D{}
	switch {
	case after != "":
		v, err := ParseKey(keyType, after)
		if err != nil {
			return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypePagination, "cursor key does not match key_type")
		}
		bounds = append(bounds, bson.E{Key: "$gt", Value: v})
	case start != "":
		v, err := ParseKey(keyType, start)
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, bson.E{Key: "$gte", Value: v})
	}
	if stop != "" {
		v, err := ParseKey(keyType, stop)
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, bson.E{Key: "$lt", Value: v})
	}

	if len(bounds) == 0 {
		return bson.D{}, nil
	}
	return bson.D{{Key: "_id", Value: bounds}}, nil
}

// ParseKey converts the string form of a key into its BSON value.
func ParseKey(keyType KeyType, s string) (interface{}, error) {
	switch keyType {
	case KeyObjectID:
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, nebulaerrors.Wrapf(err, nebulaerrors.ErrorTypeConfig, "invalid ObjectID key %q", s)
		}
		return id, nil
	case KeyTypeString:
		return s, nil
	case KeyInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, nebulaerrors.Wrapf(err, nebulaerrors.ErrorTypeConfig, "invalid integer key %q", s)
		}
		return n, nil
	default:
		return nil, nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "unknown key_type %q", keyType)
	}
}

// KeyString renders an _id value as a cursor key.
func KeyString(v interface{}) (string, error) {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex(), nil
	case string:
		return id, nil
	case int32:
		return strconv.FormatInt(int64(id), 10), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case int:
		return strconv.Itoa(id), nil
	default:
		return "", nebulaerrors.Newf(nebulaerrors.ErrorTypePagination, "unsupported _id type %T", v)
	}
}

// URI returns the DSN of cfg, or builds a mongodb:// URI from its host, port
// and credentials.
func URI(cfg *config.SourceConfig) string {
	if cfg.Credentials.DSN != "" {
		return cfg.Credentials.DSN
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	u := url.URL{Scheme: "mongodb", Host: fmt.Sprintf("%s:%d", cfg.Host, port), Path: "/"}
	if cfg.Credentials.Username != "" {
		u.User = url.UserPassword(cfg.Credentials.Username, cfg.Credentials.Password)
	}
	if authSource := cfg.Option("auth_source", ""); authSource != "" {
		u.RawQuery = url.Values{"authSource": {authSource}}.Encode()
	}
	return u.String()
}

func normalizeDoc(doc bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return val.String()
	case primitive.Binary:
		return val.Data
	case bson.M:
		return normalizeDoc(val)
	case bson.D:
		out := make(map[string]interface{}, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
