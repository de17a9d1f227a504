package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const bookingsCounter = "bookings"

type bookingDoc struct {
	ID            int64      `bson:"_id"`
	CustomerName  string     `bson:"customerName"`
	CustomerPhone string     `bson:"customerPhone"`
	CustomerEmail *string    `bson:"customerEmail,omitempty"`
	ServiceType   string     `bson:"serviceType"`
	ACType        string     `bson:"acType"`
	Address       string     `bson:"address"`
	PreferredDate string     `bson:"preferredDate"`
	PreferredTime string     `bson:"preferredTime"`
	Status        string     `bson:"status"`
	Notes         *string    `bson:"notes,omitempty"`
	UserID        *string    `bson:"userId,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt"`
	UpdatedAt     *time.Time `bson:"updatedAt,omitempty"`
}

type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

func toDoc(b Booking) bookingDoc {
	return bookingDoc{
		ID:            b.ID,
		CustomerName:  b.CustomerName,
		CustomerPhone: b.CustomerPhone,
		CustomerEmail: b.CustomerEmail,
		ServiceType:   b.ServiceType,
		ACType:        b.ACType,
		Address:       b.Address,
		PreferredDate: b.PreferredDate,
		PreferredTime: b.PreferredTime,
		Status:        string(b.Status),
		Notes:         b.Notes,
		UserID:        b.UserID,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func (d bookingDoc) toBooking() Booking {
	return Booking{
		ID:            d.ID,
		CustomerName:  d.CustomerName,
		CustomerPhone: d.CustomerPhone,
		CustomerEmail: d.CustomerEmail,
		ServiceType:   d.ServiceType,
		ACType:        d.ACType,
		Address:       d.Address,
		PreferredDate: d.PreferredDate,
		PreferredTime: d.PreferredTime,
		Status:        Status(d.Status),
		Notes:         d.Notes,
		UserID:        d.UserID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// MongoStore persists bookings in MongoDB. Numeric ids come from a counters
// collection so links and admin requests keep using integers.
type MongoStore struct {
	client   *mongo.Client
	bookings *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

// ConnectMongo connects to uri, pings the primary and ensures indexes.
func ConnectMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:   client,
		bookings: db.Collection("bookings"),
		counters: db.Collection("counters"),
		now:      time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.bookings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	return err
}

func (s *MongoStore) nextID(ctx context.Context) (int64, error) {
	var c counterDoc
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": bookingsCounter},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("next booking id: %w", err)
	}
	return c.Seq, nil
}

func (s *MongoStore) Create(ctx context.Context, nb NewBooking) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id, err := s.nextID(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := s.bookings.InsertOne(ctx, toDoc(newRecord(nb, id, s.now()))); err != nil {
		return 0, fmt.Errorf("insert booking: %w", err)
	}
	return id, nil
}

func (s *MongoStore) List(ctx context.Context) ([]Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := s.bookings.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []bookingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]Booking, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toBooking())
	}
	return out, nil
}

func (s *MongoStore) Get(ctx context.Context, id int64) (Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var d bookingDoc
	err := s.bookings.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Booking{}, ErrNotFound
	}
	if err != nil {
		return Booking{}, err
	}
	return d.toBooking(), nil
}

func (s *MongoStore) UpdateStatus(ctx context.Context, id int64, status Status) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.bookings.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"status": string(status), "updatedAt": s.now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
