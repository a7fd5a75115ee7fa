package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/outbox"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type messageDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Message   string             `bson:"message"`
	CreatedAt time.Time          `bson:"createdAt"`
	Sync      *syncState         `bson:"sync,omitempty"`
}

type syncState struct {
	Status     outbox.Status `bson:"status"`
	Attempts   int           `bson:"attempts"`
	LeaseUntil *time.Time    `bson:"leaseUntil,omitempty"`
	LastError  string        `bson:"lastError,omitempty"`
	UpdatedAt  time.Time     `bson:"updatedAt"`
}

func (d messageDocument) toDomain() message.Message {
	return message.Message{
		ID:        d.ID.Hex(),
		Text:      d.Message,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

// MessageRepository stores messages and their propagation flag in one
// collection, so the flag is written atomically with the record.
type MessageRepository struct {
	coll  *mongo.Collection
	lease time.Duration
	now   func() time.Time
}

// NewMessageRepository returns a repository whose freshly created messages
// stay claimed by their creator for lease before the poller may take them.
func NewMessageRepository(db *mongo.Database, collection string, lease time.Duration) *MessageRepository {
	return &MessageRepository{
		coll:  db.Collection(collection),
		lease: lease,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "sync.status", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("%w: create indexes: %w", message.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *MessageRepository) Create(ctx context.Context, m *message.Message) error {
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: message text is empty", message.ErrValidation)
	}

	now := r.now()
	if m.CreatedAt.IsZero() {
		// BSON dates carry milliseconds; return exactly what is persisted.
		m.CreatedAt = now.Truncate(time.Millisecond)
	}
	leaseUntil := now.Add(r.lease)

	doc := messageDocument{
		Message:   m.Text,
		CreatedAt: m.CreatedAt,
		Sync: &syncState{
			Status:     outbox.StatusProcessing,
			LeaseUntil: &leaseUntil,
			UpdatedAt:  now,
		},
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("%w: insert message: %w", message.ErrStoreUnavailable, err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("%w: unexpected inserted id %v", message.ErrStoreUnavailable, res.InsertedID)
	}
	m.ID = oid.Hex()

	return nil
}

// FindAny returns an arbitrary message, or nil when the collection is empty.
func (r *MessageRepository) FindAny(ctx context.Context) (*message.Message, error) {
	var doc messageDocument
	err := r.coll.FindOne(ctx, bson.D{}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find message: %w", message.ErrStoreUnavailable, err)
	}

	m := doc.toDomain()
	return &m, nil
}

// List returns messages newest first. _id breaks ties between messages
// created within the same millisecond so pages never overlap.
func (r *MessageRepository) List(ctx context.Context, offset, limit int) ([]message.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	return r.find(ctx, bson.D{}, opts)
}

// Scan walks the collection in _id order, returning up to limit messages
// after afterID. An empty afterID starts from the beginning.
func (r *MessageRepository) Scan(ctx context.Context, afterID string, limit int) ([]message.Message, error) {
	filter := bson.D{}
	if afterID != "" {
		oid, err := primitive.ObjectIDFromHex(afterID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid cursor %q", message.ErrValidation, afterID)
		}
		filter = bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: oid}}}}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	return r.find(ctx, filter, opts)
}

func (r *MessageRepository) find(ctx context.Context, filter any, opts *options.FindOptions) ([]message.Message, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find messages: %w", message.ErrStoreUnavailable, err)
	}

	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode messages: %w", message.ErrStoreUnavailable, err)
	}

	messages := make([]message.Message, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, d.toDomain())
	}
	return messages, nil
}

// ClaimBatch leases up to limit messages that still need propagation:
// pending ones, legacy documents without sync state, and claims whose lease
// has expired. Each document is claimed with its own FindOneAndUpdate so
// concurrent pollers never receive the same message.
func (r *MessageRepository) ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]message.Message, error) {
	claimed := make([]message.Message, 0, limit)

	for len(claimed) < limit {
		now := r.now()
		filter := bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "sync.status", Value: outbox.StatusPending}},
			bson.D{{Key: "sync", Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{
				{Key: "sync.status", Value: bson.D{{Key: "$in", Value: bson.A{outbox.StatusProcessing, outbox.StatusDispatched}}}},
				{Key: "sync.leaseUntil", Value: bson.D{{Key: "$lt", Value: now}}},
			},
		}}}
		update := bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "sync.status", Value: outbox.StatusProcessing},
				{Key: "sync.leaseUntil", Value: now.Add(lease)},
				{Key: "sync.updatedAt", Value: now},
			}},
			{Key: "$inc", Value: bson.D{{Key: "sync.attempts", Value: 1}}},
		}
		opts := options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "createdAt", Value: 1}}).
			SetReturnDocument(options.After)

		var doc messageDocument
		err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			if len(claimed) > 0 {
				// Hand back what we already hold; the rest stays claimable.
				return claimed, nil
			}
			return nil, fmt.Errorf("%w: claim outbox batch: %w", message.ErrStoreUnavailable, err)
		}
		claimed = append(claimed, doc.toDomain())
	}

	return claimed, nil
}

func (r *MessageRepository) MarkIndexed(ctx context.Context, ids []string) error {
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "sync.status", Value: outbox.StatusIndexed},
			{Key: "sync.updatedAt", Value: r.now()},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: "sync.leaseUntil", Value: ""},
			{Key: "sync.lastError", Value: ""},
		}},
	}
	return r.updateMany(ctx, ids, false, update, "mark indexed")
}

func (r *MessageRepository) MarkDispatched(ctx context.Context, ids []string, lease time.Duration) error {
	now := r.now()
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "sync.status", Value: outbox.StatusDispatched},
			{Key: "sync.leaseUntil", Value: now.Add(lease)},
			{Key: "sync.updatedAt", Value: now},
		}},
	}
	return r.updateMany(ctx, ids, true, update, "mark dispatched")
}

// Release returns messages to pending so the poller retries them.
func (r *MessageRepository) Release(ctx context.Context, ids []string, cause error) error {
	set := bson.D{
		{Key: "sync.status", Value: outbox.StatusPending},
		{Key: "sync.updatedAt", Value: r.now()},
	}
	if cause != nil {
		set = append(set, bson.E{Key: "sync.lastError", Value: cause.Error()})
	}
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$unset", Value: bson.D{{Key: "sync.leaseUntil", Value: ""}}},
	}
	return r.updateMany(ctx, ids, true, update, "release")
}

// ResetStale releases every processing or dispatched claim regardless of
// its lease. Meant for operators after a crash, not for running pollers.
func (r *MessageRepository) ResetStale(ctx context.Context) (int64, error) {
	filter := bson.D{{Key: "sync.status", Value: bson.D{{Key: "$in", Value: bson.A{outbox.StatusProcessing, outbox.StatusDispatched}}}}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "sync.status", Value: outbox.StatusPending},
			{Key: "sync.updatedAt", Value: r.now()},
		}},
		{Key: "$unset", Value: bson.D{{Key: "sync.leaseUntil", Value: ""}}},
	}

	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("%w: reset stale claims: %w", message.ErrStoreUnavailable, err)
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) Stats(ctx context.Context) (outbox.Stats, error) {
	var stats outbox.Stats

	counts := []struct {
		dst    *int64
		filter bson.D
	}{
		{&stats.Pending, bson.D{{Key: "sync.status", Value: outbox.StatusPending}}},
		{&stats.Processing, bson.D{{Key: "sync.status", Value: outbox.StatusProcessing}}},
		{&stats.Dispatched, bson.D{{Key: "sync.status", Value: outbox.StatusDispatched}}},
		{&stats.Indexed, bson.D{{Key: "sync.status", Value: outbox.StatusIndexed}}},
		{&stats.Legacy, bson.D{{Key: "sync", Value: bson.D{{Key: "$exists", Value: false}}}}},
	}

	for _, c := range counts {
		n, err := r.coll.CountDocuments(ctx, c.filter)
		if err != nil {
			return outbox.Stats{}, fmt.Errorf("%w: count outbox: %w", message.ErrStoreUnavailable, err)
		}
		*c.dst = n
	}

	return stats, nil
}

// updateMany applies update to the given ids. With keepIndexed set, messages
// already marked indexed are left alone so a late writer cannot downgrade them.
func (r *MessageRepository) updateMany(ctx context.Context, ids []string, keepIndexed bool, update bson.D, op string) error {
	if len(ids) == 0 {
		return nil
	}

	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return fmt.Errorf("%w: %s: invalid id %q", message.ErrValidation, op, id)
		}
		oids = append(oids, oid)
	}

	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}}
	if keepIndexed {
		filter = append(filter, bson.E{Key: "sync.status", Value: bson.D{{Key: "$ne", Value: outbox.StatusIndexed}}})
	}

	if _, err := r.coll.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("%w: %s: %w", message.ErrStoreUnavailable, op, err)
	}
	return nil
}

var _ outbox.Repository = (*MessageRepository)(nil)
