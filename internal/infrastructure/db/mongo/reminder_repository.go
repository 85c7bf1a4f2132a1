package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

const remindersCollection = "reminders"

// ReminderRepository implements ports.ReminderRepository using MongoDB.
type ReminderRepository struct {
	col *mongo.Collection
}

func NewReminderRepository(db *mongo.Database) *ReminderRepository {
	return &ReminderRepository{col: db.Collection(remindersCollection)}
}

var _ ports.ReminderRepository = (*ReminderRepository)(nil)

// ListDue returns up to limit pending reminders scheduled at or before now,
// earliest first.
func (r *ReminderRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"status":    string(domain.ReminderPending),
		"remind_at": bson.M{"$lte": now.UTC()},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "remind_at", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer cur.Close(ctx)

	reminders := []domain.Reminder{}
	if err := cur.All(ctx, &reminders); err != nil {
		return nil, fmt.Errorf("decode reminders: %w", err)
	}
	return reminders, nil
}

func (r *ReminderRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.setStatus(ctx, id, bson.M{"status": string(domain.ReminderSent), "sent_at": at.UTC()})
}

func (r *ReminderRepository) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, bson.M{"status": string(domain.ReminderFailed)})
}

// EnsureIndexes backs the due-reminder scan.
func (r *ReminderRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "remind_at", Value: 1}},
	})
	return err
}

func (r *ReminderRepository) setStatus(ctx context.Context, id string, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update reminder %s: %w", id, err)
	}
	return nil
}
