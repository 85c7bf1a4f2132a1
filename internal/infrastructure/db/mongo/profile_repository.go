package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stomacrm/clinic/internal/core/domain"
)

const (
	profilesCollection = "profiles"
	guardsCollection   = "profile_guards"
	adminGuardID       = "active_admins"
)

// ProfileRepository stores one profile per identity, keyed by the identity id.
// RetireAdmin runs a multi-document transaction, so the deployment needs a
// replica set (a single-node one is enough).
type ProfileRepository struct {
	col    *mongo.Collection
	guards *mongo.Collection
}

func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{
		col:    db.Collection(profilesCollection),
		guards: db.Collection(guardsCollection),
	}
}

type mongoProfile struct {
	ID        string    `bson:"_id"`
	FullName  string    `bson:"full_name"`
	Email     string    `bson:"email"`
	Role      string    `bson:"role,omitempty"`
	IsActive  bool      `bson:"is_active"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (m mongoProfile) toDomain() *domain.Profile {
	return &domain.Profile{
		ID:        m.ID,
		FullName:  m.FullName,
		Email:     m.Email,
		Role:      domain.Role(m.Role),
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

// FindByIdentity returns (nil, nil) when the identity has no profile.
func (r *ProfileRepository) FindByIdentity(ctx context.Context, id string) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoProfile
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return doc.toDomain(), nil
}

// UpsertByIdentity writes defaults under id, overwriting an existing record,
// and returns the stored document. created_at is only set on insert.
func (r *ProfileRepository) UpsertByIdentity(ctx context.Context, id string, defaults domain.Profile) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"full_name":  defaults.FullName,
			"email":      defaults.Email,
			"role":       string(defaults.Role),
			"is_active":  defaults.IsActive,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc mongoProfile
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return doc.toDomain(), nil
}

// List returns every profile, oldest first.
func (r *ProfileRepository) List(ctx context.Context) ([]*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoProfile
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	out := make([]*domain.Profile, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *ProfileRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	return r.update(ctx, id, bson.M{"role": string(role)})
}

func (r *ProfileRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, id, bson.M{"is_active": active})
}

// RetireAdmin counts the other active admins and writes id in one
// transaction. Every retirement also bumps the shared guard document, so two
// concurrent retirements conflict and the retried one sees the new count.
func (r *ProfileRepository) RetireAdmin(ctx context.Context, id string, role domain.Role, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	sess, err := r.col.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		bump := bson.M{"$inc": bson.M{"version": 1}}
		if _, err := r.guards.UpdateOne(sc, bson.M{"_id": adminGuardID}, bump, options.Update().SetUpsert(true)); err != nil {
			return nil, fmt.Errorf("bump admin guard: %w", err)
		}

		others, err := r.col.CountDocuments(sc, bson.M{
			"_id":       bson.M{"$ne": id},
			"role":      string(domain.RoleAdmin),
			"is_active": true,
		})
		if err != nil {
			return nil, fmt.Errorf("count admins: %w", err)
		}
		if others == 0 {
			return nil, domain.ErrLastActiveAdmin
		}

		set := bson.M{"role": string(role), "is_active": active, "updated_at": time.Now().UTC()}
		res, err := r.col.UpdateOne(sc, bson.M{"_id": id}, bson.M{"$set": set})
		if err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, domain.ErrUserNotFound
		}
		return nil, nil
	})
	return err
}

// EnsureIndexes supports the admin count in RetireAdmin and the user list
// ordering.
func (r *ProfileRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "is_active", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}
	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *ProfileRepository) update(ctx context.Context, id string, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set["updated_at"] = time.Now().UTC()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
