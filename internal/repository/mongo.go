package repository

import (
	"context"
	"errors"
	"time"

	"github.com/beunreal/story-service/internal/domain"
	"github.com/beunreal/story-service/internal/geo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultOpTimeout = 3 * time.Second

type MongoStoryRepository struct {
	coll      *mongo.Collection
	opTimeout time.Duration
}

func NewMongoStoryRepository(coll *mongo.Collection, opTimeout time.Duration) *MongoStoryRepository {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &MongoStoryRepository{coll: coll, opTimeout: opTimeout}
}

// EnsureIndexes creates the indexes the queries below rely on.
func (r *MongoStoryRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "location.latitude", Value: 1}, {Key: "location.longitude", Value: 1}},
			Options: options.Index().SetName("location_idx"),
		},
		{
			Keys:    bson.D{{Key: "author_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("author_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("expires_idx"),
		},
	})
	return err
}

func (r *MongoStoryRepository) Insert(ctx context.Context, s *domain.Story) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, s)
	return err
}

func (r *MongoStoryRepository) GetByID(ctx context.Context, id string) (*domain.Story, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	var s domain.Story
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Normalize()
	return &s, nil
}

func (r *MongoStoryRepository) FindInBox(ctx context.Context, box geo.Box, now time.Time, limit int64) ([]*domain.Story, error) {
	return r.find(ctx, boxFilter(box, now), limit)
}

func (r *MongoStoryRepository) FindActiveByAuthor(ctx context.Context, authorID string, now time.Time) ([]*domain.Story, error) {
	return r.find(ctx, bson.M{"author_id": authorID, "expires_at": bson.M{"$gt": now}}, 0)
}

func (r *MongoStoryRepository) ToggleReaction(ctx context.Context, storyID string, re domain.Reaction, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	pair := bson.M{"user_id": re.UserID, "emoji": re.Emoji}
	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		res, err := r.coll.UpdateOne(ctx,
			activeFilter(storyID, now, bson.E{Key: "reactions", Value: bson.M{"$elemMatch": pair}}),
			bson.M{"$pull": bson.M{"reactions": pair}},
		)
		if err != nil {
			return false, err
		}
		if res.MatchedCount == 1 {
			return false, nil
		}

		res, err = r.coll.UpdateOne(ctx,
			activeFilter(storyID, now, bson.E{Key: "reactions", Value: bson.M{"$not": bson.M{"$elemMatch": pair}}}),
			bson.M{"$push": bson.M{"reactions": re}},
		)
		if err != nil {
			return false, err
		}
		if res.MatchedCount == 1 {
			return true, nil
		}

		// neither guard matched: the story is gone or expired, or another
		// toggle of the same pair landed between the two updates
		n, err := r.coll.CountDocuments(ctx, activeFilter(storyID, now))
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, ErrNotFound
		}
	}
	return false, ErrContended
}

func (r *MongoStoryRepository) AppendComment(ctx context.Context, storyID string, c domain.Comment, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	res, err := r.coll.UpdateOne(ctx, activeFilter(storyID, now), bson.M{"$push": bson.M{"comments": c}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoStoryRepository) DeleteOwned(ctx context.Context, storyID, authorID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": storyID, "author_id": authorID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 1 {
		return nil
	}
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": storyID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrNotOwner
}

func (r *MongoStoryRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func (r *MongoStoryRepository) find(ctx context.Context, filter bson.M, limit int64) ([]*domain.Story, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*domain.Story{}
	for cur.Next(ctx) {
		var s domain.Story
		if err := cur.Decode(&s); err != nil {
			return nil, err
		}
		s.Normalize()
		out = append(out, &s)
	}
	return out, cur.Err()
}

func activeFilter(id string, now time.Time, extra ...bson.E) bson.D {
	f := bson.D{
		{Key: "_id", Value: id},
		{Key: "expires_at", Value: bson.M{"$gt": now}},
	}
	return append(f, extra...)
}

func boxFilter(box geo.Box, now time.Time) bson.M {
	f := bson.M{
		"location.latitude": bson.M{"$gte": box.Lat.Min, "$lte": box.Lat.Max},
		"expires_at":        bson.M{"$gt": now},
	}
	if box.AllLongitudes {
		return f
	}
	ranges := make([]bson.M, 0, len(box.Lng))
	for _, lr := range box.Lng {
		ranges = append(ranges, bson.M{"location.longitude": bson.M{"$gte": lr.Min, "$lte": lr.Max}})
	}
	if len(ranges) == 1 {
		f["location.longitude"] = ranges[0]["location.longitude"]
	} else {
		f["$or"] = ranges
	}
	return f
}
