package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/findosh/coinwatch/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ CredentialStore = (*MongoStore)(nil)

// MongoStore keeps one document per user in the users collection
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
}

// OpenMongoStore connects to uri and prepares the users collection indexes
func OpenMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		users:  client.Database(database).Collection("users"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "reset_token_hash", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Create inserts a new user
func (s *MongoStore) Create(ctx context.Context, u *models.User) error {
	u.Email = models.NormalizeEmail(u.Email)
	u.Version = 1

	_, err := s.users.InsertOne(ctx, newUserRecord(u))
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByID retrieves a user by ID
func (s *MongoStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

// FindByEmail retrieves a user by normalized email
func (s *MongoStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": models.NormalizeEmail(email)})
}

// FindByResetTokenHash retrieves the user holding the given reset hash
func (s *MongoStore) FindByResetTokenHash(ctx context.Context, hash string) (*models.User, error) {
	if hash == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"reset_token_hash": hash})
}

// Update replaces the document if its version is unchanged
func (s *MongoStore) Update(ctx context.Context, u *models.User) error {
	next := u.Clone()
	next.Version++

	filter := bson.M{"_id": u.ID.String(), "version": u.Version}
	res, err := s.users.ReplaceOne(ctx, filter, newUserRecord(next))
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if res.MatchedCount == 0 {
		n, err := s.users.CountDocuments(ctx, bson.M{"_id": u.ID.String()})
		if err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	u.Email = models.NormalizeEmail(u.Email)
	u.Version = next.Version
	return nil
}

// ExpiredResets lists users whose reset token expired before now
func (s *MongoStore) ExpiredResets(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	filter := bson.M{
		"reset_token_hash":       bson.M{"$exists": true},
		"reset_token_expires_at": bson.M{"$lte": now.UTC()},
	}
	cur, err := s.users.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to query expired resets: %w", err)
	}

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, fmt.Errorf("corrupt user id %q: %w", d.ID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var rec userRecord
	err := s.users.FindOne(ctx, filter).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return rec.user()
}
