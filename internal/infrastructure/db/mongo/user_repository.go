package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/classpoint/classroom-system/internal/core/domain"
)

const (
	usersCollection      = "users"
	classUsersCollection = "class_users"
)

// UserRepository implements ports.UserRepository on MongoDB.
type UserRepository struct {
	users      *mongo.Collection
	classUsers *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		users:      db.Collection(usersCollection),
		classUsers: db.Collection(classUsersCollection),
	}
}

type mongoUser struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`
	Username     string             `bson:"username"`
	DisplayName  string             `bson:"display_name"`
	PasswordHash string             `bson:"password_hash"`
	Permissions  int                `bson:"permissions"`
	APIKey       string             `bson:"api_key"`
	CreatedAt    int64              `bson:"created_at"`
	UpdatedAt    int64              `bson:"updated_at"`
}

// classUserRow links a user to a room with a class-scoped rank.
type classUserRow struct {
	RoomID      string `bson:"room_id"`
	UserID      string `bson:"user_id"`
	Permissions int    `bson:"permissions"`
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoUser{
		Email:        user.Email,
		Username:     user.Username,
		DisplayName:  user.DisplayName,
		PasswordHash: user.PasswordHash,
		Permissions:  user.Permissions,
		APIKey:       user.APIKey,
		CreatedAt:    user.CreatedAt.Unix(),
		UpdatedAt:    user.UpdatedAt.Unix(),
	}

	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	// fetch back to get the generated ID
	return r.FindByEmail(ctx, user.Email)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByAPIKey(ctx context.Context, apiKey string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"api_key": apiKey})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var mu mongoUser
	if err := r.users.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	return &domain.User{
		ID:           mu.ID.Hex(),
		Email:        mu.Email,
		Username:     mu.Username,
		DisplayName:  mu.DisplayName,
		PasswordHash: mu.PasswordHash,
		Permissions:  mu.Permissions,
		APIKey:       mu.APIKey,
		CreatedAt:    unixToTime(mu.CreatedAt),
		UpdatedAt:    unixToTime(mu.UpdatedAt),
	}, nil
}

// FindClassRank returns the user's stored class-scoped rank for a room.
func (r *UserRepository) FindClassRank(ctx context.Context, userID, roomID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var row classUserRow
	err := r.classUsers.FindOne(ctx, bson.M{"user_id": userID, "room_id": roomID}).Decode(&row)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("find class rank: %w", err)
	}
	return row.Permissions, nil
}

func (r *UserRepository) UpdateAPIKey(ctx context.Context, userID, apiKey string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return domain.ErrUserNotFound
	}

	res, err := r.users.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"api_key": apiKey, "updated_at": time.Now().Unix()}},
	)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// EnsureIndexes creates the unique and lookup indexes the repository relies on.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "api_key", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = r.classUsers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "room_id", Value: 1}}},
	})
	return err
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
