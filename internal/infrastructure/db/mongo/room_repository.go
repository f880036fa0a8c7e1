package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/classpoint/classroom-system/internal/core/domain"
)

const (
	roomsCollection           = "rooms"
	roomPermissionsCollection = "room_permissions"
	roomLinksCollection       = "room_links"
)

// RoomRepository implements ports.RoomRepository on MongoDB.
type RoomRepository struct {
	rooms       *mongo.Collection
	permissions *mongo.Collection
	links       *mongo.Collection
}

func NewRoomRepository(db *mongo.Database) *RoomRepository {
	return &RoomRepository{
		rooms:       db.Collection(roomsCollection),
		permissions: db.Collection(roomPermissionsCollection),
		links:       db.Collection(roomLinksCollection),
	}
}

type mongoRoom struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	Code    string             `bson:"code"`
	Name    string             `bson:"name"`
	OwnerID string             `bson:"owner_id"`
	Tags    []string           `bson:"tags,omitempty"`
}

// permissionRow is a room's stored override table.
type permissionRow struct {
	RoomID     string         `bson:"room_id"`
	Thresholds map[string]int `bson:"thresholds"`
}

type linkRow struct {
	RoomID string `bson:"room_id"`
	Name   string `bson:"name"`
	URL    string `bson:"url"`
}

func (r *RoomRepository) FindByCode(ctx context.Context, code string) (*domain.StoredRoom, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var mr mongoRoom
	if err := r.rooms.FindOne(ctx, bson.M{"code": code}).Decode(&mr); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("find room: %w", err)
	}

	return &domain.StoredRoom{
		ID:      mr.ID.Hex(),
		Code:    mr.Code,
		Name:    mr.Name,
		OwnerID: mr.OwnerID,
		Tags:    mr.Tags,
	}, nil
}

// FindPermissionOverrides returns the stored override row as a capability ->
// rank map. A missing row yields an empty map, not an error.
func (r *RoomRepository) FindPermissionOverrides(ctx context.Context, roomID string) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var row permissionRow
	err := r.permissions.FindOne(ctx, bson.M{"room_id": roomID}).Decode(&row)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("find permission overrides: %w", err)
	}
	return row.Thresholds, nil
}

func (r *RoomRepository) ListLinks(ctx context.Context, roomID string) ([]domain.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.links.Find(ctx, bson.M{"room_id": roomID})
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer cur.Close(ctx)

	links := []domain.Link{}
	for cur.Next(ctx) {
		var row linkRow
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode link: %w", err)
		}
		links = append(links, domain.Link{Name: row.Name, URL: row.URL})
	}
	return links, cur.Err()
}

// EnsureIndexes creates the lookup indexes the repository relies on.
func (r *RoomRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := r.rooms.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}},
	}); err != nil {
		return err
	}
	if _, err := r.permissions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_id", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := r.links.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_id", Value: 1}}},
	})
	return err
}
