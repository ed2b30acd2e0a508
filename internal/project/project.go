package project

import (
	"context"
	"encoding/json"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrNotFound = errors.New("project not found")

// Project mirrors the record owned by the project service. This service only
// reads it for room authorization and writes the fileTree field.
type Project struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name      string               `bson:"name" json:"name"`
	Users     []primitive.ObjectID `bson:"users" json:"users"`
	CreatedBy primitive.ObjectID   `bson:"createdBy" json:"createdBy"`
	FileTree  bson.M               `bson:"fileTree,omitempty" json:"fileTree,omitempty"`
}

// HasMember reports whether the user is a collaborator on the project.
func (p *Project) HasMember(userID string) bool {
	for _, u := range p.Users {
		if u.Hex() == userID {
			return true
		}
	}
	return false
}

// IsOwner reports whether the user created the project and is still a member.
func (p *Project) IsOwner(userID string) bool {
	return p.HasMember(userID) && p.CreatedBy.Hex() == userID
}

// ValidRoomID reports whether id is a well-formed project identifier. Room
// identifiers are project ObjectIDs.
func ValidRoomID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

type Repository struct {
	coll *mongo.Collection
}

func NewRepository(db *mongo.Database) *Repository {
	return &Repository{coll: db.Collection("projects")}
}

func (r *Repository) Get(ctx context.Context, id string) (*Project, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var p Project
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdateFileTree replaces the project's file tree with the structure produced
// by the AI coordinator.
func (r *Repository) UpdateFileTree(ctx context.Context, id string, tree json.RawMessage) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	var doc bson.M
	if err := json.Unmarshal(tree, &doc); err != nil {
		return err
	}
	res, err := r.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"fileTree": doc}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
