// internal/database/user_repository.go
package database

import (
	"context"
	"errors"

	"connect-you/internal/models"
	"connect-you/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserDocument represents the MongoDB schema for a user. Only the fields the
// messaging core reads are mapped; credentials stay with the account service.
type UserDocument struct {
	ID             string `bson:"_id"`            // Participant id, string form everywhere
	Name           string `bson:"name"`           // Display name
	Email          string `bson:"email"`          // Email address
	Role           string `bson:"role"`           // "student" or "alumni"
	ProfilePicture string `bson:"profilePicture"` // Avatar URL
}

func (doc *UserDocument) toModel() *models.User {
	return &models.User{
		ID:             doc.ID,
		Name:           doc.Name,
		Email:          doc.Email,
		Role:           doc.Role,
		ProfilePicture: doc.ProfilePicture,
	}
}

var userProjection = bson.M{"name": 1, "email": 1, "role": 1, "profilePicture": 1}

// GetUser retrieves a user from MongoDB by their ID
func (m *MongoDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var doc UserDocument

	err := m.Users.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(userProjection)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewUserNotFoundError(id)
	}
	if err != nil {
		return nil, utils.NewDatabaseError("failed to load user", err)
	}
	return doc.toModel(), nil
}

// GetUsersByIDs loads several users at once, keyed by id. Missing ids are
// simply absent from the result.
func (m *MongoDB) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	cursor, err := m.Users.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(userProjection),
	)
	if err != nil {
		return nil, utils.NewDatabaseError("failed to load users", err)
	}
	defer cursor.Close(ctx)

	var docs []UserDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, utils.NewDatabaseError("failed to decode users", err)
	}
	for i := range docs {
		users[docs[i].ID] = docs[i].toModel()
	}
	return users, nil
}
