package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"nestlist/internal/auth"
	"nestlist/internal/db"
	"nestlist/internal/logger"
	"nestlist/internal/models"
)

// ErrUsernameExists is returned when an attempt is made to claim a taken username.
var ErrUsernameExists = errors.New("username already in use by another account")

// ErrEmailExists is returned when an attempt is made to use an email that already exists.
var ErrEmailExists = errors.New("email already in use by another account")

// IUserService defines the interface for user-related operations.
// This allows for easier mocking in tests.
type IUserService interface {
	CreateUser(ctx context.Context, username, email, aadhaar, password, avatar string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	UpdateUser(ctx context.Context, userID primitive.ObjectID, updates map[string]interface{}) (*models.User, error)
	DeleteUserAndListings(ctx context.Context, userID primitive.ObjectID) ([]string, error)
}

const usersCollection = "users"

// userService implements IUserService.
type userService struct {
	db         *mongo.Database
	listingSvc IListingService
}

// NewUserService creates a new UserService.
func NewUserService(database *mongo.Database, listingSvc IListingService) IUserService {
	return &userService{db: database, listingSvc: listingSvc}
}

// CreateUser inserts a new account with a bcrypt password hash. Username and
// email uniqueness is enforced by the store's unique indexes; collisions come
// back as ErrUsernameExists / ErrEmailExists.
func (s *userService) CreateUser(ctx context.Context, username, email, aadhaar, password, avatar string) (*models.User, error) {
	collection := s.db.Collection(usersCollection)

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password for %s: %w", username, err)
	}

	now := time.Now().UTC()
	var newUser *models.User

	operation := func() error {
		newUser = &models.User{
			ID:           primitive.NewObjectID(),
			Username:     username,
			Email:        email,
			Aadhaar:      aadhaar,
			PasswordHash: hashedPassword,
			Avatar:       avatar,
			IsAdmin:      false,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		_, insertErr := collection.InsertOne(ctx, newUser)
		return insertErr
	}

	err = db.Try(operation)

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "email") {
				return nil, ErrEmailExists
			}
			return nil, ErrUsernameExists
		}
		return nil, fmt.Errorf("error inserting new user %s after multiple retries: %w", username, err)
	}

	logger.L().Info("user created", zap.String("user_id", newUser.ID.Hex()), zap.String("username", username))
	return newUser, nil
}

// FindByUsername finds a user by username.
// Returns nil and mongo.ErrNoDocuments if not found.
func (s *userService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	collection := s.db.Collection(usersCollection)
	filter := bson.M{"username": username}

	err := collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by username %s: %w", username, err)
	}
	return &user, nil
}

// FindByID finds a user by their ID.
func (s *userService) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	var user models.User
	collection := s.db.Collection(usersCollection)
	filter := bson.M{"_id": userID}

	err := collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID.Hex(), err)
	}
	return &user, nil
}

// UpdateUser updates mutable profile fields. The caller supplies BSON field
// names; anything outside the allowed set is rejected. Passwords must arrive
// already hashed.
func (s *userService) UpdateUser(ctx context.Context, userID primitive.ObjectID, updates map[string]interface{}) (*models.User, error) {
	collection := s.db.Collection(usersCollection)

	allowedUpdates := bson.M{}
	for key, value := range updates {
		switch key {
		case "username", "email", "password", "avatar":
			allowedUpdates[key] = value
		default:
			return nil, fmt.Errorf("field '%s' cannot be updated via UpdateUser", key)
		}
	}
	if len(allowedUpdates) == 0 {
		return nil, fmt.Errorf("no valid fields provided for update")
	}
	allowedUpdates["updated_at"] = time.Now().UTC()

	filter := bson.M{"_id": userID}
	update := bson.M{"$set": allowedUpdates}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updatedUser models.User
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updatedUser)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "email") {
				return nil, ErrEmailExists
			}
			return nil, ErrUsernameExists
		}
		return nil, fmt.Errorf("failed to update user %s: %w", userID.Hex(), err)
	}

	return &updatedUser, nil
}

// DeleteUserAndListings removes a user and all their listings. It returns the
// image URLs of the deleted listings so the caller can enqueue storage
// cleanup. Deleting a user without deleting their listings would orphan them;
// the cascade policy is documented in DESIGN.md.
func (s *userService) DeleteUserAndListings(ctx context.Context, userID primitive.ObjectID) ([]string, error) {
	collection := s.db.Collection(usersCollection)

	result, err := collection.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return nil, fmt.Errorf("error deleting user %s: %w", userID.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return nil, mongo.ErrNoDocuments
	}

	imageURLs, err := s.listingSvc.DeleteListingsByUser(ctx, userID)
	if err != nil {
		// The user document is already gone; surface the partial failure.
		return nil, fmt.Errorf("user %s deleted but cascading listing delete failed: %w", userID.Hex(), err)
	}

	logger.L().Info("user deleted with listings",
		zap.String("user_id", userID.Hex()),
		zap.Int("orphaned_images", len(imageURLs)))
	return imageURLs, nil
}
