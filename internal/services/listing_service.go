package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"nestlist/internal/config"
	"nestlist/internal/db"
	"nestlist/internal/logger"
	"nestlist/internal/models"
	"nestlist/internal/validation"
)

// ErrNotOwner is returned when a mutation targets a listing owned by someone else.
var ErrNotOwner = errors.New("listing does not belong to this user")

// SearchParams carries the query-string filters of the listing search route.
// Nil boolean filters match both values, mirroring the original UI where an
// unchecked filter means "don't care".
type SearchParams struct {
	SearchTerm string
	Type       string // "sale", "rent" or "" / "all"
	Offer      *bool
	Furnished  *bool
	Parking    *bool
	Sort       string // BSON field name, default "created_at"
	Order      string // "asc" or "desc"
	Limit      int
	StartIndex int
}

// IListingService defines the interface for listing-related operations.
type IListingService interface {
	CreateListing(ctx context.Context, userID primitive.ObjectID, in *validation.ListingInput) (*models.Listing, error)
	FindListingByID(ctx context.Context, listingID primitive.ObjectID) (*models.Listing, error)
	UpdateListing(ctx context.Context, listingID, userID primitive.ObjectID, in *validation.ListingInput) (*models.Listing, error)
	DeleteListing(ctx context.Context, listingID, userID primitive.ObjectID) (*models.Listing, error)
	AdminDeleteListing(ctx context.Context, listingID primitive.ObjectID) (*models.Listing, error)
	FindListingsByUserID(ctx context.Context, userID primitive.ObjectID) ([]models.Listing, error)
	SearchListings(ctx context.Context, params *SearchParams) ([]models.Listing, error)
	FindAllListings(ctx context.Context) ([]models.Listing, error)
	DeleteListingsByUser(ctx context.Context, userID primitive.ObjectID) ([]string, error)
}

const listingsCollection = "listings"

// listingService implements IListingService. rdb may be nil, in which case
// the read cache is disabled.
type listingService struct {
	db  *mongo.Database
	cfg *config.Config
	rdb *redis.Client
}

// NewListingService creates a new ListingService.
func NewListingService(database *mongo.Database, cfg *config.Config, rdb *redis.Client) IListingService {
	return &listingService{db: database, cfg: cfg, rdb: rdb}
}

// CreateListing creates a new listing owned by userID.
func (s *listingService) CreateListing(ctx context.Context, userID primitive.ObjectID, in *validation.ListingInput) (*models.Listing, error) {
	collection := s.db.Collection(listingsCollection)
	now := time.Now().UTC()

	var newListing *models.Listing

	operation := func() error {
		newListing = &models.Listing{
			ID:            primitive.NewObjectID(),
			Name:          in.Name,
			Description:   in.Description,
			Address:       in.Address,
			ImageURLs:     in.ImageURLs,
			Bedrooms:      in.Bedrooms,
			Bathrooms:     in.Bathrooms,
			RegularPrice:  in.RegularPrice,
			DiscountPrice: in.DiscountPrice,
			Offer:         in.Offer,
			Parking:       in.Parking,
			Furnished:     in.Furnished,
			Type:          in.Type,
			UserRef:       userID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		_, insertErr := collection.InsertOne(ctx, newListing)
		return insertErr
	}

	err := db.Try(operation)
	if err != nil {
		return nil, fmt.Errorf("failed to insert new listing for user %s after multiple retries: %w", userID.Hex(), err)
	}

	logger.L().Info("listing created",
		zap.String("listing_id", newListing.ID.Hex()),
		zap.String("user_id", userID.Hex()))
	return newListing, nil
}

// FindListingByID finds a listing by its ID, consulting the redis read cache
// first. It does NOT check ownership.
func (s *listingService) FindListingByID(ctx context.Context, listingID primitive.ObjectID) (*models.Listing, error) {
	if cached := s.cacheGet(ctx, listingID); cached != nil {
		return cached, nil
	}

	var listing models.Listing
	collection := s.db.Collection(listingsCollection)
	err := collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding listing by ID %s: %w", listingID.Hex(), err)
	}

	s.cacheSet(ctx, &listing)
	return &listing, nil
}

// UpdateListing replaces the mutable fields of a listing owned by userID.
// Returns ErrNotOwner when the listing exists but belongs to someone else.
func (s *listingService) UpdateListing(ctx context.Context, listingID, userID primitive.ObjectID, in *validation.ListingInput) (*models.Listing, error) {
	collection := s.db.Collection(listingsCollection)

	filter := bson.M{"_id": listingID, "user_ref": userID}
	update := bson.M{"$set": bson.M{
		"name":           in.Name,
		"description":    in.Description,
		"address":        in.Address,
		"image_urls":     in.ImageURLs,
		"bedrooms":       in.Bedrooms,
		"bathrooms":      in.Bathrooms,
		"regular_price":  in.RegularPrice,
		"discount_price": in.DiscountPrice,
		"offer":          in.Offer,
		"parking":        in.Parking,
		"furnished":      in.Furnished,
		"type":           in.Type,
		"updated_at":     time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updatedListing models.Listing
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updatedListing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.classifyMiss(ctx, listingID)
		}
		return nil, fmt.Errorf("failed to update listing %s: %w", listingID.Hex(), err)
	}

	s.cacheDel(ctx, listingID)
	return &updatedListing, nil
}

// DeleteListing removes a listing owned by userID and returns the deleted
// document so callers can clean up its stored images.
func (s *listingService) DeleteListing(ctx context.Context, listingID, userID primitive.ObjectID) (*models.Listing, error) {
	collection := s.db.Collection(listingsCollection)

	var deleted models.Listing
	err := collection.FindOneAndDelete(ctx, bson.M{"_id": listingID, "user_ref": userID}).Decode(&deleted)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.classifyMiss(ctx, listingID)
		}
		return nil, fmt.Errorf("failed to delete listing %s: %w", listingID.Hex(), err)
	}

	s.cacheDel(ctx, listingID)
	return &deleted, nil
}

// AdminDeleteListing removes any listing regardless of owner. Role
// enforcement happens in middleware; this method trusts its caller.
func (s *listingService) AdminDeleteListing(ctx context.Context, listingID primitive.ObjectID) (*models.Listing, error) {
	collection := s.db.Collection(listingsCollection)

	var deleted models.Listing
	err := collection.FindOneAndDelete(ctx, bson.M{"_id": listingID}).Decode(&deleted)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to admin-delete listing %s: %w", listingID.Hex(), err)
	}

	s.cacheDel(ctx, listingID)
	logger.L().Info("listing removed by admin", zap.String("listing_id", listingID.Hex()))
	return &deleted, nil
}

// FindListingsByUserID returns all listings owned by userID, newest first.
func (s *listingService) FindListingsByUserID(ctx context.Context, userID primitive.ObjectID) ([]models.Listing, error) {
	collection := s.db.Collection(listingsCollection)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := collection.Find(ctx, bson.M{"user_ref": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding listings for user %s: %w", userID.Hex(), err)
	}
	defer cursor.Close(ctx)

	listings := []models.Listing{}
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("error decoding listings for user %s: %w", userID.Hex(), err)
	}
	return listings, nil
}

// SearchListings runs the filtered, paginated listing query.
func (s *listingService) SearchListings(ctx context.Context, params *SearchParams) ([]models.Listing, error) {
	collection := s.db.Collection(listingsCollection)

	filter := bson.M{}
	if params.SearchTerm != "" {
		filter["name"] = bson.M{"$regex": params.SearchTerm, "$options": "i"}
	}
	if params.Type != "" && params.Type != "all" {
		filter["type"] = params.Type
	}
	if params.Offer != nil {
		filter["offer"] = *params.Offer
	}
	if params.Furnished != nil {
		filter["furnished"] = *params.Furnished
	}
	if params.Parking != nil {
		filter["parking"] = *params.Parking
	}

	sortField := params.Sort
	if sortField == "" {
		sortField = "created_at"
	}
	sortOrder := -1
	if params.Order == "asc" {
		sortOrder = 1
	}

	limit := params.Limit
	if limit <= 0 {
		limit = s.cfg.ListingPageSize
	}

	opts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: sortOrder}}).
		SetSkip(int64(params.StartIndex)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error searching listings: %w", err)
	}
	defer cursor.Close(ctx)

	listings := []models.Listing{}
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("error decoding listing search results: %w", err)
	}
	return listings, nil
}

// FindAllListings returns every listing, newest first. Used by the admin
// moderation view.
func (s *listingService) FindAllListings(ctx context.Context) ([]models.Listing, error) {
	collection := s.db.Collection(listingsCollection)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing all listings: %w", err)
	}
	defer cursor.Close(ctx)

	listings := []models.Listing{}
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("error decoding all listings: %w", err)
	}
	return listings, nil
}

// DeleteListingsByUser removes every listing owned by userID and returns
// their image URLs for storage cleanup. Part of the user-delete cascade.
func (s *listingService) DeleteListingsByUser(ctx context.Context, userID primitive.ObjectID) ([]string, error) {
	listings, err := s.FindListingsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	imageURLs := []string{}
	for _, l := range listings {
		imageURLs = append(imageURLs, l.ImageURLs...)
		s.cacheDel(ctx, l.ID)
	}

	collection := s.db.Collection(listingsCollection)
	if _, err := collection.DeleteMany(ctx, bson.M{"user_ref": userID}); err != nil {
		return nil, fmt.Errorf("error deleting listings for user %s: %w", userID.Hex(), err)
	}
	return imageURLs, nil
}

// --- read cache ---

func listingCacheKey(id primitive.ObjectID) string {
	return "listing:" + id.Hex()
}

func (s *listingService) cacheGet(ctx context.Context, id primitive.ObjectID) *models.Listing {
	if s.rdb == nil || s.cfg.GetCacheTTL <= 0 {
		return nil
	}
	data, err := s.rdb.Get(ctx, listingCacheKey(id)).Bytes()
	if err != nil {
		return nil // miss or redis failure, fall through to mongo
	}
	var listing models.Listing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil
	}
	return &listing
}

func (s *listingService) cacheSet(ctx context.Context, listing *models.Listing) {
	if s.rdb == nil || s.cfg.GetCacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(listing)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, listingCacheKey(listing.ID), data, s.cfg.GetCacheTTL).Err(); err != nil {
		logger.L().Warn("failed to cache listing", zap.String("listing_id", listing.ID.Hex()), zap.Error(err))
	}
}

func (s *listingService) cacheDel(ctx context.Context, id primitive.ObjectID) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, listingCacheKey(id)).Err(); err != nil {
		logger.L().Warn("failed to invalidate listing cache", zap.String("listing_id", id.Hex()), zap.Error(err))
	}
}

// classifyMiss distinguishes a missing listing from an ownership failure
// after a filtered mutation matched nothing.
func (s *listingService) classifyMiss(ctx context.Context, listingID primitive.ObjectID) error {
	collection := s.db.Collection(listingsCollection)
	var listing models.Listing
	err := collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return mongo.ErrNoDocuments
	}
	if err != nil {
		return fmt.Errorf("error checking listing %s: %w", listingID.Hex(), err)
	}
	return ErrNotOwner
}
