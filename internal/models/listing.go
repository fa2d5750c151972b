package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ListingType tags a listing as for sale or for rent.
type ListingType string

const (
	ListingTypeSale ListingType = "sale"
	ListingTypeRent ListingType = "rent"
)

// Listing represents a property listing. UserRef is the owner reference set
// at creation time and checked on every mutation.
type Listing struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name          string             `bson:"name" json:"name"`
	Description   string             `bson:"description" json:"description"`
	Address       string             `bson:"address" json:"address"`
	ImageURLs     []string           `bson:"image_urls" json:"imageUrls"`
	Bedrooms      int                `bson:"bedrooms" json:"bedrooms"`
	Bathrooms     int                `bson:"bathrooms" json:"bathrooms"`
	RegularPrice  float64            `bson:"regular_price" json:"regularPrice"`
	DiscountPrice float64            `bson:"discount_price" json:"discountPrice"`
	Offer         bool               `bson:"offer" json:"offer"`
	Parking       bool               `bson:"parking" json:"parking"`
	Furnished     bool               `bson:"furnished" json:"furnished"`
	Type          ListingType        `bson:"type" json:"type"`
	UserRef       primitive.ObjectID `bson:"user_ref" json:"userRef"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}
