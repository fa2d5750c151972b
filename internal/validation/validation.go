// Package validation holds the server-side payload checks for signup and
// listing mutations. Every rule enforced by the web client is re-checked
// here; the client is not a security boundary.
package validation

import (
	"strings"
	"unicode"

	"nestlist/internal/apperr"
	"nestlist/internal/models"
)

// ReservedUsername cannot be claimed at signup. The admin signin path owns it.
const ReservedUsername = "admin"

const (
	MinPasswordLength = 8
	AadhaarLength     = 12
	MaxListingImages  = 6
)

// SignupInput is the payload accepted by the signup route.
type SignupInput struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Aadhaar      string `json:"aadhaar"`
	Avatar       string `json:"avatar"`
	CaptchaToken string `json:"captchaToken"`
}

// ListingInput is the payload accepted by the listing create and update routes.
type ListingInput struct {
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Address       string             `json:"address"`
	ImageURLs     []string           `json:"imageUrls"`
	Bedrooms      int                `json:"bedrooms"`
	Bathrooms     int                `json:"bathrooms"`
	RegularPrice  float64            `json:"regularPrice"`
	DiscountPrice float64            `json:"discountPrice"`
	Offer         bool               `json:"offer"`
	Parking       bool               `json:"parking"`
	Furnished     bool               `json:"furnished"`
	Type          models.ListingType `json:"type"`
}

// UserUpdateInput is the payload accepted by the user update route. Empty
// fields are left unchanged.
type UserUpdateInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   string `json:"avatar"`
}

// ValidateSignup checks a signup payload. Returns a *apperr.Error of kind
// Validation on the first failed rule, nil otherwise.
func ValidateSignup(in *SignupInput) error {
	if strings.TrimSpace(in.Username) == "" {
		return apperr.Validation("Username is required")
	}
	if strings.ToLower(strings.TrimSpace(in.Username)) == ReservedUsername {
		return apperr.Validation("This username is not allowed")
	}
	if !isValidEmail(in.Email) {
		return apperr.Validation("A valid email address is required")
	}
	if err := ValidatePassword(in.Password); err != nil {
		return err
	}
	if len(in.Aadhaar) < AadhaarLength {
		return apperr.Validation("Aadhaar should have a length of 12 digits")
	}
	for _, r := range in.Aadhaar {
		if !unicode.IsDigit(r) {
			return apperr.Validation("Aadhaar must contain only digits")
		}
	}
	return nil
}

// ValidatePassword enforces the password policy: at least 8 characters,
// mixed case, at least one digit.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperr.Validation("Password should be at least 8 characters long")
	}
	var hasLower, hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLower || !hasUpper {
		return apperr.Validation("Password should contain a mix of uppercase and lowercase letters")
	}
	if !hasDigit {
		return apperr.Validation("Password should contain at least one digit")
	}
	return nil
}

// ValidateListing checks a listing create/update payload.
func ValidateListing(in *ListingInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("Name is required")
	}
	if len(in.ImageURLs) < 1 {
		return apperr.Validation("You must upload at least one image!")
	}
	if len(in.ImageURLs) > MaxListingImages {
		return apperr.Validation("You can only upload 6 images per listing")
	}
	if in.Bedrooms < 1 || in.Bathrooms < 1 {
		return apperr.Validation("Bedrooms and bathrooms must be positive")
	}
	if in.RegularPrice <= 0 {
		return apperr.Validation("Regular price must be positive")
	}
	if in.Offer && in.DiscountPrice > in.RegularPrice {
		return apperr.Validation("Discount price must be lower than regular price")
	}
	if in.Type != models.ListingTypeSale && in.Type != models.ListingTypeRent {
		return apperr.Validation("Type must be either sale or rent")
	}
	return nil
}

// ValidateUserUpdate checks the provided fields of a profile update.
func ValidateUserUpdate(in *UserUpdateInput) error {
	if in.Username != "" && strings.ToLower(strings.TrimSpace(in.Username)) == ReservedUsername {
		return apperr.Validation("This username is not allowed")
	}
	if in.Email != "" && !isValidEmail(in.Email) {
		return apperr.Validation("A valid email address is required")
	}
	if in.Password != "" {
		if err := ValidatePassword(in.Password); err != nil {
			return err
		}
	}
	return nil
}

// isValidEmail does a minimal structural check. Real verification happens
// out of band; the store enforces uniqueness.
func isValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t")
}
