package types

import (
	"time"

	"github.com/google/uuid"
)

// Pet type enum values.
const (
	PetTypeDog   = "Dog"
	PetTypeCat   = "Cat"
	PetTypeBird  = "Bird"
	PetTypeRat   = "Rat"
	PetTypeOther = "Other"
)

// Urgency enum values.
const (
	UrgencyLow      = "Low"
	UrgencyMedium   = "Medium"
	UrgencyHigh     = "High"
	UrgencyCritical = "Critical"
)

// Status enum values. Transitions between them are unconstrained.
const (
	StatusAvailable = "Available"
	StatusAdopted   = "Adopted"
	StatusFostered  = "Fostered"
)

// Field length bounds enforced on create and update.
const (
	MaxPetNameLen     = 100
	MaxDescriptionLen = 1000
	MaxTraitsLen      = 200
	MaxCommentLen     = 500
)

// Pet represents an adoption listing.
//
// A pet is soft-deleted by clearing IsActive; inactive pets are excluded
// from every public read path but the row and its comments and cheers
// are retained.
type Pet struct {
	// ID is the unique identifier of the pet listing.
	ID int `json:"id" db:"id"`

	// Name is the pet's display name (at most 100 characters).
	Name string `json:"name" db:"name"`

	// Type is one of Dog, Cat, Bird, Rat or Other.
	Type string `json:"type" db:"type"`

	// Age is a free-text age description ("2 years", "6 months").
	Age string `json:"age" db:"age"`

	// Location is a free-text place description.
	Location string `json:"location" db:"location"`

	// Latitude and Longitude are optional geocoordinates for the listing.
	Latitude  *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" db:"longitude"`

	// Description is the free-text listing body (at most 1000 characters).
	Description string `json:"description" db:"description"`

	// ImageURL points at the listing photo, if any.
	ImageURL string `json:"imageUrl,omitempty" db:"image_url"`

	// ContactName and ContactNumber identify whom to reach about adoption.
	ContactName   string `json:"contactName" db:"contact_name"`
	ContactNumber string `json:"contactNumber" db:"contact_number"`

	// Urgency is one of Low, Medium, High or Critical. Defaults to Medium.
	Urgency string `json:"urgency" db:"urgency"`

	// Status is one of Available, Adopted or Fostered. Defaults to Available.
	Status string `json:"status" db:"status"`

	// Traits is a free-text trait summary (at most 200 characters).
	Traits string `json:"traits,omitempty" db:"traits"`

	// PostedBy is the owning user, populated as a public summary.
	PostedBy PublicUser `json:"postedBy" db:"posted_by"`

	// Comments is the ordered comment list, oldest first.
	Comments []Comment `json:"comments"`

	// Cheers lists the users currently cheering this pet. Each user
	// appears at most once.
	Cheers []PublicUser `json:"cheers"`

	// CheersCount is len(Cheers), denormalized for clients.
	CheersCount int `json:"cheersCount"`

	// Views counts detail fetches. It only ever increases.
	Views int `json:"views" db:"views"`

	// IsActive is the soft-delete marker.
	IsActive bool `json:"isActive" db:"is_active"`

	// CreatedAt is the timestamp at which the listing was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the listing.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Comment is a single comment on a pet listing. Comment ids are unique
// across all pets, so a comment can be removed by id alone.
type Comment struct {
	// ID is the globally unique identifier of the comment.
	ID uuid.UUID `json:"id" db:"id"`

	// PetID references the parent pet listing.
	PetID int `json:"petId" db:"pet_id"`

	// Text is the comment body (1 to 500 characters).
	Text string `json:"text" db:"text"`

	// Author is the commenting user, populated as a public summary.
	Author PublicUser `json:"author"`

	// CreatedAt is the server-assigned creation timestamp. Display order
	// is insertion order, oldest first.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// PetStats aggregates counters over active pets, optionally scoped to
// one owner. Computed fresh on every call.
type PetStats struct {
	TotalPets     int            `json:"totalPets"`
	TotalCheers   int            `json:"totalCheers"`
	TotalComments int            `json:"totalComments"`
	TotalViews    int            `json:"totalViews"`
	ByStatus      map[string]int `json:"byStatus"`
	ByType        map[string]int `json:"byType"`
}

// Pagination is the page metadata returned alongside list results.
type Pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
	Limit int `json:"limit"`
}

// ValidPetType reports whether value is a member of the pet type enum.
func ValidPetType(value string) bool {
	switch value {
	case PetTypeDog, PetTypeCat, PetTypeBird, PetTypeRat, PetTypeOther:
		return true
	}
	return false
}

// ValidUrgency reports whether value is a member of the urgency enum.
func ValidUrgency(value string) bool {
	switch value {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// ValidStatus reports whether value is a member of the status enum.
func ValidStatus(value string) bool {
	switch value {
	case StatusAvailable, StatusAdopted, StatusFostered:
		return true
	}
	return false
}
