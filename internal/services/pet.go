package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pawfinder/apiserver/internal/store"
	"github.com/pawfinder/apiserver/types"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

var validate = validator.New()

// PetRepository defines persistence operations for pets, comments and cheers.
type PetRepository interface {
	List(ctx context.Context, q store.ListQuery) ([]types.Pet, int, error)
	Get(ctx context.Context, id int) (types.Pet, error)
	IncrementViews(ctx context.Context, id int) (int, error)
	Create(ctx context.Context, pet types.Pet) (types.Pet, error)
	Update(ctx context.Context, pet types.Pet) (types.Pet, error)
	SetInactive(ctx context.Context, id int) error
	AddComment(ctx context.Context, comment types.Comment) (types.Comment, error)
	GetComment(ctx context.Context, id uuid.UUID) (types.Comment, error)
	DeleteComment(ctx context.Context, id uuid.UUID) error
	HasCheer(ctx context.Context, petID, userID int) (bool, error)
	AddCheer(ctx context.Context, petID, userID int) error
	RemoveCheer(ctx context.Context, petID, userID int) error
	CountCheers(ctx context.Context, petID int) (int, error)
	Stats(ctx context.Context, ownerID *int) (types.PetStats, error)
}

// Notifier fans pet events out to subscribed clients. Delivery is
// best-effort; implementations must never block the caller on failure.
type Notifier interface {
	CommentAdded(petID int, comment types.Comment)
	CheerChanged(petID int, count int, cheered bool)
}

// PetService is the sole authority over pet listing state transitions
// and read views.
type PetService struct {
	repo     PetRepository
	notifier Notifier
}

func NewPetService(repo PetRepository, notifier Notifier) *PetService {
	return &PetService{repo: repo, notifier: notifier}
}

// ListPetsQuery carries the public search/filter/page parameters.
type ListPetsQuery struct {
	Search  string
	Type    string
	Status  string
	Urgency string
	OwnerID *int
	Sort    string
	Page    int
	Limit   int
}

// PetPage is one page of listings plus pagination metadata.
type PetPage struct {
	Items      []types.Pet
	Pagination types.Pagination
}

// CreatePetParams is the validated field set for a new listing.
type CreatePetParams struct {
	Name          string   `json:"name" validate:"required,max=100"`
	Type          string   `json:"type" validate:"required,oneof=Dog Cat Bird Rat Other"`
	Age           string   `json:"age" validate:"required"`
	Location      string   `json:"location" validate:"required"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Description   string   `json:"description" validate:"required,max=1000"`
	ImageURL      string   `json:"imageUrl"`
	ContactName   string   `json:"contactName" validate:"required"`
	ContactNumber string   `json:"contactNumber" validate:"required"`
	Urgency       string   `json:"urgency" validate:"omitempty,oneof=Low Medium High Critical"`
	Traits        string   `json:"traits" validate:"omitempty,max=200"`
}

// UpdatePetParams is a partial field set; nil fields are left unchanged.
type UpdatePetParams struct {
	Name          *string  `json:"name"`
	Type          *string  `json:"type"`
	Age           *string  `json:"age"`
	Location      *string  `json:"location"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Description   *string  `json:"description"`
	ImageURL      *string  `json:"imageUrl"`
	ContactName   *string  `json:"contactName"`
	ContactNumber *string  `json:"contactNumber"`
	Urgency       *string  `json:"urgency"`
	Status        *string  `json:"status"`
	Traits        *string  `json:"traits"`
}

// List returns one page of active pets. An empty result is an empty
// page, never an error.
func (s *PetService) List(ctx context.Context, q ListPetsQuery) (PetPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Type != "" && !types.ValidPetType(q.Type) {
		return PetPage{}, validationError("unknown pet type %q", q.Type)
	}
	if q.Status != "" && !types.ValidStatus(q.Status) {
		return PetPage{}, validationError("unknown status %q", q.Status)
	}
	if q.Urgency != "" && !types.ValidUrgency(q.Urgency) {
		return PetPage{}, validationError("unknown urgency %q", q.Urgency)
	}
	sort := store.SortNewest
	if q.Sort == "oldest" {
		sort = store.SortOldest
	}

	items, total, err := s.repo.List(ctx, store.ListQuery{
		Search:  strings.TrimSpace(q.Search),
		Type:    q.Type,
		Status:  q.Status,
		Urgency: q.Urgency,
		OwnerID: q.OwnerID,
		Sort:    sort,
		Offset:  (q.Page - 1) * q.Limit,
		Limit:   q.Limit,
	})
	if err != nil {
		return PetPage{}, err
	}

	return PetPage{
		Items: items,
		Pagination: types.Pagination{
			Page:  q.Page,
			Pages: int(math.Ceil(float64(total) / float64(q.Limit))),
			Total: total,
			Limit: q.Limit,
		},
	}, nil
}

// Get returns one active pet and counts the view. The counter is bumped
// atomically and persisted before the pet is returned; every call adds
// exactly one view, duplicate callers included.
func (s *PetService) Get(ctx context.Context, id int) (types.Pet, error) {
	if _, err := s.repo.IncrementViews(ctx, id); err != nil {
		return types.Pet{}, err
	}
	return s.repo.Get(ctx, id)
}

// Create validates params and stores a new listing owned by owner.
func (s *PetService) Create(ctx context.Context, owner types.User, params CreatePetParams) (types.Pet, error) {
	params.Name = strings.TrimSpace(params.Name)
	params.Age = strings.TrimSpace(params.Age)
	params.Location = strings.TrimSpace(params.Location)
	params.Description = strings.TrimSpace(params.Description)
	params.ContactName = strings.TrimSpace(params.ContactName)
	params.ContactNumber = strings.TrimSpace(params.ContactNumber)

	if err := validate.Struct(params); err != nil {
		return types.Pet{}, validationError("%s", fieldErrorMessage(err))
	}
	if params.Urgency == "" {
		params.Urgency = types.UrgencyMedium
	}

	pet := types.Pet{
		Name:          params.Name,
		Type:          params.Type,
		Age:           params.Age,
		Location:      params.Location,
		Latitude:      params.Latitude,
		Longitude:     params.Longitude,
		Description:   params.Description,
		ImageURL:      params.ImageURL,
		ContactName:   params.ContactName,
		ContactNumber: params.ContactNumber,
		Urgency:       params.Urgency,
		Status:        types.StatusAvailable,
		Traits:        params.Traits,
		PostedBy:      owner.Public(),
		Comments:      []types.Comment{},
		Cheers:        []types.PublicUser{},
		Views:         0,
		IsActive:      true,
	}
	return s.repo.Create(ctx, pet)
}

// Update applies a partial field set. Only the owner or an admin may
// update; absent fields keep their current values, and an empty payload
// only refreshes the modification timestamp.
func (s *PetService) Update(ctx context.Context, id int, actor types.User, params UpdatePetParams) (types.Pet, error) {
	pet, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Pet{}, err
	}
	if !canManage(pet, actor) {
		return types.Pet{}, ErrForbidden
	}
	if err := applyUpdate(&pet, params); err != nil {
		return types.Pet{}, err
	}
	if _, err := s.repo.Update(ctx, pet); err != nil {
		return types.Pet{}, err
	}
	return s.repo.Get(ctx, id)
}

// SoftDelete marks the pet inactive, hiding it from all public views.
// A second call observes NotFound, since the pet is already excluded
// from lookup.
func (s *PetService) SoftDelete(ctx context.Context, id int, actor types.User) error {
	pet, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(pet, actor) {
		return ErrForbidden
	}
	return s.repo.SetInactive(ctx, id)
}

// AddComment appends a comment and broadcasts it to the pet's channel.
// The author fields in the event come from the caller's session, not a
// re-fetch.
func (s *PetService) AddComment(ctx context.Context, petID int, author types.User, text string) (types.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Comment{}, validationError("comment text is required")
	}
	if utf8.RuneCountInString(text) > types.MaxCommentLen {
		return types.Comment{}, validationError("comment text exceeds %d characters", types.MaxCommentLen)
	}

	if _, err := s.repo.Get(ctx, petID); err != nil {
		return types.Comment{}, err
	}

	comment := types.Comment{
		ID:        uuid.New(),
		PetID:     petID,
		Text:      text,
		Author:    author.Public(),
		CreatedAt: time.Now(),
	}
	created, err := s.repo.AddComment(ctx, comment)
	if err != nil {
		return types.Comment{}, err
	}

	if s.notifier != nil {
		s.notifier.CommentAdded(petID, created)
	}
	return created, nil
}

// RemoveComment deletes a comment by its globally unique id. Only the
// comment's author or an admin may remove it. Removal is not broadcast.
func (s *PetService) RemoveComment(ctx context.Context, commentID uuid.UUID, actor types.User) error {
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.Author.ID != actor.ID && !actor.IsAdmin() {
		return ErrForbidden
	}
	return s.repo.DeleteComment(ctx, commentID)
}

// ToggleCheer flips the caller's membership in the pet's cheer set and
// broadcasts the new count. Repeated calls oscillate.
//
// The membership read and the following write are two round trips; two
// concurrent toggles by the same user race and the last write wins.
// That weak consistency is deliberate for this low-contention feature.
func (s *PetService) ToggleCheer(ctx context.Context, petID int, actor types.User) (cheered bool, count int, err error) {
	if _, err := s.repo.Get(ctx, petID); err != nil {
		return false, 0, err
	}

	has, err := s.repo.HasCheer(ctx, petID, actor.ID)
	if err != nil {
		return false, 0, err
	}
	if has {
		err = s.repo.RemoveCheer(ctx, petID, actor.ID)
	} else {
		err = s.repo.AddCheer(ctx, petID, actor.ID)
	}
	if err != nil {
		return false, 0, err
	}

	count, err = s.repo.CountCheers(ctx, petID)
	if err != nil {
		return false, 0, err
	}
	cheered = !has

	if s.notifier != nil {
		s.notifier.CheerChanged(petID, count, cheered)
	}
	return cheered, count, nil
}

// Stats aggregates over all active pets, or one owner's active pets.
func (s *PetService) Stats(ctx context.Context, ownerID *int) (types.PetStats, error) {
	return s.repo.Stats(ctx, ownerID)
}

// SetImageURL records the stored image location on the listing. Same
// authorization as Update.
func (s *PetService) SetImageURL(ctx context.Context, id int, actor types.User, imageURL string) (types.Pet, error) {
	return s.Update(ctx, id, actor, UpdatePetParams{ImageURL: &imageURL})
}

func canManage(pet types.Pet, actor types.User) bool {
	return pet.PostedBy.ID == actor.ID || actor.IsAdmin()
}

func applyUpdate(pet *types.Pet, params UpdatePetParams) error {
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" || utf8.RuneCountInString(name) > types.MaxPetNameLen {
			return validationError("name must be 1 to %d characters", types.MaxPetNameLen)
		}
		pet.Name = name
	}
	if params.Type != nil {
		if !types.ValidPetType(*params.Type) {
			return validationError("unknown pet type %q", *params.Type)
		}
		pet.Type = *params.Type
	}
	if params.Age != nil {
		age := strings.TrimSpace(*params.Age)
		if age == "" {
			return validationError("age must not be empty")
		}
		pet.Age = age
	}
	if params.Location != nil {
		location := strings.TrimSpace(*params.Location)
		if location == "" {
			return validationError("location must not be empty")
		}
		pet.Location = location
	}
	if params.Latitude != nil {
		pet.Latitude = params.Latitude
	}
	if params.Longitude != nil {
		pet.Longitude = params.Longitude
	}
	if params.Description != nil {
		description := strings.TrimSpace(*params.Description)
		if description == "" || utf8.RuneCountInString(description) > types.MaxDescriptionLen {
			return validationError("description must be 1 to %d characters", types.MaxDescriptionLen)
		}
		pet.Description = description
	}
	if params.ImageURL != nil {
		pet.ImageURL = *params.ImageURL
	}
	if params.ContactName != nil {
		contactName := strings.TrimSpace(*params.ContactName)
		if contactName == "" {
			return validationError("contact name must not be empty")
		}
		pet.ContactName = contactName
	}
	if params.ContactNumber != nil {
		contactNumber := strings.TrimSpace(*params.ContactNumber)
		if contactNumber == "" {
			return validationError("contact number must not be empty")
		}
		pet.ContactNumber = contactNumber
	}
	if params.Urgency != nil {
		if !types.ValidUrgency(*params.Urgency) {
			return validationError("unknown urgency %q", *params.Urgency)
		}
		pet.Urgency = *params.Urgency
	}
	if params.Status != nil {
		if !types.ValidStatus(*params.Status) {
			return validationError("unknown status %q", *params.Status)
		}
		pet.Status = *params.Status
	}
	if params.Traits != nil {
		if utf8.RuneCountInString(*params.Traits) > types.MaxTraitsLen {
			return validationError("traits exceeds %d characters", types.MaxTraitsLen)
		}
		pet.Traits = *params.Traits
	}
	return nil
}

func fieldErrorMessage(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return err.Error()
	}
	first := fieldErrors[0]
	switch first.Tag() {
	case "required":
		return strings.ToLower(first.Field()) + " is required"
	case "max":
		return strings.ToLower(first.Field()) + " exceeds " + first.Param() + " characters"
	case "oneof":
		return strings.ToLower(first.Field()) + " must be one of " + first.Param()
	default:
		return strings.ToLower(first.Field()) + " is invalid"
	}
}
