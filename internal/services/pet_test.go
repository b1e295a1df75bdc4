package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pawfinder/apiserver/internal/store"
	"github.com/pawfinder/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPetRepository struct {
	mock.Mock
}

func (m *MockPetRepository) List(ctx context.Context, q store.ListQuery) ([]types.Pet, int, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]types.Pet), args.Int(1), args.Error(2)
}

func (m *MockPetRepository) Get(ctx context.Context, id int) (types.Pet, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.Pet), args.Error(1)
}

func (m *MockPetRepository) IncrementViews(ctx context.Context, id int) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockPetRepository) Create(ctx context.Context, pet types.Pet) (types.Pet, error) {
	args := m.Called(ctx, pet)
	return args.Get(0).(types.Pet), args.Error(1)
}

func (m *MockPetRepository) Update(ctx context.Context, pet types.Pet) (types.Pet, error) {
	args := m.Called(ctx, pet)
	return args.Get(0).(types.Pet), args.Error(1)
}

func (m *MockPetRepository) SetInactive(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPetRepository) AddComment(ctx context.Context, comment types.Comment) (types.Comment, error) {
	args := m.Called(ctx, comment)
	return args.Get(0).(types.Comment), args.Error(1)
}

func (m *MockPetRepository) GetComment(ctx context.Context, id uuid.UUID) (types.Comment, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.Comment), args.Error(1)
}

func (m *MockPetRepository) DeleteComment(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPetRepository) HasCheer(ctx context.Context, petID, userID int) (bool, error) {
	args := m.Called(ctx, petID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPetRepository) AddCheer(ctx context.Context, petID, userID int) error {
	args := m.Called(ctx, petID, userID)
	return args.Error(0)
}

func (m *MockPetRepository) RemoveCheer(ctx context.Context, petID, userID int) error {
	args := m.Called(ctx, petID, userID)
	return args.Error(0)
}

func (m *MockPetRepository) CountCheers(ctx context.Context, petID int) (int, error) {
	args := m.Called(ctx, petID)
	return args.Int(0), args.Error(1)
}

func (m *MockPetRepository) Stats(ctx context.Context, ownerID *int) (types.PetStats, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(types.PetStats), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) CommentAdded(petID int, comment types.Comment) {
	m.Called(petID, comment)
}

func (m *MockNotifier) CheerChanged(petID int, count int, cheered bool) {
	m.Called(petID, count, cheered)
}

func testOwner() types.User {
	return types.User{ID: 1, Username: "ada", Role: types.RoleUser}
}

func testAdmin() types.User {
	return types.User{ID: 99, Username: "root", Role: types.RoleAdmin}
}

func activePet(ownerID int) types.Pet {
	return types.Pet{
		ID:            7,
		Name:          "Biscuit",
		Type:          types.PetTypeDog,
		Age:           "2 years",
		Location:      "Austin",
		Description:   "Friendly and housebroken.",
		ContactName:   "Ada",
		ContactNumber: "555-0100",
		Urgency:       types.UrgencyMedium,
		Status:        types.StatusAvailable,
		PostedBy:      types.PublicUser{ID: ownerID, Username: "ada"},
		Comments:      []types.Comment{},
		Cheers:        []types.PublicUser{},
		IsActive:      true,
	}
}

func validCreateParams() CreatePetParams {
	return CreatePetParams{
		Name:          "Biscuit",
		Type:          types.PetTypeDog,
		Age:           "2 years",
		Location:      "Austin",
		Description:   "Friendly and housebroken.",
		ContactName:   "Ada",
		ContactNumber: "555-0100",
	}
}

func TestCreatePetAppliesDefaults(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(pet types.Pet) bool {
		return pet.Status == types.StatusAvailable &&
			pet.Urgency == types.UrgencyMedium &&
			pet.Views == 0 &&
			pet.IsActive &&
			len(pet.Comments) == 0 && pet.Comments != nil &&
			len(pet.Cheers) == 0 && pet.Cheers != nil &&
			pet.PostedBy.ID == 1
	})).Return(activePet(1), nil)

	created, err := svc.Create(context.Background(), testOwner(), validCreateParams())

	assert.NoError(t, err)
	assert.Equal(t, types.StatusAvailable, created.Status)
	repo.AssertExpectations(t)
}

func TestCreatePetRejectsInvalidParams(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	cases := []struct {
		name   string
		mutate func(*CreatePetParams)
	}{
		{"missing name", func(p *CreatePetParams) { p.Name = "  " }},
		{"unknown type", func(p *CreatePetParams) { p.Type = "Dragon" }},
		{"unknown urgency", func(p *CreatePetParams) { p.Urgency = "Mild" }},
		{"missing contact", func(p *CreatePetParams) { p.ContactNumber = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validCreateParams()
			tc.mutate(&params)

			_, err := svc.Create(context.Background(), testOwner(), params)

			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGetPetCountsView(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	pet := activePet(1)
	pet.Views = 5
	repo.On("IncrementViews", mock.Anything, 7).Return(5, nil)
	repo.On("Get", mock.Anything, 7).Return(pet, nil)

	got, err := svc.Get(context.Background(), 7)

	assert.NoError(t, err)
	assert.Equal(t, 5, got.Views)
	repo.AssertExpectations(t)
}

func TestGetPetNotFound(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	repo.On("IncrementViews", mock.Anything, 404).Return(0, store.ErrNotFound)

	_, err := svc.Get(context.Background(), 404)

	assert.ErrorIs(t, err, store.ErrNotFound)
	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestUpdatePetForbiddenForStranger(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	repo.On("Get", mock.Anything, 7).Return(activePet(1), nil)

	stranger := types.User{ID: 2, Username: "eve", Role: types.RoleUser}
	name := "Renamed"
	_, err := svc.Update(context.Background(), 7, stranger, UpdatePetParams{Name: &name})

	assert.ErrorIs(t, err, ErrForbidden)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdatePetAllowedForAdmin(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	pet := activePet(1)
	repo.On("Get", mock.Anything, 7).Return(pet, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(p types.Pet) bool {
		return p.Status == types.StatusAdopted
	})).Return(pet, nil)

	status := types.StatusAdopted
	_, err := svc.Update(context.Background(), 7, testAdmin(), UpdatePetParams{Status: &status})

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestUpdatePetEmptyPayloadKeepsFields(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	pet := activePet(1)
	repo.On("Get", mock.Anything, 7).Return(pet, nil)
	repo.On("Update", mock.Anything, pet).Return(pet, nil)

	got, err := svc.Update(context.Background(), 7, testOwner(), UpdatePetParams{})

	assert.NoError(t, err)
	assert.Equal(t, pet.Name, got.Name)
	repo.AssertExpectations(t)
}

func TestUpdatePetRejectsInvalidField(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	repo.On("Get", mock.Anything, 7).Return(activePet(1), nil)

	bad := "Unknown"
	_, err := svc.Update(context.Background(), 7, testOwner(), UpdatePetParams{Status: &bad})

	assert.ErrorIs(t, err, ErrValidation)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestSoftDeleteByOwner(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	repo.On("Get", mock.Anything, 7).Return(activePet(1), nil)
	repo.On("SetInactive", mock.Anything, 7).Return(nil)

	err := svc.SoftDelete(context.Background(), 7, testOwner())

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestSoftDeleteTwiceReportsNotFound(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	// After the first delete the pet no longer resolves.
	repo.On("Get", mock.Anything, 7).Return(types.Pet{}, store.ErrNotFound)

	err := svc.SoftDelete(context.Background(), 7, testOwner())

	assert.ErrorIs(t, err, store.ErrNotFound)
	repo.AssertNotCalled(t, "SetInactive", mock.Anything, mock.Anything)
}

func TestAddCommentBroadcasts(t *testing.T) {
	repo := new(MockPetRepository)
	notifier := new(MockNotifier)
	svc := NewPetService(repo, notifier)

	repo.On("Get", mock.Anything, 7).Return(activePet(1), nil)
	repo.On("AddComment", mock.Anything, mock.MatchedBy(func(c types.Comment) bool {
		return c.PetID == 7 && c.Text == "So cute!" && c.Author.ID == 1 && c.ID != uuid.Nil
	})).Return(types.Comment{ID: uuid.New(), PetID: 7, Text: "So cute!"}, nil)
	notifier.On("CommentAdded", 7, mock.Anything).Return()

	_, err := svc.AddComment(context.Background(), 7, testOwner(), "  So cute!  ")

	assert.NoError(t, err)
	notifier.AssertExpectations(t)
}

func TestAddCommentValidation(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	_, err := svc.AddComment(context.Background(), 7, testOwner(), "   ")
	assert.ErrorIs(t, err, ErrValidation)

	long := make([]byte, types.MaxCommentLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = svc.AddComment(context.Background(), 7, testOwner(), string(long))
	assert.ErrorIs(t, err, ErrValidation)

	repo.AssertNotCalled(t, "AddComment", mock.Anything, mock.Anything)
}

func TestCommentLengthCountsRunes(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	repo.On("Get", mock.Anything, 7).Return(activePet(1), nil)
	repo.On("AddComment", mock.Anything, mock.Anything).
		Return(types.Comment{ID: uuid.New(), PetID: 7}, nil)

	// 500 runes of a two-byte character is within bounds even though it
	// exceeds 500 bytes.
	_, err := svc.AddComment(context.Background(), 7, testOwner(), strings.Repeat("ü", types.MaxCommentLen))
	assert.NoError(t, err)

	_, err = svc.AddComment(context.Background(), 7, testOwner(), strings.Repeat("ü", types.MaxCommentLen+1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateLengthBoundsMatchCreate(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	pet := activePet(1)
	repo.On("Get", mock.Anything, 7).Return(pet, nil)
	repo.On("Update", mock.Anything, mock.Anything).Return(pet, nil)

	// An accented name Create accepts must also pass Update.
	name := strings.Repeat("é", 80)
	params := validCreateParams()
	params.Name = name
	repo.On("Create", mock.Anything, mock.Anything).Return(pet, nil)
	_, err := svc.Create(context.Background(), testOwner(), params)
	assert.NoError(t, err)

	_, err = svc.Update(context.Background(), 7, testOwner(), UpdatePetParams{Name: &name})
	assert.NoError(t, err)

	tooLong := strings.Repeat("é", types.MaxPetNameLen+1)
	_, err = svc.Update(context.Background(), 7, testOwner(), UpdatePetParams{Name: &tooLong})
	assert.ErrorIs(t, err, ErrValidation)

	longTraits := strings.Repeat("ñ", types.MaxTraitsLen)
	_, err = svc.Update(context.Background(), 7, testOwner(), UpdatePetParams{Traits: &longTraits})
	assert.NoError(t, err)

	longDescription := strings.Repeat("ö", types.MaxDescriptionLen+1)
	_, err = svc.Update(context.Background(), 7, testOwner(), UpdatePetParams{Description: &longDescription})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRemoveCommentAuthorization(t *testing.T) {
	commentID := uuid.New()
	comment := types.Comment{ID: commentID, PetID: 7, Text: "hi", Author: types.PublicUser{ID: 1, Username: "ada"}}

	t.Run("author may remove", func(t *testing.T) {
		repo := new(MockPetRepository)
		svc := NewPetService(repo, nil)
		repo.On("GetComment", mock.Anything, commentID).Return(comment, nil)
		repo.On("DeleteComment", mock.Anything, commentID).Return(nil)

		assert.NoError(t, svc.RemoveComment(context.Background(), commentID, testOwner()))
		repo.AssertExpectations(t)
	})

	t.Run("admin may remove", func(t *testing.T) {
		repo := new(MockPetRepository)
		svc := NewPetService(repo, nil)
		repo.On("GetComment", mock.Anything, commentID).Return(comment, nil)
		repo.On("DeleteComment", mock.Anything, commentID).Return(nil)

		assert.NoError(t, svc.RemoveComment(context.Background(), commentID, testAdmin()))
		repo.AssertExpectations(t)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		repo := new(MockPetRepository)
		svc := NewPetService(repo, nil)
		repo.On("GetComment", mock.Anything, commentID).Return(comment, nil)

		stranger := types.User{ID: 3, Role: types.RoleUser}
		assert.ErrorIs(t, svc.RemoveComment(context.Background(), commentID, stranger), ErrForbidden)
		repo.AssertNotCalled(t, "DeleteComment", mock.Anything, mock.Anything)
	})
}

func TestToggleCheerRoundTrip(t *testing.T) {
	repo := new(MockPetRepository)
	notifier := new(MockNotifier)
	svc := NewPetService(repo, notifier)

	repo.On("Get", mock.Anything, 7).Return(activePet(1), nil)
	repo.On("HasCheer", mock.Anything, 7, 1).Return(false, nil).Once()
	repo.On("AddCheer", mock.Anything, 7, 1).Return(nil).Once()
	repo.On("CountCheers", mock.Anything, 7).Return(1, nil).Once()
	notifier.On("CheerChanged", 7, 1, true).Return().Once()

	cheered, count, err := svc.ToggleCheer(context.Background(), 7, testOwner())
	assert.NoError(t, err)
	assert.True(t, cheered)
	assert.Equal(t, 1, count)

	repo.On("HasCheer", mock.Anything, 7, 1).Return(true, nil).Once()
	repo.On("RemoveCheer", mock.Anything, 7, 1).Return(nil).Once()
	repo.On("CountCheers", mock.Anything, 7).Return(0, nil).Once()
	notifier.On("CheerChanged", 7, 0, false).Return().Once()

	cheered, count, err = svc.ToggleCheer(context.Background(), 7, testOwner())
	assert.NoError(t, err)
	assert.False(t, cheered)
	assert.Equal(t, 0, count)

	repo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestListClampsPagination(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	repo.On("List", mock.Anything, mock.MatchedBy(func(q store.ListQuery) bool {
		return q.Offset == 0 && q.Limit == defaultPageSize
	})).Return([]types.Pet{}, 0, nil).Once()

	page, err := svc.List(context.Background(), ListPetsQuery{Page: -3, Limit: 0})
	assert.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, 0, page.Pagination.Total)

	repo.On("List", mock.Anything, mock.MatchedBy(func(q store.ListQuery) bool {
		return q.Limit == maxPageSize
	})).Return([]types.Pet{}, 0, nil).Once()

	_, err = svc.List(context.Background(), ListPetsQuery{Page: 1, Limit: 5000})
	assert.NoError(t, err)

	repo.AssertExpectations(t)
}

func TestListRejectsUnknownFilterValues(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	_, err := svc.List(context.Background(), ListPetsQuery{Type: "Dragon"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.List(context.Background(), ListPetsQuery{Status: "Lost"})
	assert.ErrorIs(t, err, ErrValidation)

	repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestListComputesPageCount(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	repo.On("List", mock.Anything, mock.Anything).Return([]types.Pet{activePet(1)}, 21, nil)

	page, err := svc.List(context.Background(), ListPetsQuery{Page: 2, Limit: 10})

	assert.NoError(t, err)
	assert.Equal(t, 21, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.Pages)
	assert.Equal(t, 2, page.Pagination.Page)
}

func TestStatsPassesOwnerFilter(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	ownerID := 4
	want := types.PetStats{TotalPets: 2, ByStatus: map[string]int{types.StatusAvailable: 2}}
	repo.On("Stats", mock.Anything, &ownerID).Return(want, nil)

	got, err := svc.Stats(context.Background(), &ownerID)

	assert.NoError(t, err)
	assert.Equal(t, want, got)
	repo.AssertExpectations(t)
}

func TestToggleCheerUnknownPet(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	repo.On("Get", mock.Anything, 404).Return(types.Pet{}, store.ErrNotFound)

	_, _, err := svc.ToggleCheer(context.Background(), 404, testOwner())

	assert.ErrorIs(t, err, store.ErrNotFound)
	repo.AssertNotCalled(t, "HasCheer", mock.Anything, mock.Anything, mock.Anything)
}

func TestRepositoryErrorPassesThrough(t *testing.T) {
	repo := new(MockPetRepository)
	svc := NewPetService(repo, nil)

	boom := errors.New("connection reset")
	repo.On("List", mock.Anything, mock.Anything).Return([]types.Pet{}, 0, boom)

	_, err := svc.List(context.Background(), ListPetsQuery{})

	assert.ErrorIs(t, err, boom)
}
