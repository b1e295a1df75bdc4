package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pawfinder/apiserver/types"
)

// Sort orders accepted by List.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
)

// ListQuery narrows and pages a pet listing query. Zero values mean
// "no filter". Only active pets are ever returned.
type ListQuery struct {
	Search  string
	Type    string
	Status  string
	Urgency string
	OwnerID *int
	Sort    string
	Offset  int
	Limit   int
}

// searchVector is the text-search expression over the searchable pet
// columns. It must match the expression indexed in the migrations.
const searchVector = `to_tsvector('english', p.name || ' ' || p.location || ' ' || p.description)`

const petColumns = `p.id, p.name, p.type, p.age, p.location, p.latitude, p.longitude,
		p.description, p.image_url, p.contact_name, p.contact_number,
		p.urgency, p.status, p.traits, p.views, p.is_active, p.created_at, p.updated_at,
		u.id, u.username, u.first_name, u.last_name, u.avatar_url`

// PetRepository handles persistence for pets, their comments and cheers.
type PetRepository struct {
	db *sql.DB
}

func NewPetRepository(db *sql.DB) *PetRepository {
	return &PetRepository{db: db}
}

// List returns one page of active pets matching q, fully populated,
// plus the total match count.
func (r *PetRepository) List(ctx context.Context, q ListQuery) ([]types.Pet, int, error) {
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit < 1 {
		q.Limit = 10
	}

	conditions := []string{"p.is_active"}
	args := []any{}

	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Type != "" {
		conditions = append(conditions, "p.type = "+arg(q.Type))
	}
	if q.Status != "" {
		conditions = append(conditions, "p.status = "+arg(q.Status))
	}
	if q.Urgency != "" {
		conditions = append(conditions, "p.urgency = "+arg(q.Urgency))
	}
	if q.OwnerID != nil {
		conditions = append(conditions, "p.posted_by = "+arg(*q.OwnerID))
	}

	orderBy := "p.created_at DESC, p.id DESC"
	if q.Sort == SortOldest {
		orderBy = "p.created_at ASC, p.id ASC"
	}
	if q.Search != "" {
		// Relevance-ranked text search, not substring match.
		term := arg(q.Search)
		conditions = append(conditions, searchVector+" @@ plainto_tsquery('english', "+term+")")
		orderBy = "ts_rank(" + searchVector + ", plainto_tsquery('english', " + term + ")) DESC, p.created_at DESC"
	}

	where := strings.Join(conditions, " AND ")

	countQuery := `SELECT COUNT(1) FROM pets p WHERE ` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `
		SELECT ` + petColumns + `
		FROM pets p
		JOIN users u ON u.id = p.posted_by
		WHERE ` + where + `
		ORDER BY ` + orderBy + `
		OFFSET ` + arg(q.Offset) + ` LIMIT ` + arg(q.Limit)

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	pets := make([]types.Pet, 0, q.Limit)
	for rows.Next() {
		pet, err := scanPet(rows)
		if err != nil {
			return nil, 0, err
		}
		pets = append(pets, pet)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.populate(ctx, pets); err != nil {
		return nil, 0, err
	}

	return pets, total, nil
}

// Get returns one active pet, fully populated.
func (r *PetRepository) Get(ctx context.Context, id int) (types.Pet, error) {
	query := `
		SELECT ` + petColumns + `
		FROM pets p
		JOIN users u ON u.id = p.posted_by
		WHERE p.id = $1 AND p.is_active`
	row := r.db.QueryRowContext(ctx, query, id)

	pet, err := scanPet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Pet{}, ErrNotFound
		}
		return types.Pet{}, err
	}

	pets := []types.Pet{pet}
	if err := r.populate(ctx, pets); err != nil {
		return types.Pet{}, err
	}
	return pets[0], nil
}

// IncrementViews bumps the view counter by exactly one in a single
// atomic write and returns the new value.
func (r *PetRepository) IncrementViews(ctx context.Context, id int) (int, error) {
	const query = `
		UPDATE pets
		SET views = views + 1
		WHERE id = $1 AND is_active
		RETURNING views`
	var views int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&views); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return views, nil
}

func (r *PetRepository) Create(ctx context.Context, pet types.Pet) (types.Pet, error) {
	now := time.Now()
	pet.CreatedAt = now
	pet.UpdatedAt = now

	const query = `
		INSERT INTO pets (name, type, age, location, latitude, longitude,
			description, image_url, contact_name, contact_number,
			urgency, status, traits, posted_by, views, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		pet.Name,
		pet.Type,
		pet.Age,
		pet.Location,
		pet.Latitude,
		pet.Longitude,
		pet.Description,
		pet.ImageURL,
		pet.ContactName,
		pet.ContactNumber,
		pet.Urgency,
		pet.Status,
		pet.Traits,
		pet.PostedBy.ID,
		pet.Views,
		pet.IsActive,
		pet.CreatedAt,
		pet.UpdatedAt,
	).Scan(&pet.ID); err != nil {
		return types.Pet{}, err
	}
	return pet, nil
}

// Update writes the mutable listing fields. Views, cheers and comments
// are managed through their own operations.
func (r *PetRepository) Update(ctx context.Context, pet types.Pet) (types.Pet, error) {
	pet.UpdatedAt = time.Now()

	const query = `
		UPDATE pets
		SET name = $1,
			type = $2,
			age = $3,
			location = $4,
			latitude = $5,
			longitude = $6,
			description = $7,
			image_url = $8,
			contact_name = $9,
			contact_number = $10,
			urgency = $11,
			status = $12,
			traits = $13,
			updated_at = $14
		WHERE id = $15 AND is_active`
	result, err := r.db.ExecContext(
		ctx,
		query,
		pet.Name,
		pet.Type,
		pet.Age,
		pet.Location,
		pet.Latitude,
		pet.Longitude,
		pet.Description,
		pet.ImageURL,
		pet.ContactName,
		pet.ContactNumber,
		pet.Urgency,
		pet.Status,
		pet.Traits,
		pet.UpdatedAt,
		pet.ID,
	)
	if err != nil {
		return types.Pet{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Pet{}, err
	}
	if affected == 0 {
		return types.Pet{}, ErrNotFound
	}
	return pet, nil
}

// SetInactive soft-deletes a pet. The row and its comments and cheers
// are retained; every public read path excludes it from then on.
func (r *PetRepository) SetInactive(ctx context.Context, id int) error {
	const query = `
		UPDATE pets
		SET is_active = FALSE, updated_at = $1
		WHERE id = $2 AND is_active`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PetRepository) AddComment(ctx context.Context, comment types.Comment) (types.Comment, error) {
	const query = `
		INSERT INTO pet_comments (id, pet_id, author_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		comment.ID,
		comment.PetID,
		comment.Author.ID,
		comment.Text,
		comment.CreatedAt,
	); err != nil {
		return types.Comment{}, err
	}
	return comment, nil
}

// GetComment looks a comment up by its globally unique id, with the
// author summary populated.
func (r *PetRepository) GetComment(ctx context.Context, id uuid.UUID) (types.Comment, error) {
	const query = `
		SELECT c.id, c.pet_id, c.text, c.created_at,
			u.id, u.username, u.first_name, u.last_name, u.avatar_url
		FROM pet_comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.id = $1`
	var comment types.Comment
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&comment.ID,
		&comment.PetID,
		&comment.Text,
		&comment.CreatedAt,
		&comment.Author.ID,
		&comment.Author.Username,
		&comment.Author.FirstName,
		&comment.Author.LastName,
		&comment.Author.AvatarURL,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Comment{}, ErrNotFound
		}
		return types.Comment{}, err
	}
	return comment, nil
}

func (r *PetRepository) DeleteComment(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM pet_comments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// HasCheer reports current cheer-set membership for one user.
func (r *PetRepository) HasCheer(ctx context.Context, petID, userID int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM pet_cheers WHERE pet_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, petID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PetRepository) AddCheer(ctx context.Context, petID, userID int) error {
	// ON CONFLICT keeps set semantics even when two adds race.
	const query = `
		INSERT INTO pet_cheers (pet_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, petID, userID, time.Now())
	return err
}

func (r *PetRepository) RemoveCheer(ctx context.Context, petID, userID int) error {
	const query = `DELETE FROM pet_cheers WHERE pet_id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, petID, userID)
	return err
}

func (r *PetRepository) CountCheers(ctx context.Context, petID int) (int, error) {
	const query = `SELECT COUNT(1) FROM pet_cheers WHERE pet_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, petID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Stats aggregates counters over active pets, optionally scoped to one
// owner. No caching; every call hits the database.
func (r *PetRepository) Stats(ctx context.Context, ownerID *int) (types.PetStats, error) {
	stats := types.PetStats{
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
	}

	owner := "TRUE"
	args := []any{}
	if ownerID != nil {
		owner = "p.posted_by = $1"
		args = append(args, *ownerID)
	}

	totalsQuery := `
		SELECT COUNT(1),
			COALESCE(SUM(p.views), 0),
			COALESCE((SELECT COUNT(1) FROM pet_cheers ch JOIN pets p ON p.id = ch.pet_id WHERE p.is_active AND ` + owner + `), 0),
			COALESCE((SELECT COUNT(1) FROM pet_comments c JOIN pets p ON p.id = c.pet_id WHERE p.is_active AND ` + owner + `), 0)
		FROM pets p
		WHERE p.is_active AND ` + owner
	if err := r.db.QueryRowContext(ctx, totalsQuery, args...).Scan(
		&stats.TotalPets,
		&stats.TotalViews,
		&stats.TotalCheers,
		&stats.TotalComments,
	); err != nil {
		return types.PetStats{}, err
	}

	statusQuery := `
		SELECT p.status, COUNT(1)
		FROM pets p
		WHERE p.is_active AND ` + owner + `
		GROUP BY p.status`
	if err := r.scanBreakdown(ctx, statusQuery, args, stats.ByStatus); err != nil {
		return types.PetStats{}, err
	}

	typeQuery := `
		SELECT p.type, COUNT(1)
		FROM pets p
		WHERE p.is_active AND ` + owner + `
		GROUP BY p.type`
	if err := r.scanBreakdown(ctx, typeQuery, args, stats.ByType); err != nil {
		return types.PetStats{}, err
	}

	return stats, nil
}

func (r *PetRepository) scanBreakdown(ctx context.Context, query string, args []any, into map[string]int) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}

// populate attaches comments and cheering users to each pet in place.
// Batched over the whole page to avoid per-pet round trips.
func (r *PetRepository) populate(ctx context.Context, pets []types.Pet) error {
	if len(pets) == 0 {
		return nil
	}

	index := make(map[int]*types.Pet, len(pets))
	ids := make([]int64, 0, len(pets))
	for i := range pets {
		pets[i].Comments = []types.Comment{}
		pets[i].Cheers = []types.PublicUser{}
		index[pets[i].ID] = &pets[i]
		ids = append(ids, int64(pets[i].ID))
	}

	const commentsQuery = `
		SELECT c.id, c.pet_id, c.text, c.created_at,
			u.id, u.username, u.first_name, u.last_name, u.avatar_url
		FROM pet_comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.pet_id = ANY($1)
		ORDER BY c.pet_id, c.created_at, c.seq`
	rows, err := r.db.QueryContext(ctx, commentsQuery, pq.Array(ids))
	if err != nil {
		return err
	}
	for rows.Next() {
		var comment types.Comment
		if err := rows.Scan(
			&comment.ID,
			&comment.PetID,
			&comment.Text,
			&comment.CreatedAt,
			&comment.Author.ID,
			&comment.Author.Username,
			&comment.Author.FirstName,
			&comment.Author.LastName,
			&comment.Author.AvatarURL,
		); err != nil {
			rows.Close()
			return err
		}
		if pet, ok := index[comment.PetID]; ok {
			pet.Comments = append(pet.Comments, comment)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	const cheersQuery = `
		SELECT ch.pet_id, u.id, u.username, u.first_name, u.last_name, u.avatar_url
		FROM pet_cheers ch
		JOIN users u ON u.id = ch.user_id
		WHERE ch.pet_id = ANY($1)
		ORDER BY ch.pet_id, ch.created_at`
	rows, err = r.db.QueryContext(ctx, cheersQuery, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var petID int
		var user types.PublicUser
		if err := rows.Scan(
			&petID,
			&user.ID,
			&user.Username,
			&user.FirstName,
			&user.LastName,
			&user.AvatarURL,
		); err != nil {
			return err
		}
		if pet, ok := index[petID]; ok {
			pet.Cheers = append(pet.Cheers, user)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range pets {
		pets[i].CheersCount = len(pets[i].Cheers)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPet(row scanner) (types.Pet, error) {
	var pet types.Pet
	var latitude, longitude sql.NullFloat64
	err := row.Scan(
		&pet.ID,
		&pet.Name,
		&pet.Type,
		&pet.Age,
		&pet.Location,
		&latitude,
		&longitude,
		&pet.Description,
		&pet.ImageURL,
		&pet.ContactName,
		&pet.ContactNumber,
		&pet.Urgency,
		&pet.Status,
		&pet.Traits,
		&pet.Views,
		&pet.IsActive,
		&pet.CreatedAt,
		&pet.UpdatedAt,
		&pet.PostedBy.ID,
		&pet.PostedBy.Username,
		&pet.PostedBy.FirstName,
		&pet.PostedBy.LastName,
		&pet.PostedBy.AvatarURL,
	)
	if err != nil {
		return types.Pet{}, err
	}
	if latitude.Valid {
		pet.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		pet.Longitude = &longitude.Float64
	}
	return pet, nil
}
