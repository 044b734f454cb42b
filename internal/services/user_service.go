package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/sekolahku/backend/internal/models"
	apperrors "github.com/sekolahku/backend/pkg/errors"
	"github.com/sekolahku/backend/pkg/validator"
	"gorm.io/datatypes"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrDuplicateIdentifier indicates the NIS or email is already taken.
	ErrDuplicateIdentifier = apperrors.New("USER_DUPLICATE_IDENTIFIER", "NIS or email already exists", http.StatusConflict)
)

// CreateUserInput describes the fields accepted when creating a user.
type CreateUserInput struct {
	NIS    *string    `json:"nis" validate:"omitempty,max=50"`
	Name   string     `json:"name" validate:"required,min=2,max=100"`
	Role   string     `json:"role" validate:"required"`
	Grade  *string    `json:"grade" validate:"omitempty,max=16"`
	Gender *string    `json:"gender" validate:"omitempty,oneof=male female"`
	Email  *string    `json:"email" validate:"omitempty,email,max=100"`
	Region *string    `json:"region" validate:"omitempty,max=100"`
	DOB    *time.Time `json:"dob"`
}

// UpdateUserInput enumerates mutable user attributes.
type UpdateUserInput struct {
	NIS    *string    `json:"nis" validate:"omitempty,max=50"`
	Name   *string    `json:"name" validate:"omitempty,min=2,max=100"`
	Grade  *string    `json:"grade" validate:"omitempty,max=16"`
	Gender *string    `json:"gender" validate:"omitempty,oneof=male female"`
	Email  *string    `json:"email" validate:"omitempty,email,max=100"`
	Region *string    `json:"region" validate:"omitempty,max=100"`
	DOB    *time.Time `json:"dob"`
}

// ListUsersOptions controls filtering and pagination for directory listing.
type ListUsersOptions struct {
	Role     string
	Grade    string
	Page     int
	PageSize int
}

// UserService manages the school account directory. The fan-out engine uses
// it read-only, for existence checks and role-filtered broadcast.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Create registers a new account. Credential handling lives elsewhere.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	role, ok := models.ParseRole(input.Role)
	if !ok {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid role %q", input.Role))
	}

	user := models.User{
		NIS:    input.NIS,
		Name:   input.Name,
		Role:   role,
		Grade:  input.Grade,
		Gender: input.Gender,
		Email:  input.Email,
		Region: input.Region,
	}
	if input.DOB != nil {
		dob := datatypes.Date(*input.DOB)
		user.DOB = &dob
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateIdentifier.WithInternal(err)
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	return &user, nil
}

// Get loads a single user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// List returns users matching the supplied filters plus the unpaged total.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.User{})
	if opts.Role != "" {
		role, ok := models.ParseRole(opts.Role)
		if !ok {
			return nil, 0, apperrors.NewBadRequest(fmt.Sprintf("invalid role %q", opts.Role))
		}
		query = query.Where("role = ?", role)
	}
	if opts.Grade != "" {
		query = query.Where("grade = ?", opts.Grade)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 25
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}

// Update applies partial changes to an account.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.NIS != nil {
		updates["nis"] = *input.NIS
	}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Grade != nil {
		updates["grade"] = *input.Grade
	}
	if input.Gender != nil {
		updates["gender"] = *input.Gender
	}
	if input.Email != nil {
		updates["email"] = *input.Email
	}
	if input.Region != nil {
		updates["region"] = *input.Region
	}
	if input.DOB != nil {
		updates["dob"] = datatypes.Date(*input.DOB)
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateIdentifier.WithInternal(err)
		}
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	return s.Get(ctx, id)
}

// Delete removes an account. Join rows referencing the user are removed by the
// schema's cascading foreign key.
func (s *UserService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("user service: delete user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// FindByIDs returns all existing users among the supplied identifiers.
func (s *UserService) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	ctx = ensureContext(ctx)

	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user service: find users by ids: %w", err)
	}
	return users, nil
}

// FindByRoles returns every user holding any of the supplied roles.
func (s *UserService) FindByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error) {
	ctx = ensureContext(ctx)

	if len(roles) == 0 {
		return nil, nil
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("role IN ?", roles).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user service: find users by roles: %w", err)
	}
	return users, nil
}
