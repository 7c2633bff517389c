//go:generate go run go.uber.org/mock/mockgen -source=admin_repository.go -destination=../mocks/mock_admin_repository.go -package=mocks
package repositories

import (
	"context"
	"errors"
	"strings"

	"github.com/anjiri1684/attendance_chat/apperrors"
	"github.com/anjiri1684/attendance_chat/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IAdminRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Admin, error)
	FindByEmail(ctx context.Context, email string) (*models.Admin, error)
	List(ctx context.Context) ([]models.Admin, error)
	Create(ctx context.Context, admin *models.Admin) error
	CountByRole(ctx context.Context, role string) (int64, error)
}

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Admin, error) {
	var admin models.Admin
	err := r.db.WithContext(ctx).First(&admin, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, apperrors.Unavailable("find admin", err)
	}
	return &admin, nil
}

func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (*models.Admin, error) {
	var admin models.Admin
	err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, apperrors.Unavailable("find admin", err)
	}
	return &admin, nil
}

func (r *AdminRepository) List(ctx context.Context) ([]models.Admin, error) {
	var admins []models.Admin
	if err := r.db.WithContext(ctx).Order("email asc").Find(&admins).Error; err != nil {
		return nil, apperrors.Unavailable("list admins", err)
	}
	return admins, nil
}

func (r *AdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	admin.Email = NormalizeEmail(admin.Email)
	if err := r.db.WithContext(ctx).Create(admin).Error; err != nil {
		return apperrors.Unavailable("create admin", err)
	}
	return nil
}

func (r *AdminRepository) CountByRole(ctx context.Context, role string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Admin{}).Where("role = ?", role).Count(&count).Error; err != nil {
		return 0, apperrors.Unavailable("count admins", err)
	}
	return count, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
