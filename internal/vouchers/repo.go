package vouchers

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgpagination "github.com/pantrylink/pantrylink-backend/pkg/pagination"
)

// Repository holds voucher persistence operations. Every method takes
// the open tenant-scoped transaction; the repository never opens its
// own, so each call inherits the caller's isolation binding.
type Repository struct{}

// NewRepository constructs a voucher repo.
func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts a voucher row.
func (r *Repository) Create(tx *gorm.DB, voucher *models.Voucher) error {
	return tx.Create(voucher).Error
}

// FindByID loads a voucher, or nil when no row is visible in this scope.
func (r *Repository) FindByID(tx *gorm.DB, id uuid.UUID) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := tx.First(&voucher, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// TransitionFromIssued flips the voucher to a new status only when it is
// still issued, in one guarded update. Returns false when the guard did
// not match, i.e. a concurrent transition won.
func (r *Repository) TransitionFromIssued(tx *gorm.DB, id uuid.UUID, to enums.VoucherStatus, reason *string) (bool, error) {
	updates := map[string]any{"status": to}
	if reason != nil {
		updates["unfulfilled_reason"] = reason
	}
	result := tx.Model(&models.Voucher{}).
		Where("id = ? AND status = ?", id, enums.VoucherStatusIssued).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CreateRedemption inserts the fulfillment record.
func (r *Repository) CreateRedemption(tx *gorm.DB, redemption *models.Redemption) error {
	return tx.Create(redemption).Error
}

// CountRedemptions returns how many redemption rows reference a voucher.
func (r *Repository) CountRedemptions(tx *gorm.DB, voucherID uuid.UUID) (int64, error) {
	var count int64
	err := tx.Model(&models.Redemption{}).Where("voucher_id = ?", voucherID).Count(&count).Error
	return count, err
}

// Delete removes a voucher row.
func (r *Repository) Delete(tx *gorm.DB, id uuid.UUID) error {
	return tx.Delete(&models.Voucher{}, "id = ?", id).Error
}

// ListQuery filters the voucher listing.
type ListQuery struct {
	AgencyID *uuid.UUID
	ClientID *uuid.UUID
	Status   *enums.VoucherStatus
	Limit    int
	Cursor   *pkgpagination.Cursor
}

// List returns vouchers newest-first with cursor pagination. The caller
// passes a limit that already includes the next-page buffer row.
func (r *Repository) List(tx *gorm.DB, query ListQuery) ([]models.Voucher, error) {
	q := tx.Model(&models.Voucher{})
	if query.AgencyID != nil {
		q = q.Where("agency_id = ?", *query.AgencyID)
	}
	if query.ClientID != nil {
		q = q.Where("client_id = ?", *query.ClientID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.Cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", query.Cursor.CreatedAt, query.Cursor.ID)
	}

	var rows []models.Voucher
	err := q.Order("created_at DESC, id DESC").Limit(query.Limit).Find(&rows).Error
	return rows, err
}
