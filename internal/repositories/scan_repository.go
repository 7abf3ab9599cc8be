package repositories

import (
	"cyberguard-server/internal/models"

	"gorm.io/gorm"
)

type ScanRepository struct {
	db *gorm.DB
}

func NewScanRepository(db *gorm.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

func (r *ScanRepository) Create(record *models.ScanRecord) error {
	return r.db.Create(record).Error
}

func (r *ScanRepository) GetByID(id string) (*models.ScanRecord, error) {
	var record models.ScanRecord
	err := r.db.First(&record, "id = ?", id).Error
	return &record, err
}

func (r *ScanRepository) List(limit int, target, status string) ([]models.ScanRecord, error) {
	var records []models.ScanRecord

	query := r.db.Model(&models.ScanRecord{})
	if target != "" {
		query = query.Where("target = ?", target)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Order("created_at DESC").Find(&records).Error
	return records, err
}
