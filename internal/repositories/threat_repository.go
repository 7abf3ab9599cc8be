package repositories

import (
	"cyberguard-server/internal/models"

	"gorm.io/gorm"
)

type ThreatRepository struct {
	db *gorm.DB
}

func NewThreatRepository(db *gorm.DB) *ThreatRepository {
	return &ThreatRepository{db: db}
}

func (r *ThreatRepository) Create(record *models.ThreatRecord) error {
	return r.db.Create(record).Error
}

func (r *ThreatRepository) GetByID(id string) (*models.ThreatRecord, error) {
	var record models.ThreatRecord
	err := r.db.First(&record, "id = ?", id).Error
	return &record, err
}

func (r *ThreatRepository) MarkResolved(id string) (bool, error) {
	result := r.db.Model(&models.ThreatRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"resolved":    true,
		"resolved_at": gorm.Expr("now()"),
	})
	return result.RowsAffected > 0, result.Error
}

func (r *ThreatRepository) List(page, limit int, threatType, classification, source string) ([]models.ThreatRecord, int64, error) {
	var records []models.ThreatRecord
	var total int64

	query := r.db.Model(&models.ThreatRecord{})

	if threatType != "" {
		query = query.Where("type = ?", threatType)
	}
	if classification != "" {
		query = query.Where("classification = ?", classification)
	}
	if source != "" {
		query = query.Where("source = ?", source)
	}

	query.Count(&total)

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&records).Error

	return records, total, err
}

func (r *ThreatRepository) CountUnresolved() (int64, error) {
	var count int64
	err := r.db.Model(&models.ThreatRecord{}).Where("resolved = ?", false).Count(&count).Error
	return count, err
}
