package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/proserveapp/proserve/internal/models"
)

// PlanService exposes the subscription catalog.
type PlanService struct {
	db *gorm.DB
}

// NewPlanService constructs a PlanService.
func NewPlanService(db *gorm.DB) (*PlanService, error) {
	if db == nil {
		return nil, errors.New("plan service: db is required")
	}
	return &PlanService{db: db}, nil
}

// ListActive returns the purchasable plans ordered by price.
func (s *PlanService) ListActive(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("rate asc").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("plan service: list: %w", err)
	}
	return plans, nil
}

// Get returns a single plan by id.
func (s *PlanService) Get(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	err := s.db.WithContext(ctx).First(&plan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("plan service: load: %w", err)
	}
	return &plan, nil
}
