package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/proserveapp/proserve/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.Plan{},
		&models.Company{},
		&models.PlanAssignment{},
		&models.PasswordResetToken{},
	)
}

// SeedData populates default roles and the subscription plan catalog.
func SeedData(db *gorm.DB) error {
	roles := []models.Role{
		{Name: models.RoleSuperAdmin, CreatedBy: "system"},
		{Name: models.RoleCompany, CreatedBy: "system"},
		{Name: models.RoleManager, CreatedBy: "system"},
		{Name: models.RoleEmployee, CreatedBy: "system"},
		{Name: models.RoleClient, CreatedBy: "system"},
	}

	for _, role := range roles {
		if err := db.Where(models.Role{Name: role.Name}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return err
		}
	}

	plans := []models.Plan{
		{
			PlanName:  "Starter",
			Duration:  models.PlanDurationAnnual,
			Rate:      49,
			CreatedBy: "system",
			Features:  datatypes.JSON([]byte(`["Basic job management","Client portal","Email support","Advanced scheduling"]`)),
		},
		{
			PlanName:  "Professional",
			Duration:  models.PlanDurationAnnual,
			Rate:      99,
			IsPopular: true,
			CreatedBy: "system",
			Features:  datatypes.JSON([]byte(`["Inventory management","Analytics & reports","Priority support","Custom integrations","Advanced scheduling"]`)),
		},
		{
			PlanName:  "Enterprise",
			Duration:  models.PlanDurationAnnual,
			Rate:      199,
			CreatedBy: "system",
			Features:  datatypes.JSON([]byte(`["Advanced analytics","Dedicated support","White-label options","Custom integrations","Priority support"]`)),
		},
	}

	for _, plan := range plans {
		if err := db.Where(models.Plan{PlanName: plan.PlanName}).Attrs(plan).FirstOrCreate(&models.Plan{}).Error; err != nil {
			return err
		}
	}

	return nil
}
