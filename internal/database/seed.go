package database

import (
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/config"
	"github.com/zaqqye/simlab_backend/internal/logger"
	"github.com/zaqqye/simlab_backend/internal/models"
	"github.com/zaqqye/simlab_backend/internal/utils"
)

var log = logger.New("database")

func SeedAdmin(db *gorm.DB, cfg *config.Config) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword(cfg.Admin.Password)
	if err != nil {
		return err
	}
	admin := models.User{
		FullName: cfg.Admin.FullName,
		Email:    cfg.Admin.Email,
		Password: hashed,
		Role:     models.RoleAdmin,
		Active:   true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	log.Infof("seeded initial admin %s", admin.Email)
	return nil
}

// defaultRoomTypes are created once so rooms can be classified right away.
var defaultRoomTypes = []string{
	"High-fidelity simulator",
	"Skills lab",
	"Debriefing room",
}

func SeedRoomTypes(db *gorm.DB) error {
	created := 0
	for _, name := range defaultRoomTypes {
		res := db.Where(models.RoomType{Name: name}).FirstOrCreate(&models.RoomType{Name: name})
		if res.Error != nil {
			return res.Error
		}
		created += int(res.RowsAffected)
	}
	if created > 0 {
		log.Infof("seeded %d room type(s)", created)
	}
	return nil
}
