package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/zaqqye/simlab_backend/internal/config"
	"github.com/zaqqye/simlab_backend/internal/models"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	return Open(cfg.DB.DSN(), cfg.Env == "dev")
}

// Open connects to the postgres DSN. verbose logs every statement.
func Open(dsn string, verbose bool) (*gorm.DB, error) {
	level := gormlogger.Warn
	if verbose {
		level = gormlogger.Info
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
}

// constraints are applied after AutoMigrate. Each statement is idempotent.
var constraints = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	`DO $$ BEGIN
		ALTER TABLE bookings ADD CONSTRAINT chk_bookings_window CHECK (starts_at < ends_at);
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN
		ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap
			EXCLUDE USING gist (room_id_ref WITH =, tstzrange(starts_at, ends_at, '[)') WITH &&);
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.RoomType{},
		&models.Room{},
		&models.Course{},
		&models.Class{},
		&models.ClassEnrollment{},
		&models.Practice{},
		&models.Simulation{},
		&models.SimulationUser{},
		&models.Booking{},
		&models.RubricTemplate{},
		&models.Rubric{},
	); err != nil {
		return err
	}
	for _, stmt := range constraints {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
