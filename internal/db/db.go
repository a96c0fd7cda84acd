package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"quillside/internal/logging"
	"quillside/internal/models"
	"quillside/internal/utils"
)

// Connect opens the Postgres connection and runs migrations.
func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log := logging.For("db")
	log.Info().Msg("database connection established")

	if err := migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&models.Author{},
		&models.Category{},
		&models.Post{},
		&models.Comment{},
		&models.CommentEdit{},
		&models.CommentVote{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log := logging.For("db")
	log.Info().Msg("database migration completed")
	return nil
}

// SeedOwner ensures the site owner account exists. Existing rows are left
// alone so a changed env password never silently rewrites credentials.
func SeedOwner(gdb *gorm.DB, email, password, displayName string) error {
	var count int64
	if err := gdb.Model(&models.Author{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return fmt.Errorf("seed owner: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("seed owner: %w", err)
	}
	owner := models.Author{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		IsOwner:      true,
	}
	if err := gdb.Create(&owner).Error; err != nil {
		return fmt.Errorf("seed owner: %w", err)
	}
	log := logging.For("db")
	log.Info().Str("email", email).Msg("owner account created")
	return nil
}
