package database

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anjiri1684/attendance_chat/models"
	"github.com/anjiri1684/attendance_chat/policy"
	"github.com/anjiri1684/attendance_chat/repositories"
	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database. driver is "postgres" or "sqlite";
// for sqlite the dsn is a file path.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		DisableNestedTransaction:                 true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows one writer; serialize instead of surfacing SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Admin{},
		&models.ChatMessage{},
	)
}

// SeedSuper creates the first super administrator when none exists yet.
func SeedSuper(ctx context.Context, admins repositories.IAdminRepository, email, password string) error {
	if email == "" || password == "" {
		log.Println("⚠️ SUPER_EMAIL or SUPER_PASSWORD not set, skipping super admin seed")
		return nil
	}

	count, err := admins.CountByRole(ctx, string(policy.RoleSuper))
	if err != nil {
		return err
	}
	if count > 0 {
		log.Println("Super admin already exists.")
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash super password: %w", err)
	}

	super := models.Admin{
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         string(policy.RoleSuper),
	}
	if err := admins.Create(ctx, &super); err != nil {
		return err
	}

	log.Println("✅ Super admin seeded successfully")
	return nil
}
