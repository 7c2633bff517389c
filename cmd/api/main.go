package main

import (
	"context"
	"log"

	config "github.com/anjiri1684/attendance_chat/configs"
	"github.com/anjiri1684/attendance_chat/database"
	"github.com/anjiri1684/attendance_chat/jobs"
	"github.com/anjiri1684/attendance_chat/logging"
	"github.com/anjiri1684/attendance_chat/server"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("🔥 Invalid configuration: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection successfully opened")

	if err := database.Migrate(db); err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	log.Println("✅ Database migrated")

	srv := server.New(db, logger, server.Options{
		JWTSecret:          cfg.JWTSecret,
		TokenTTL:           cfg.TokenTTL,
		ClientURL:          cfg.ClientURL,
		SessionBuffer:      cfg.ChatSessionBuffer,
		OpTimeout:          cfg.ChatOpTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AccessLog:          true,
	})

	if err := database.SeedSuper(context.Background(), srv.Admins, cfg.SuperEmail, cfg.SuperPassword); err != nil {
		log.Fatalf("🔥 Failed to seed super admin: %v", err)
	}

	c := cron.New()
	retention := jobs.NewChatRetentionJob(srv.Messages, cfg.ChatRetention, logger)
	if _, err := retention.Schedule(c, cfg.ChatCleanupSchedule); err != nil {
		log.Fatalf("🔥 Failed to schedule chat cleanup: %v", err)
	}
	c.Start()
	defer c.Stop()
	log.Println("✅ Cron job for chat cleanup scheduled successfully.")

	log.Printf("✅ Server is running on port %s", cfg.Port)
	if err := srv.App.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
