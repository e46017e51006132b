package db

import (
	"log"

	"github.com/storytellr/relay/internal/bot"
	"github.com/storytellr/relay/internal/message"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}

func AutoMigrate(gdb *gorm.DB) {
	if err := gdb.AutoMigrate(
		&bot.Bot{},
		&bot.Conversation{},
		&message.Message{},
		&message.Alternative{},
	); err != nil {
		log.Fatalf("automigrate: %v", err)
	}
}
