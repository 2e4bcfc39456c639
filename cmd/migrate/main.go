package main

import (
	"log"

	"relay-chat/config"
	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"
	"relay-chat/pkg/database"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	if err := db.AutoMigrate(
		&user.User{},
		&user.Block{},
		&conversation.Conversation{},
		&conversation.Member{},
		&conversation.Sequence{},
		&message.Message{},
	); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	log.Println("migrations applied")
}
