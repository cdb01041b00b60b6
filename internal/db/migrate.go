package db

import (
	"document-archive/internal/document"
	"document-archive/internal/tags"
	"log"
)

// Migrate runs database migrations
func Migrate() {
	err := AppDb.AutoMigrate(
		&document.Document{},
		&tags.Tag{},
		&tags.DocumentTag{},
	)

	if err != nil {
		log.Fatal(err)
	}

	log.Println("Database schema migrated successfully")
}
