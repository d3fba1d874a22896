package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/recall/backend/internal/cards"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsRepairsDeckCardCounts(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&cards.Deck{}, &cards.Flashcard{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	deck := cards.Deck{
		DeckID:     "deck-1",
		NotebookID: "notebook-1",
		Name:       "Biology",
		CardCount:  0,
	}
	if err := database.Create(&deck).Error; err != nil {
		testContext.Fatalf("failed to insert deck: %v", err)
	}
	for _, cardID := range []string{"card-1", "card-2"} {
		card := cards.Flashcard{
			CardID:     cardID,
			DeckID:     deck.DeckID,
			NotebookID: deck.NotebookID,
			Front:      "front",
			Back:       "back",
			CardType:   cards.CardTypeBasic,
			TagsJSON:   "[]",
		}
		if err := database.Create(&card).Error; err != nil {
			testContext.Fatalf("failed to insert card: %v", err)
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored cards.Deck
	if err := database.Where("deck_id = ?", deck.DeckID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload deck: %v", err)
	}
	if stored.CardCount != 2 {
		testContext.Fatalf("expected card count to be repaired to 2, got %d", stored.CardCount)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationRepairDeckCardCounts).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}
