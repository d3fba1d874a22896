package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/recall/backend/internal/cards"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRepairDeckCardCounts = "2026-07-14_repair_deck_card_counts"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairDeckCardCounts, apply: repairDeckCardCounts},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// repairDeckCardCounts recounts each deck's cards once. Counts are maintained
// incrementally afterwards; this repairs rows written before the counter column
// existed.
func repairDeckCardCounts(db *gorm.DB) error {
	return db.Model(&cards.Deck{}).
		Where("1 = 1").
		Update("card_count", gorm.Expr(
			"(SELECT COUNT(*) FROM flashcards WHERE flashcards.deck_id = decks.deck_id)",
		)).Error
}
