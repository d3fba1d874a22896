package cards

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNotebookID indicates that a notebook identifier is empty or exceeds storage bounds.
	ErrInvalidNotebookID = errors.New("cards: invalid notebook id")
	// ErrInvalidDeckID indicates that a deck identifier is empty or exceeds storage bounds.
	ErrInvalidDeckID = errors.New("cards: invalid deck id")
	// ErrInvalidCardID indicates that a card identifier is empty or exceeds storage bounds.
	ErrInvalidCardID = errors.New("cards: invalid card id")
	// ErrInvalidRating indicates a review rating outside the 1..4 button scheme.
	ErrInvalidRating = errors.New("cards: invalid rating")
	// ErrDeckNotFound indicates an operation referenced an unknown deck.
	ErrDeckNotFound = errors.New("cards: deck not found")
	// ErrCardNotFound indicates an operation referenced an unknown card.
	ErrCardNotFound = errors.New("cards: card not found")
	// ErrValidation indicates the input was rejected before any repository call.
	ErrValidation = errors.New("cards: validation failed")
)

// NotebookID represents a validated notebook (scope) identifier.
type NotebookID string

// NewNotebookID validates raw input and returns a NotebookID.
func NewNotebookID(rawInput string) (NotebookID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNotebookID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNotebookID, maxIdentifierLength)
	}
	return NotebookID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NotebookID) String() string {
	return string(id)
}

// DeckID represents a validated deck identifier.
type DeckID string

// NewDeckID validates raw input and returns a DeckID.
func NewDeckID(rawInput string) (DeckID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDeckID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDeckID, maxIdentifierLength)
	}
	return DeckID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DeckID) String() string {
	return string(id)
}

// CardID represents a validated card identifier.
type CardID string

// NewCardID validates raw input and returns a CardID.
func NewCardID(rawInput string) (CardID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCardID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCardID, maxIdentifierLength)
	}
	return CardID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CardID) String() string {
	return string(id)
}

// Rating is the reviewer's self-assessed recall quality on the four-button scheme.
type Rating int

const (
	// RatingAgain marks a failed recall; the card re-enters relearning.
	RatingAgain Rating = 1
	// RatingHard marks a strained recall; the interval grows below the normal rate.
	RatingHard Rating = 2
	// RatingGood marks a normal recall; the interval grows by the ease factor.
	RatingGood Rating = 3
	// RatingEasy marks an effortless recall; the interval grows with a bonus.
	RatingEasy Rating = 4
)

// NewRating validates the raw button value and returns a Rating.
func NewRating(value int) (Rating, error) {
	if value < int(RatingAgain) || value > int(RatingEasy) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRating, value)
	}
	return Rating(value), nil
}

// CardType enumerates the supported flashcard presentations.
type CardType string

const (
	// CardTypeBasic is a plain question/answer card.
	CardTypeBasic CardType = "basic"
	// CardTypeCloze is a fill-in-the-blank card.
	CardTypeCloze CardType = "cloze"
	// CardTypeReversible reviews in both directions.
	CardTypeReversible CardType = "reversible"
)

// ParseCardType maps raw input onto a CardType, defaulting to basic.
func ParseCardType(value string) CardType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(CardTypeCloze):
		return CardTypeCloze
	case string(CardTypeReversible):
		return CardTypeReversible
	default:
		return CardTypeBasic
	}
}

// Deck models a named collection of flashcards sharing daily review limits.
type Deck struct {
	DeckID           string  `gorm:"column:deck_id;primaryKey;size:190;not null"`
	NotebookID       string  `gorm:"column:notebook_id;size:190;not null;index:idx_decks_notebook,priority:1"`
	Name             string  `gorm:"column:name;size:190;not null"`
	Description      *string `gorm:"column:description;type:text"`
	Color            *string `gorm:"column:color;size:32"`
	NewCardsPerDay   int     `gorm:"column:new_cards_per_day;not null;default:20"`
	ReviewsPerDay    int     `gorm:"column:reviews_per_day;not null;default:100"`
	CardCount        int64   `gorm:"column:card_count;not null;default:0"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null;index:idx_decks_notebook,priority:2"`
	UpdatedAtSeconds int64   `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Deck) TableName() string {
	return "decks"
}

// Flashcard models a front/back unit owned by exactly one deck.
// Front and back are opaque rich-text payloads to this subsystem.
type Flashcard struct {
	CardID           string   `gorm:"column:card_id;primaryKey;size:190;not null"`
	DeckID           string   `gorm:"column:deck_id;size:190;not null;index:idx_cards_deck,priority:1"`
	NotebookID       string   `gorm:"column:notebook_id;size:190;not null;index:idx_cards_notebook"`
	Front            string   `gorm:"column:front;type:text;not null"`
	Back             string   `gorm:"column:back;type:text;not null"`
	CardType         CardType `gorm:"column:card_type;size:32;not null;default:basic"`
	TagsJSON         string   `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	Position         int      `gorm:"column:position;not null;default:0;index:idx_cards_deck,priority:2"`
	CreatedAtSeconds int64    `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64    `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Flashcard) TableName() string {
	return "flashcards"
}

// Tags decodes the stored tag set.
func (c Flashcard) Tags() []string {
	if c.TagsJSON == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(c.TagsJSON), &tags); err != nil {
		return nil
	}
	return tags
}

// SetTags encodes and stores the tag set.
func (c *Flashcard) SetTags(tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	c.TagsJSON = string(encoded)
	return nil
}

// CardState holds per-card scheduling metadata. It does not exist until the
// card's first review; thereafter it is mutated exclusively by the scheduler
// and is deleted only together with its card.
type CardState struct {
	CardID                string  `gorm:"column:card_id;primaryKey;size:190;not null"`
	NotebookID            string  `gorm:"column:notebook_id;size:190;not null;index:idx_states_notebook_due,priority:1"`
	DueAtSeconds          int64   `gorm:"column:due_at_s;not null;index:idx_states_notebook_due,priority:2"`
	IntervalDays          float64 `gorm:"column:interval_days;not null;default:0"`
	EaseFactor            float64 `gorm:"column:ease_factor;not null;default:2.5"`
	Repetitions           int     `gorm:"column:repetitions;not null;default:0"`
	Lapses                int     `gorm:"column:lapses;not null;default:0"`
	LastReviewedAtSeconds *int64  `gorm:"column:last_reviewed_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (CardState) TableName() string {
	return "card_states"
}

// ReviewRecord captures an append-only log entry for a single review attempt.
type ReviewRecord struct {
	RecordID          string  `gorm:"column:record_id;primaryKey;size:190;not null"`
	NotebookID        string  `gorm:"column:notebook_id;size:190;not null;index:idx_reviews_notebook_time,priority:1"`
	CardID            string  `gorm:"column:card_id;size:190;not null"`
	Rating            int     `gorm:"column:rating;not null"`
	IntervalDays      float64 `gorm:"column:interval_days;not null"`
	EaseFactor        float64 `gorm:"column:ease_factor;not null"`
	ReviewedAtSeconds int64   `gorm:"column:reviewed_at_s;not null;index:idx_reviews_notebook_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (ReviewRecord) TableName() string {
	return "review_records"
}

// CardWithState pairs a flashcard with its scheduling state for review queues.
// State is nil for cards that have never been reviewed.
type CardWithState struct {
	Card  Flashcard
	State *CardState
}

// ReviewStats aggregates derived counts for a notebook or single-deck scope.
// It is always recomputed, never stored.
type ReviewStats struct {
	TotalCards    int64 `json:"totalCards"`
	NewCards      int64 `json:"newCards"`
	DueCards      int64 `json:"dueCards"`
	LearningCards int64 `json:"learningCards"`
	ReviewCards   int64 `json:"reviewCards"`
	ReviewsToday  int64 `json:"reviewsToday"`
	CorrectToday  int64 `json:"correctToday"`
}
