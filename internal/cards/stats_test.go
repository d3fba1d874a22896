package cards

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReviewStatsCountsCardBuckets(t *testing.T) {
	service, db, clock := newTestService(t)
	notebookID := mustNotebookID(t, "notebook-1")

	deck, err := service.CreateDeck(context.Background(), notebookID, CreateDeckInput{Name: "Biology"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deckID := mustDeckID(t, deck.DeckID)

	seedCard(t, service, notebookID, deckID, "fresh")
	learning := seedCard(t, service, notebookID, deckID, "learning")
	graduated := seedCard(t, service, notebookID, deckID, "graduated")

	now := clock.Now()
	seedState(t, service, notebookID, learning.CardID, now.Add(-1*time.Hour))
	if err := db.Create(&CardState{
		CardID:       graduated.CardID,
		NotebookID:   notebookID.String(),
		DueAtSeconds: now.Add(72 * time.Hour).Unix(),
		IntervalDays: 6,
		EaseFactor:   defaultEaseFactor,
		Repetitions:  3,
	}).Error; err != nil {
		t.Fatalf("failed to seed graduated state: %v", err)
	}

	stats, err := service.ReviewStats(context.Background(), notebookID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalCards != 3 {
		t.Fatalf("expected 3 total cards, got %d", stats.TotalCards)
	}
	if stats.NewCards != 1 {
		t.Fatalf("expected 1 new card, got %d", stats.NewCards)
	}
	if stats.DueCards != 1 {
		t.Fatalf("expected 1 due card, got %d", stats.DueCards)
	}
	if stats.LearningCards != 1 {
		t.Fatalf("expected 1 learning card, got %d", stats.LearningCards)
	}
	if stats.ReviewCards != 1 {
		t.Fatalf("expected 1 review card, got %d", stats.ReviewCards)
	}
}

func TestReviewStatsCountsTodayReviews(t *testing.T) {
	service, db, clock := newTestService(t)
	notebookID := mustNotebookID(t, "notebook-1")

	deck, err := service.CreateDeck(context.Background(), notebookID, CreateDeckInput{Name: "Biology"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deckID := mustDeckID(t, deck.DeckID)
	card := seedCard(t, service, notebookID, deckID, "card")
	cardID := mustCardID(t, card.CardID)

	if _, err := service.SubmitReview(context.Background(), notebookID, cardID, RatingAgain); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.SubmitReview(context.Background(), notebookID, cardID, RatingGood); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A record from a previous day must not count toward today.
	yesterday := clock.Now().Add(-36 * time.Hour).Unix()
	if err := db.Create(&ReviewRecord{
		RecordID:          "record-old",
		NotebookID:        notebookID.String(),
		CardID:            card.CardID,
		Rating:            int(RatingGood),
		ReviewedAtSeconds: yesterday,
	}).Error; err != nil {
		t.Fatalf("failed to seed old record: %v", err)
	}

	stats, err := service.ReviewStats(context.Background(), notebookID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.ReviewsToday != 2 {
		t.Fatalf("expected 2 reviews today, got %d", stats.ReviewsToday)
	}
	if stats.CorrectToday != 1 {
		t.Fatalf("expected 1 correct review today, got %d", stats.CorrectToday)
	}
}

func TestReviewStatsScopesToDeck(t *testing.T) {
	service, _, clock := newTestService(t)
	notebookID := mustNotebookID(t, "notebook-1")

	biology, err := service.CreateDeck(context.Background(), notebookID, CreateDeckInput{Name: "Biology"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	history, err := service.CreateDeck(context.Background(), notebookID, CreateDeckInput{Name: "History"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	biologyID := mustDeckID(t, biology.DeckID)
	historyID := mustDeckID(t, history.DeckID)

	inDeck := seedCard(t, service, notebookID, biologyID, "in deck")
	outOfDeck := seedCard(t, service, notebookID, historyID, "out of deck")
	seedState(t, service, notebookID, inDeck.CardID, clock.Now().Add(-1*time.Hour))
	seedState(t, service, notebookID, outOfDeck.CardID, clock.Now().Add(-1*time.Hour))

	stats, err := service.ReviewStats(context.Background(), notebookID, &biologyID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalCards != 1 {
		t.Fatalf("expected 1 scoped card, got %d", stats.TotalCards)
	}
	if stats.DueCards != 1 {
		t.Fatalf("expected 1 scoped due card, got %d", stats.DueCards)
	}
}

func TestReviewStatsUnknownDeckFails(t *testing.T) {
	service, _, _ := newTestService(t)
	notebookID := mustNotebookID(t, "notebook-1")

	missing := mustDeckID(t, "missing")
	_, err := service.ReviewStats(context.Background(), notebookID, &missing)
	if !errors.Is(err, ErrDeckNotFound) {
		t.Fatalf("expected deck not found, got %v", err)
	}
}

func TestReviewStatsEmptyNotebook(t *testing.T) {
	service, _, _ := newTestService(t)
	notebookID := mustNotebookID(t, "notebook-1")

	stats, err := service.ReviewStats(context.Background(), notebookID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats != (ReviewStats{}) {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}
