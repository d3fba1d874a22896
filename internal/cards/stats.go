package cards

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ReviewStats computes derived counts for a notebook or single-deck scope.
// It is a pure query over the persisted cards, states and review log; the
// host application decides when to refresh after mutations.
func (s *Service) ReviewStats(ctx context.Context, notebookID NotebookID, deckID *DeckID) (ReviewStats, error) {
	cardQuery := s.db.WithContext(ctx).Where("notebook_id = ?", notebookID.String())
	if deckID != nil {
		if _, err := s.GetDeck(ctx, notebookID, *deckID); err != nil {
			return ReviewStats{}, newServiceError(opReviewStats, "deck_not_found", ErrDeckNotFound)
		}
		cardQuery = cardQuery.Where("deck_id = ?", deckID.String())
	}

	var cardRows []Flashcard
	if err := cardQuery.Find(&cardRows).Error; err != nil {
		s.logError(opReviewStats, "card_query_failed", err, zap.String("notebook_id", notebookID.String()))
		return ReviewStats{}, newServiceError(opReviewStats, "card_query_failed", err)
	}

	inScope := make(map[string]struct{}, len(cardRows))
	for _, card := range cardRows {
		inScope[card.CardID] = struct{}{}
	}

	var states []CardState
	if err := s.db.WithContext(ctx).
		Where("notebook_id = ?", notebookID.String()).
		Find(&states).Error; err != nil {
		s.logError(opReviewStats, "state_query_failed", err, zap.String("notebook_id", notebookID.String()))
		return ReviewStats{}, newServiceError(opReviewStats, "state_query_failed", err)
	}

	now := s.clock().UTC()
	stats := ReviewStats{TotalCards: int64(len(cardRows))}
	reviewedCards := make(map[string]struct{}, len(states))
	for _, state := range states {
		if _, ok := inScope[state.CardID]; !ok {
			continue
		}
		reviewedCards[state.CardID] = struct{}{}
		if state.DueAtSeconds <= now.Unix() {
			stats.DueCards++
		}
		if state.Repetitions < graduatedRepetitions {
			stats.LearningCards++
		} else {
			stats.ReviewCards++
		}
	}
	stats.NewCards = stats.TotalCards - int64(len(reviewedCards))

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Unix()
	var records []ReviewRecord
	if err := s.db.WithContext(ctx).
		Where("notebook_id = ? AND reviewed_at_s >= ?", notebookID.String(), dayStart).
		Find(&records).Error; err != nil {
		s.logError(opReviewStats, "review_query_failed", err, zap.String("notebook_id", notebookID.String()))
		return ReviewStats{}, newServiceError(opReviewStats, "review_query_failed", err)
	}
	for _, record := range records {
		if _, ok := inScope[record.CardID]; !ok {
			continue
		}
		stats.ReviewsToday++
		if record.Rating > int(RatingAgain) {
			stats.CorrectToday++
		}
	}

	return stats, nil
}

// graduatedRepetitions separates the learning phase from regular review.
const graduatedRepetitions = 2
