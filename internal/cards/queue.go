package cards

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// DueCards builds the ordered review queue for a scope. A nil deckID spans
// the whole notebook; otherwise the queue is restricted to one deck.
//
// Due cards (state present, dueAt <= now) come first, most overdue leading.
// Cards with no scheduling state yet ("new") follow, ordered by deck creation
// order and then card position. Per-deck daily caps truncate the sub-lists
// for notebook-wide scopes; a single-deck scope ignores the caps unless cap
// enforcement was enabled in the service configuration. An empty queue is a
// valid result and represents an immediately complete session.
func (s *Service) DueCards(ctx context.Context, notebookID NotebookID, deckID *DeckID) ([]CardWithState, error) {
	decks, err := s.ListDecks(ctx, notebookID)
	if err != nil {
		return nil, newServiceError(opDueCards, "deck_list_failed", err)
	}

	deckOrder := make(map[string]int, len(decks))
	deckByID := make(map[string]Deck, len(decks))
	for index, deck := range decks {
		deckOrder[deck.DeckID] = index
		deckByID[deck.DeckID] = deck
	}

	cardQuery := s.db.WithContext(ctx).Where("notebook_id = ?", notebookID.String())
	if deckID != nil {
		if _, ok := deckByID[deckID.String()]; !ok {
			return nil, newServiceError(opDueCards, "deck_not_found", ErrDeckNotFound)
		}
		cardQuery = cardQuery.Where("deck_id = ?", deckID.String())
	}

	var cardRows []Flashcard
	if err := cardQuery.Order("position ASC, created_at_s ASC").Find(&cardRows).Error; err != nil {
		s.logError(opDueCards, "card_query_failed", err, zap.String("notebook_id", notebookID.String()))
		return nil, newServiceError(opDueCards, "card_query_failed", err)
	}

	var states []CardState
	if err := s.db.WithContext(ctx).
		Where("notebook_id = ?", notebookID.String()).
		Find(&states).Error; err != nil {
		s.logError(opDueCards, "state_query_failed", err, zap.String("notebook_id", notebookID.String()))
		return nil, newServiceError(opDueCards, "state_query_failed", err)
	}
	stateByCard := make(map[string]CardState, len(states))
	for _, state := range states {
		stateByCard[state.CardID] = state
	}

	now := s.clock().UTC().Unix()
	var dueCards, newCards []CardWithState
	for _, card := range cardRows {
		state, reviewed := stateByCard[card.CardID]
		if !reviewed {
			newCards = append(newCards, CardWithState{Card: card})
			continue
		}
		if state.DueAtSeconds <= now {
			stateCopy := state
			dueCards = append(dueCards, CardWithState{Card: card, State: &stateCopy})
		}
	}

	sort.SliceStable(dueCards, func(i, j int) bool {
		return dueCards[i].State.DueAtSeconds < dueCards[j].State.DueAtSeconds
	})
	sort.SliceStable(newCards, func(i, j int) bool {
		left, right := newCards[i].Card, newCards[j].Card
		if left.DeckID != right.DeckID {
			return deckOrder[left.DeckID] < deckOrder[right.DeckID]
		}
		if left.Position != right.Position {
			return left.Position < right.Position
		}
		return left.CreatedAtSeconds < right.CreatedAtSeconds
	})

	if deckID == nil || s.enforceSingleDeckCaps {
		dueCards = capPerDeck(dueCards, deckByID, func(deck Deck) int { return deck.ReviewsPerDay })
		newCards = capPerDeck(newCards, deckByID, func(deck Deck) int { return deck.NewCardsPerDay })
	}

	queue := make([]CardWithState, 0, len(dueCards)+len(newCards))
	queue = append(queue, dueCards...)
	queue = append(queue, newCards...)
	return queue, nil
}

// capPerDeck drops entries beyond each deck's daily limit while preserving
// order. A non-positive limit disables the cap for that deck.
func capPerDeck(entries []CardWithState, deckByID map[string]Deck, limit func(Deck) int) []CardWithState {
	taken := make(map[string]int, len(deckByID))
	capped := entries[:0:0]
	for _, entry := range entries {
		deck, ok := deckByID[entry.Card.DeckID]
		if ok {
			allowed := limit(deck)
			if allowed > 0 && taken[deck.DeckID] >= allowed {
				continue
			}
			taken[deck.DeckID]++
		}
		capped = append(capped, entry)
	}
	return capped
}
