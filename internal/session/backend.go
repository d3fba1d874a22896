package session

import (
	"context"

	"github.com/MarcoPoloResearchLab/recall/backend/internal/cards"
)

// Backend is the persistence and scheduling collaborator a review session
// drives. All calls are treated as opaque remote operations that may suspend;
// *cards.Service satisfies the interface in-process.
type Backend interface {
	DueCards(ctx context.Context, notebookID cards.NotebookID, deckID *cards.DeckID) ([]cards.CardWithState, error)
	SubmitReview(ctx context.Context, notebookID cards.NotebookID, cardID cards.CardID, rating cards.Rating) (cards.CardState, error)
	PreviewIntervals(ctx context.Context, notebookID cards.NotebookID, cardID cards.CardID) ([4]float64, error)
}

var _ Backend = (*cards.Service)(nil)
