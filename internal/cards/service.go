package cards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps a failure with a stable `<operation>.<reason>` code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable machine-readable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "cards.service.new"
	opListDecks        = "cards.list_decks"
	opGetDeck          = "cards.get_deck"
	opCreateDeck       = "cards.create_deck"
	opUpdateDeck       = "cards.update_deck"
	opDeleteDeck       = "cards.delete_deck"
	opListCards        = "cards.list_cards"
	opGetCard          = "cards.get_card"
	opCreateCard       = "cards.create_card"
	opUpdateCard       = "cards.update_card"
	opDeleteCard       = "cards.delete_card"
	opGetCardState     = "cards.get_card_state"
	opSubmitReview     = "cards.submit_review"
	opPreviewIntervals = "cards.preview_intervals"
	opDueCards         = "cards.due_cards"
	opReviewStats      = "cards.review_stats"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for newly created rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies and tuning for the flashcard service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger

	// MaxIntervalDays caps scheduled intervals. Zero selects the default.
	MaxIntervalDays float64
	// EnforceSingleDeckCaps extends the per-deck daily limits to single-deck
	// review scopes. Off by default; notebook-wide scopes always honor caps.
	EnforceSingleDeckCaps bool
}

// Service owns deck/card persistence, scheduling state and derived queries.
type Service struct {
	db                    *gorm.DB
	clock                 func() time.Time
	idProvider            IDProvider
	logger                *zap.Logger
	maxIntervalDays       float64
	enforceSingleDeckCaps bool
}

// NewService constructs the flashcard service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	maxInterval := cfg.MaxIntervalDays
	if maxInterval <= 0 {
		maxInterval = defaultMaxIntervalDays
	}

	return &Service{
		db:                    cfg.Database,
		clock:                 clock,
		idProvider:            cfg.IDProvider,
		logger:                logger,
		maxIntervalDays:       maxInterval,
		enforceSingleDeckCaps: cfg.EnforceSingleDeckCaps,
	}, nil
}

// CreateDeckInput carries the user-supplied fields for a new deck.
type CreateDeckInput struct {
	Name           string
	Description    *string
	Color          *string
	NewCardsPerDay *int
	ReviewsPerDay  *int
}

// UpdateDeckInput carries a partial deck update; nil fields stay unchanged.
type UpdateDeckInput struct {
	Name           *string
	Description    *string
	Color          *string
	NewCardsPerDay *int
	ReviewsPerDay  *int
}

// CreateCardInput carries the user-supplied fields for a new flashcard.
type CreateCardInput struct {
	Front    string
	Back     string
	CardType CardType
	Tags     []string
}

// UpdateCardInput carries a partial card update; nil fields stay unchanged.
type UpdateCardInput struct {
	Front    *string
	Back     *string
	CardType *CardType
	Tags     []string
}

const (
	defaultNewCardsPerDay = 20
	defaultReviewsPerDay  = 100
)

// ListDecks returns every deck in the notebook ordered by creation time.
// Duplicate deck names are permitted.
func (s *Service) ListDecks(ctx context.Context, notebookID NotebookID) ([]Deck, error) {
	var decks []Deck
	if err := s.db.WithContext(ctx).
		Where("notebook_id = ?", notebookID.String()).
		Order("created_at_s ASC").
		Find(&decks).Error; err != nil {
		s.logError(opListDecks, "query_failed", err, zap.String("notebook_id", notebookID.String()))
		return nil, newServiceError(opListDecks, "query_failed", err)
	}
	return decks, nil
}

// GetDeck returns a single deck or ErrDeckNotFound.
func (s *Service) GetDeck(ctx context.Context, notebookID NotebookID, deckID DeckID) (Deck, error) {
	var deck Deck
	err := s.db.WithContext(ctx).
		Where("notebook_id = ? AND deck_id = ?", notebookID.String(), deckID.String()).
		Take(&deck).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Deck{}, newServiceError(opGetDeck, "deck_not_found", ErrDeckNotFound)
	}
	if err != nil {
		s.logError(opGetDeck, "query_failed", err, zap.String("deck_id", deckID.String()))
		return Deck{}, newServiceError(opGetDeck, "query_failed", err)
	}
	return deck, nil
}

// CreateDeck persists a new deck with default daily limits.
func (s *Service) CreateDeck(ctx context.Context, notebookID NotebookID, input CreateDeckInput) (Deck, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Deck{}, newServiceError(opCreateDeck, "empty_name", ErrValidation)
	}

	deckID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateDeck, "id_generation_failed", err)
		return Deck{}, newServiceError(opCreateDeck, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	deck := Deck{
		DeckID:           deckID,
		NotebookID:       notebookID.String(),
		Name:             name,
		Description:      input.Description,
		Color:            input.Color,
		NewCardsPerDay:   defaultNewCardsPerDay,
		ReviewsPerDay:    defaultReviewsPerDay,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if input.NewCardsPerDay != nil {
		deck.NewCardsPerDay = *input.NewCardsPerDay
	}
	if input.ReviewsPerDay != nil {
		deck.ReviewsPerDay = *input.ReviewsPerDay
	}

	if err := s.db.WithContext(ctx).Create(&deck).Error; err != nil {
		s.logError(opCreateDeck, "insert_failed", err, zap.String("notebook_id", notebookID.String()))
		return Deck{}, newServiceError(opCreateDeck, "insert_failed", err)
	}
	return deck, nil
}

// UpdateDeck applies a partial update and returns the stored deck.
func (s *Service) UpdateDeck(ctx context.Context, notebookID NotebookID, deckID DeckID, input UpdateDeckInput) (Deck, error) {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return Deck{}, newServiceError(opUpdateDeck, "empty_name", ErrValidation)
	}

	var updated Deck
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deck Deck
		err := tx.Where("notebook_id = ? AND deck_id = ?", notebookID.String(), deckID.String()).
			Take(&deck).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdateDeck, "deck_not_found", ErrDeckNotFound)
		}
		if err != nil {
			return newServiceError(opUpdateDeck, "query_failed", err)
		}

		if input.Name != nil {
			deck.Name = strings.TrimSpace(*input.Name)
		}
		if input.Description != nil {
			deck.Description = input.Description
		}
		if input.Color != nil {
			deck.Color = input.Color
		}
		if input.NewCardsPerDay != nil {
			deck.NewCardsPerDay = *input.NewCardsPerDay
		}
		if input.ReviewsPerDay != nil {
			deck.ReviewsPerDay = *input.ReviewsPerDay
		}
		deck.UpdatedAtSeconds = s.clock().UTC().Unix()

		if err := tx.Save(&deck).Error; err != nil {
			return newServiceError(opUpdateDeck, "save_failed", err)
		}
		updated = deck
		return nil
	})
	if txErr != nil {
		s.logError(opUpdateDeck, "transaction_failed", txErr, zap.String("deck_id", deckID.String()))
		return Deck{}, txErr
	}
	return updated, nil
}

// DeleteDeck removes a deck together with its cards, scheduling state and
// review history in one transaction. The cascade is irreversible.
func (s *Service) DeleteDeck(ctx context.Context, notebookID NotebookID, deckID DeckID) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deck Deck
		err := tx.Where("notebook_id = ? AND deck_id = ?", notebookID.String(), deckID.String()).
			Take(&deck).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteDeck, "deck_not_found", ErrDeckNotFound)
		}
		if err != nil {
			return newServiceError(opDeleteDeck, "query_failed", err)
		}

		var cardIDs []string
		if err := tx.Model(&Flashcard{}).
			Where("deck_id = ?", deckID.String()).
			Pluck("card_id", &cardIDs).Error; err != nil {
			return newServiceError(opDeleteDeck, "card_lookup_failed", err)
		}

		if len(cardIDs) > 0 {
			if err := tx.Where("card_id IN ?", cardIDs).Delete(&ReviewRecord{}).Error; err != nil {
				return newServiceError(opDeleteDeck, "review_delete_failed", err)
			}
			if err := tx.Where("card_id IN ?", cardIDs).Delete(&CardState{}).Error; err != nil {
				return newServiceError(opDeleteDeck, "state_delete_failed", err)
			}
			if err := tx.Where("deck_id = ?", deckID.String()).Delete(&Flashcard{}).Error; err != nil {
				return newServiceError(opDeleteDeck, "card_delete_failed", err)
			}
		}

		if err := tx.Where("deck_id = ?", deckID.String()).Delete(&Deck{}).Error; err != nil {
			return newServiceError(opDeleteDeck, "deck_delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opDeleteDeck, "transaction_failed", txErr, zap.String("deck_id", deckID.String()))
	}
	return txErr
}

// ListCards returns every card in a deck in position order.
func (s *Service) ListCards(ctx context.Context, notebookID NotebookID, deckID DeckID) ([]Flashcard, error) {
	var cardRows []Flashcard
	if err := s.db.WithContext(ctx).
		Where("notebook_id = ? AND deck_id = ?", notebookID.String(), deckID.String()).
		Order("position ASC, created_at_s ASC").
		Find(&cardRows).Error; err != nil {
		s.logError(opListCards, "query_failed", err, zap.String("deck_id", deckID.String()))
		return nil, newServiceError(opListCards, "query_failed", err)
	}
	return cardRows, nil
}

// GetCard returns a single card or ErrCardNotFound.
func (s *Service) GetCard(ctx context.Context, notebookID NotebookID, cardID CardID) (Flashcard, error) {
	var card Flashcard
	err := s.db.WithContext(ctx).
		Where("notebook_id = ? AND card_id = ?", notebookID.String(), cardID.String()).
		Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Flashcard{}, newServiceError(opGetCard, "card_not_found", ErrCardNotFound)
	}
	if err != nil {
		s.logError(opGetCard, "query_failed", err, zap.String("card_id", cardID.String()))
		return Flashcard{}, newServiceError(opGetCard, "query_failed", err)
	}
	return card, nil
}

// CreateCard persists a new card and bumps the owning deck's card count in
// the same transaction.
func (s *Service) CreateCard(ctx context.Context, notebookID NotebookID, deckID DeckID, input CreateCardInput) (Flashcard, error) {
	if strings.TrimSpace(input.Front) == "" {
		return Flashcard{}, newServiceError(opCreateCard, "empty_front", ErrValidation)
	}
	if strings.TrimSpace(input.Back) == "" {
		return Flashcard{}, newServiceError(opCreateCard, "empty_back", ErrValidation)
	}

	cardID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateCard, "id_generation_failed", err)
		return Flashcard{}, newServiceError(opCreateCard, "id_generation_failed", err)
	}

	cardType := input.CardType
	if cardType == "" {
		cardType = CardTypeBasic
	}

	var created Flashcard
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deck Deck
		err := tx.Where("notebook_id = ? AND deck_id = ?", notebookID.String(), deckID.String()).
			Take(&deck).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opCreateCard, "deck_not_found", ErrDeckNotFound)
		}
		if err != nil {
			return newServiceError(opCreateCard, "deck_lookup_failed", err)
		}

		now := s.clock().UTC().Unix()
		card := Flashcard{
			CardID:           cardID,
			DeckID:           deckID.String(),
			NotebookID:       notebookID.String(),
			Front:            input.Front,
			Back:             input.Back,
			CardType:         cardType,
			Position:         int(deck.CardCount),
			CreatedAtSeconds: now,
			UpdatedAtSeconds: now,
		}
		if err := card.SetTags(input.Tags); err != nil {
			return newServiceError(opCreateCard, "tag_encode_failed", err)
		}

		if err := tx.Create(&card).Error; err != nil {
			return newServiceError(opCreateCard, "insert_failed", err)
		}
		if err := tx.Model(&Deck{}).
			Where("deck_id = ?", deckID.String()).
			Updates(map[string]interface{}{
				"card_count":   gorm.Expr("card_count + 1"),
				"updated_at_s": now,
			}).Error; err != nil {
			return newServiceError(opCreateCard, "count_update_failed", err)
		}
		created = card
		return nil
	})
	if txErr != nil {
		s.logError(opCreateCard, "transaction_failed", txErr, zap.String("deck_id", deckID.String()))
		return Flashcard{}, txErr
	}
	return created, nil
}

// UpdateCard applies a partial update and returns the stored card.
func (s *Service) UpdateCard(ctx context.Context, notebookID NotebookID, cardID CardID, input UpdateCardInput) (Flashcard, error) {
	if input.Front != nil && strings.TrimSpace(*input.Front) == "" {
		return Flashcard{}, newServiceError(opUpdateCard, "empty_front", ErrValidation)
	}
	if input.Back != nil && strings.TrimSpace(*input.Back) == "" {
		return Flashcard{}, newServiceError(opUpdateCard, "empty_back", ErrValidation)
	}

	var updated Flashcard
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card Flashcard
		err := tx.Where("notebook_id = ? AND card_id = ?", notebookID.String(), cardID.String()).
			Take(&card).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdateCard, "card_not_found", ErrCardNotFound)
		}
		if err != nil {
			return newServiceError(opUpdateCard, "query_failed", err)
		}

		if input.Front != nil {
			card.Front = *input.Front
		}
		if input.Back != nil {
			card.Back = *input.Back
		}
		if input.CardType != nil {
			card.CardType = *input.CardType
		}
		if input.Tags != nil {
			if err := card.SetTags(input.Tags); err != nil {
				return newServiceError(opUpdateCard, "tag_encode_failed", err)
			}
		}
		card.UpdatedAtSeconds = s.clock().UTC().Unix()

		if err := tx.Save(&card).Error; err != nil {
			return newServiceError(opUpdateCard, "save_failed", err)
		}
		updated = card
		return nil
	})
	if txErr != nil {
		s.logError(opUpdateCard, "transaction_failed", txErr, zap.String("card_id", cardID.String()))
		return Flashcard{}, txErr
	}
	return updated, nil
}

// DeleteCard removes a card together with its scheduling state and review
// history, and decrements the owning deck's card count in the same transaction.
func (s *Service) DeleteCard(ctx context.Context, notebookID NotebookID, cardID CardID) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card Flashcard
		err := tx.Where("notebook_id = ? AND card_id = ?", notebookID.String(), cardID.String()).
			Take(&card).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteCard, "card_not_found", ErrCardNotFound)
		}
		if err != nil {
			return newServiceError(opDeleteCard, "query_failed", err)
		}

		if err := tx.Where("card_id = ?", cardID.String()).Delete(&ReviewRecord{}).Error; err != nil {
			return newServiceError(opDeleteCard, "review_delete_failed", err)
		}
		if err := tx.Where("card_id = ?", cardID.String()).Delete(&CardState{}).Error; err != nil {
			return newServiceError(opDeleteCard, "state_delete_failed", err)
		}
		if err := tx.Where("card_id = ?", cardID.String()).Delete(&Flashcard{}).Error; err != nil {
			return newServiceError(opDeleteCard, "card_delete_failed", err)
		}
		if err := tx.Model(&Deck{}).
			Where("deck_id = ? AND card_count > 0", card.DeckID).
			Updates(map[string]interface{}{
				"card_count":   gorm.Expr("card_count - 1"),
				"updated_at_s": s.clock().UTC().Unix(),
			}).Error; err != nil {
			return newServiceError(opDeleteCard, "count_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opDeleteCard, "transaction_failed", txErr, zap.String("card_id", cardID.String()))
	}
	return txErr
}

// GetCardState returns the scheduling state for a card, or nil when the card
// has never been reviewed. Unknown cards yield ErrCardNotFound.
func (s *Service) GetCardState(ctx context.Context, notebookID NotebookID, cardID CardID) (*CardState, error) {
	if _, err := s.GetCard(ctx, notebookID, cardID); err != nil {
		return nil, err
	}

	var state CardState
	err := s.db.WithContext(ctx).
		Where("notebook_id = ? AND card_id = ?", notebookID.String(), cardID.String()).
		Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opGetCardState, "query_failed", err, zap.String("card_id", cardID.String()))
		return nil, newServiceError(opGetCardState, "query_failed", err)
	}
	return &state, nil
}

// SubmitReview runs the scheduler for one rating, persists the resulting
// state and appends a review record. Unknown cards yield ErrCardNotFound.
func (s *Service) SubmitReview(ctx context.Context, notebookID NotebookID, cardID CardID, rating Rating) (CardState, error) {
	if _, err := NewRating(int(rating)); err != nil {
		return CardState{}, newServiceError(opSubmitReview, "invalid_rating", err)
	}

	var next CardState
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card Flashcard
		err := tx.Where("notebook_id = ? AND card_id = ?", notebookID.String(), cardID.String()).
			Take(&card).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opSubmitReview, "card_not_found", ErrCardNotFound)
		}
		if err != nil {
			return newServiceError(opSubmitReview, "card_lookup_failed", err)
		}

		now := s.clock().UTC()
		var state CardState
		err = tx.Where("card_id = ?", cardID.String()).Take(&state).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			state = newCardState(notebookID.String(), cardID.String(), now)
		} else if err != nil {
			return newServiceError(opSubmitReview, "state_lookup_failed", err)
		}

		next = scheduleReview(state, rating, now, s.maxIntervalDays)
		if err := tx.Save(&next).Error; err != nil {
			return newServiceError(opSubmitReview, "state_save_failed", err)
		}

		recordID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opSubmitReview, "id_generation_failed", err)
		}
		record := ReviewRecord{
			RecordID:          recordID,
			NotebookID:        notebookID.String(),
			CardID:            cardID.String(),
			Rating:            int(rating),
			IntervalDays:      state.IntervalDays,
			EaseFactor:        state.EaseFactor,
			ReviewedAtSeconds: now.Unix(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return newServiceError(opSubmitReview, "review_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opSubmitReview, "transaction_failed", txErr, zap.String("card_id", cardID.String()))
		return CardState{}, txErr
	}
	return next, nil
}

// PreviewIntervals returns the interval each of the four ratings would
// produce, without mutating any state. Unknown cards yield ErrCardNotFound.
func (s *Service) PreviewIntervals(ctx context.Context, notebookID NotebookID, cardID CardID) ([4]float64, error) {
	state, err := s.GetCardState(ctx, notebookID, cardID)
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			return [4]float64{}, newServiceError(opPreviewIntervals, "card_not_found", ErrCardNotFound)
		}
		return [4]float64{}, newServiceError(opPreviewIntervals, "state_lookup_failed", err)
	}
	now := s.clock().UTC()
	if state == nil {
		fresh := newCardState(notebookID.String(), cardID.String(), now)
		return previewReviewIntervals(fresh, now, s.maxIntervalDays), nil
	}
	return previewReviewIntervals(*state, now, s.maxIntervalDays), nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("cards service error", attrs...)
}
