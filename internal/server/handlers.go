package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/recall/backend/internal/cards"
	"github.com/gin-gonic/gin"
)

type deckPayload struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    *string `json:"description,omitempty"`
	Color          *string `json:"color,omitempty"`
	NewCardsPerDay int     `json:"newCardsPerDay"`
	ReviewsPerDay  int     `json:"reviewsPerDay"`
	CardCount      int64   `json:"cardCount"`
	CreatedAt      int64   `json:"createdAt"`
	UpdatedAt      int64   `json:"updatedAt"`
}

func toDeckPayload(deck cards.Deck) deckPayload {
	return deckPayload{
		ID:             deck.DeckID,
		Name:           deck.Name,
		Description:    deck.Description,
		Color:          deck.Color,
		NewCardsPerDay: deck.NewCardsPerDay,
		ReviewsPerDay:  deck.ReviewsPerDay,
		CardCount:      deck.CardCount,
		CreatedAt:      deck.CreatedAtSeconds,
		UpdatedAt:      deck.UpdatedAtSeconds,
	}
}

type cardPayload struct {
	ID        string   `json:"id"`
	DeckID    string   `json:"deckId"`
	Front     string   `json:"front"`
	Back      string   `json:"back"`
	CardType  string   `json:"cardType"`
	Tags      []string `json:"tags"`
	Position  int      `json:"position"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
}

func toCardPayload(card cards.Flashcard) cardPayload {
	tags := card.Tags()
	if tags == nil {
		tags = []string{}
	}
	return cardPayload{
		ID:        card.CardID,
		DeckID:    card.DeckID,
		Front:     card.Front,
		Back:      card.Back,
		CardType:  string(card.CardType),
		Tags:      tags,
		Position:  card.Position,
		CreatedAt: card.CreatedAtSeconds,
		UpdatedAt: card.UpdatedAtSeconds,
	}
}

type cardStatePayload struct {
	CardID         string  `json:"cardId"`
	DueAt          int64   `json:"dueAt"`
	IntervalDays   float64 `json:"intervalDays"`
	EaseFactor     float64 `json:"easeFactor"`
	Repetitions    int     `json:"repetitions"`
	Lapses         int     `json:"lapses"`
	LastReviewedAt *int64  `json:"lastReviewedAt,omitempty"`
}

func toCardStatePayload(state cards.CardState) cardStatePayload {
	return cardStatePayload{
		CardID:         state.CardID,
		DueAt:          state.DueAtSeconds,
		IntervalDays:   state.IntervalDays,
		EaseFactor:     state.EaseFactor,
		Repetitions:    state.Repetitions,
		Lapses:         state.Lapses,
		LastReviewedAt: state.LastReviewedAtSeconds,
	}
}

type queueEntryPayload struct {
	Card  cardPayload       `json:"card"`
	State *cardStatePayload `json:"state,omitempty"`
}

func (h *httpHandler) handleListDecks(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	decks, err := h.cards.ListDecks(c.Request.Context(), notebookID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	payload := make([]deckPayload, 0, len(decks))
	for _, deck := range decks {
		payload = append(payload, toDeckPayload(deck))
	}
	c.JSON(http.StatusOK, gin.H{"decks": payload})
}

type createDeckPayload struct {
	Name           string  `json:"name" binding:"required"`
	Description    *string `json:"description"`
	Color          *string `json:"color"`
	NewCardsPerDay *int    `json:"newCardsPerDay"`
	ReviewsPerDay  *int    `json:"reviewsPerDay"`
}

func (h *httpHandler) handleCreateDeck(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	var request createDeckPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	deck, err := h.cards.CreateDeck(c.Request.Context(), notebookID, cards.CreateDeckInput{
		Name:           request.Name,
		Description:    request.Description,
		Color:          request.Color,
		NewCardsPerDay: request.NewCardsPerDay,
		ReviewsPerDay:  request.ReviewsPerDay,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toDeckPayload(deck))
}

func (h *httpHandler) handleGetDeck(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	deckID, ok := h.deckParam(c)
	if !ok {
		return
	}
	deck, err := h.cards.GetDeck(c.Request.Context(), notebookID, deckID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDeckPayload(deck))
}

type updateDeckPayload struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	Color          *string `json:"color"`
	NewCardsPerDay *int    `json:"newCardsPerDay"`
	ReviewsPerDay  *int    `json:"reviewsPerDay"`
}

func (h *httpHandler) handleUpdateDeck(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	deckID, ok := h.deckParam(c)
	if !ok {
		return
	}
	var request updateDeckPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	deck, err := h.cards.UpdateDeck(c.Request.Context(), notebookID, deckID, cards.UpdateDeckInput{
		Name:           request.Name,
		Description:    request.Description,
		Color:          request.Color,
		NewCardsPerDay: request.NewCardsPerDay,
		ReviewsPerDay:  request.ReviewsPerDay,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDeckPayload(deck))
}

func (h *httpHandler) handleDeleteDeck(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	deckID, ok := h.deckParam(c)
	if !ok {
		return
	}
	// Deck deletion cascades to every owned card and cannot be undone; the
	// caller must acknowledge that explicitly.
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confirmation_required"})
		return
	}
	if err := h.cards.DeleteDeck(c.Request.Context(), notebookID, deckID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListCards(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	deckID, ok := h.deckParam(c)
	if !ok {
		return
	}
	cardRows, err := h.cards.ListCards(c.Request.Context(), notebookID, deckID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	payload := make([]cardPayload, 0, len(cardRows))
	for _, card := range cardRows {
		payload = append(payload, toCardPayload(card))
	}
	c.JSON(http.StatusOK, gin.H{"cards": payload})
}

type createCardPayload struct {
	Front    string   `json:"front" binding:"required"`
	Back     string   `json:"back" binding:"required"`
	CardType string   `json:"cardType"`
	Tags     []string `json:"tags"`
}

func (h *httpHandler) handleCreateCard(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	deckID, ok := h.deckParam(c)
	if !ok {
		return
	}
	var request createCardPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	card, err := h.cards.CreateCard(c.Request.Context(), notebookID, deckID, cards.CreateCardInput{
		Front:    request.Front,
		Back:     request.Back,
		CardType: cards.ParseCardType(request.CardType),
		Tags:     request.Tags,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCardPayload(card))
}

func (h *httpHandler) handleGetCard(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	cardID, ok := h.cardParam(c)
	if !ok {
		return
	}
	card, err := h.cards.GetCard(c.Request.Context(), notebookID, cardID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCardPayload(card))
}

type updateCardPayload struct {
	Front    *string  `json:"front"`
	Back     *string  `json:"back"`
	CardType *string  `json:"cardType"`
	Tags     []string `json:"tags"`
}

func (h *httpHandler) handleUpdateCard(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	cardID, ok := h.cardParam(c)
	if !ok {
		return
	}
	var request updateCardPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	input := cards.UpdateCardInput{
		Front: request.Front,
		Back:  request.Back,
		Tags:  request.Tags,
	}
	if request.CardType != nil {
		cardType := cards.ParseCardType(*request.CardType)
		input.CardType = &cardType
	}
	card, err := h.cards.UpdateCard(c.Request.Context(), notebookID, cardID, input)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCardPayload(card))
}

func (h *httpHandler) handleDeleteCard(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	cardID, ok := h.cardParam(c)
	if !ok {
		return
	}
	if err := h.cards.DeleteCard(c.Request.Context(), notebookID, cardID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleReviewQueue(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	deckID, ok := h.optionalDeckScope(c)
	if !ok {
		return
	}
	queue, err := h.cards.DueCards(c.Request.Context(), notebookID, deckID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	payload := make([]queueEntryPayload, 0, len(queue))
	for _, entry := range queue {
		item := queueEntryPayload{Card: toCardPayload(entry.Card)}
		if entry.State != nil {
			state := toCardStatePayload(*entry.State)
			item.State = &state
		}
		payload = append(payload, item)
	}
	c.JSON(http.StatusOK, gin.H{"queue": payload})
}

type submitReviewPayload struct {
	Rating int `json:"rating" binding:"required"`
}

func (h *httpHandler) handleSubmitReview(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	cardID, ok := h.cardParam(c)
	if !ok {
		return
	}
	var request submitReviewPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	rating, err := cards.NewRating(request.Rating)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_rating"})
		return
	}
	state, err := h.cards.SubmitReview(c.Request.Context(), notebookID, cardID, rating)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCardStatePayload(state))
}

func (h *httpHandler) handlePreviewIntervals(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	cardID, ok := h.cardParam(c)
	if !ok {
		return
	}
	intervals, err := h.cards.PreviewIntervals(c.Request.Context(), notebookID, cardID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intervals": intervals})
}

func (h *httpHandler) handleReviewStats(c *gin.Context) {
	notebookID, ok := h.notebookScope(c)
	if !ok {
		return
	}
	deckID, ok := h.optionalDeckScope(c)
	if !ok {
		return
	}
	stats, err := h.cards.ReviewStats(c.Request.Context(), notebookID, deckID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
