package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/recall/backend/internal/cards"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const clientIDContextKey = "recall_client_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingCardsService  = errors.New("cards service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates API bearer tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, accessKey, clientName string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP surface to its collaborators.
type Dependencies struct {
	TokenManager TokenManager
	CardsService *cards.Service
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router for the flashcard API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.CardsService == nil {
		return nil, errMissingCardsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens: deps.TokenManager,
		cards:  deps.CardsService,
		logger: logger,
	}

	router.POST("/auth/token", handler.handleIssueToken)

	protected := router.Group("/notebooks/:notebookID")
	protected.Use(handler.authorizeRequest)
	protected.GET("/decks", handler.handleListDecks)
	protected.POST("/decks", handler.handleCreateDeck)
	protected.GET("/decks/:deckID", handler.handleGetDeck)
	protected.PATCH("/decks/:deckID", handler.handleUpdateDeck)
	protected.DELETE("/decks/:deckID", handler.handleDeleteDeck)
	protected.GET("/decks/:deckID/cards", handler.handleListCards)
	protected.POST("/decks/:deckID/cards", handler.handleCreateCard)
	protected.GET("/cards/:cardID", handler.handleGetCard)
	protected.PATCH("/cards/:cardID", handler.handleUpdateCard)
	protected.DELETE("/cards/:cardID", handler.handleDeleteCard)
	protected.GET("/review/queue", handler.handleReviewQueue)
	protected.POST("/review/cards/:cardID", handler.handleSubmitReview)
	protected.GET("/review/cards/:cardID/intervals", handler.handlePreviewIntervals)
	protected.GET("/review/stats", handler.handleReviewStats)

	return router, nil
}

type httpHandler struct {
	tokens TokenManager
	cards  *cards.Service
	logger *zap.Logger
}

type tokenRequestPayload struct {
	AccessKey  string `json:"access_key"`
	ClientName string `json:"client_name"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleIssueToken(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.AccessKey) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	clientName := strings.TrimSpace(request.ClientName)
	if clientName == "" {
		clientName = "api-client"
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), request.AccessKey, clientName)
	if err != nil {
		h.logger.Warn("token issuance rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(clientIDContextKey, subject)
	c.Next()
}

// notebookScope parses the notebook path parameter, writing the error response
// itself when the identifier is unusable.
func (h *httpHandler) notebookScope(c *gin.Context) (cards.NotebookID, bool) {
	notebookID, err := cards.NewNotebookID(c.Param("notebookID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_notebook_id"})
		return "", false
	}
	return notebookID, true
}

func (h *httpHandler) deckParam(c *gin.Context) (cards.DeckID, bool) {
	deckID, err := cards.NewDeckID(c.Param("deckID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_deck_id"})
		return "", false
	}
	return deckID, true
}

func (h *httpHandler) cardParam(c *gin.Context) (cards.CardID, bool) {
	cardID, err := cards.NewCardID(c.Param("cardID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card_id"})
		return "", false
	}
	return cardID, true
}

// optionalDeckScope reads the deck_id query parameter used by queue and stats
// endpoints. A missing parameter selects the whole notebook.
func (h *httpHandler) optionalDeckScope(c *gin.Context) (*cards.DeckID, bool) {
	raw := strings.TrimSpace(c.Query("deck_id"))
	if raw == "" {
		return nil, true
	}
	deckID, err := cards.NewDeckID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_deck_id"})
		return nil, false
	}
	return &deckID, true
}

func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cards.ErrDeckNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "deck_not_found"})
	case errors.Is(err, cards.ErrCardNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "card_not_found"})
	case errors.Is(err, cards.ErrValidation), errors.Is(err, cards.ErrInvalidRating):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed"})
	default:
		code := "internal_error"
		var serviceErr *cards.ServiceError
		if errors.As(err, &serviceErr) {
			code = serviceErr.Code()
		}
		h.logger.Error("cards request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": code})
	}
}
