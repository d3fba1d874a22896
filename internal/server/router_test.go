package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/recall/backend/internal/cards"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testBearerToken = "test-token"

// stubTokenManager validates a single fixed bearer token.
type stubTokenManager struct {
	issueErr error
}

func (s *stubTokenManager) IssueToken(_ context.Context, accessKey, _ string) (string, int64, error) {
	if s.issueErr != nil {
		return "", 0, s.issueErr
	}
	if accessKey != "let-me-in" {
		return "", 0, errors.New("unknown access key")
	}
	return testBearerToken, 3600, nil
}

func (s *stubTokenManager) ValidateToken(token string) (string, error) {
	if token != testBearerToken {
		return "", errors.New("unknown token")
	}
	return "client-1", nil
}

type serialIDProvider struct {
	next int
}

func (p *serialIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("id-%04d", p.next), nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:recall_router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&cards.Deck{}, &cards.Flashcard{}, &cards.CardState{}, &cards.ReviewRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	service, err := cards.NewService(cards.ServiceConfig{
		Database:   db,
		IDProvider: &serialIDProvider{},
	})
	if err != nil {
		t.Fatalf("failed to build cards service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager: &stubTokenManager{},
		CardsService: service,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func performRequest(t *testing.T, handler http.Handler, method, target string, body interface{}, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, target, reader)
	request.Header.Set("Content-Type", "application/json")
	if authorized {
		request.Header.Set("Authorization", "Bearer "+testBearerToken)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func createDeckForTest(t *testing.T, handler http.Handler, name string) string {
	t.Helper()
	recorder := performRequest(t, handler, http.MethodPost, "/notebooks/notebook-1/decks",
		map[string]interface{}{"name": name}, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("deck creation failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var deck struct {
		ID string `json:"id"`
	}
	decodeBody(t, recorder, &deck)
	return deck.ID
}

func createCardForTest(t *testing.T, handler http.Handler, deckID, front, back string) string {
	t.Helper()
	recorder := performRequest(t, handler, http.MethodPost,
		"/notebooks/notebook-1/decks/"+deckID+"/cards",
		map[string]interface{}{"front": front, "back": back}, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("card creation failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var card struct {
		ID string `json:"id"`
	}
	decodeBody(t, recorder, &card)
	return card.ID
}

func TestIssueTokenSucceeds(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performRequest(t, handler, http.MethodPost, "/auth/token",
		map[string]interface{}{"access_key": "let-me-in", "client_name": "tests"}, false)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var response tokenResponsePayload
	decodeBody(t, recorder, &response)
	if response.AccessToken != testBearerToken {
		t.Fatalf("unexpected token %q", response.AccessToken)
	}
	if response.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", response.TokenType)
	}
}

func TestIssueTokenRejectsUnknownKey(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performRequest(t, handler, http.MethodPost, "/auth/token",
		map[string]interface{}{"access_key": "wrong"}, false)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestIssueTokenRejectsEmptyKey(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performRequest(t, handler, http.MethodPost, "/auth/token",
		map[string]interface{}{"access_key": "  "}, false)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performRequest(t, handler, http.MethodGet, "/notebooks/notebook-1/decks", nil, false)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}

	request := httptest.NewRequest(http.MethodGet, "/notebooks/notebook-1/decks", nil)
	request.Header.Set("Authorization", "Bearer forged")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with forged token, got %d", recorder.Code)
	}
}

func TestCreateAndListDecks(t *testing.T) {
	handler := newTestHandler(t)

	deckID := createDeckForTest(t, handler, "Biology")
	if deckID == "" {
		t.Fatalf("expected deck id in creation response")
	}

	recorder := performRequest(t, handler, http.MethodGet, "/notebooks/notebook-1/decks", nil, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		Decks []deckPayload `json:"decks"`
	}
	decodeBody(t, recorder, &response)
	if len(response.Decks) != 1 || response.Decks[0].Name != "Biology" {
		t.Fatalf("unexpected deck list %+v", response.Decks)
	}
	if response.Decks[0].NewCardsPerDay != 20 || response.Decks[0].ReviewsPerDay != 100 {
		t.Fatalf("expected default limits in payload, got %+v", response.Decks[0])
	}
}

func TestCreateDeckRejectsMissingName(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performRequest(t, handler, http.MethodPost, "/notebooks/notebook-1/decks",
		map[string]interface{}{"description": "no name"}, true)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestGetUnknownDeckReturnsNotFound(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performRequest(t, handler, http.MethodGet, "/notebooks/notebook-1/decks/missing", nil, true)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestDeleteDeckRequiresConfirmation(t *testing.T) {
	handler := newTestHandler(t)
	deckID := createDeckForTest(t, handler, "Biology")

	recorder := performRequest(t, handler, http.MethodDelete,
		"/notebooks/notebook-1/decks/"+deckID, nil, true)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected confirmation requirement, got %d", recorder.Code)
	}

	recorder = performRequest(t, handler, http.MethodDelete,
		"/notebooks/notebook-1/decks/"+deckID+"?confirm=true", nil, true)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with confirmation, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = performRequest(t, handler, http.MethodGet, "/notebooks/notebook-1/decks/"+deckID, nil, true)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected deleted deck to vanish, got %d", recorder.Code)
	}
}

func TestCreateCardValidation(t *testing.T) {
	handler := newTestHandler(t)
	deckID := createDeckForTest(t, handler, "Biology")

	recorder := performRequest(t, handler, http.MethodPost,
		"/notebooks/notebook-1/decks/"+deckID+"/cards",
		map[string]interface{}{"front": "only front"}, true)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing back, got %d", recorder.Code)
	}
}

func TestReviewQueueAndSubmitFlow(t *testing.T) {
	handler := newTestHandler(t)
	deckID := createDeckForTest(t, handler, "Biology")
	cardID := createCardForTest(t, handler, deckID, "What is osmosis?", "Water diffusion")

	recorder := performRequest(t, handler, http.MethodGet,
		"/notebooks/notebook-1/review/queue?deck_id="+deckID, nil, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var queueResponse struct {
		Queue []queueEntryPayload `json:"queue"`
	}
	decodeBody(t, recorder, &queueResponse)
	if len(queueResponse.Queue) != 1 {
		t.Fatalf("expected one queued card, got %d", len(queueResponse.Queue))
	}
	if queueResponse.Queue[0].State != nil {
		t.Fatalf("expected new card without state")
	}

	recorder = performRequest(t, handler, http.MethodPost,
		"/notebooks/notebook-1/review/cards/"+cardID,
		map[string]interface{}{"rating": 3}, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var statePayload cardStatePayload
	decodeBody(t, recorder, &statePayload)
	if statePayload.Repetitions != 1 {
		t.Fatalf("expected one repetition after review, got %d", statePayload.Repetitions)
	}
	if statePayload.IntervalDays <= 0 {
		t.Fatalf("expected positive interval, got %f", statePayload.IntervalDays)
	}
}

func TestSubmitReviewRejectsInvalidRating(t *testing.T) {
	handler := newTestHandler(t)
	deckID := createDeckForTest(t, handler, "Biology")
	cardID := createCardForTest(t, handler, deckID, "front", "back")

	recorder := performRequest(t, handler, http.MethodPost,
		"/notebooks/notebook-1/review/cards/"+cardID,
		map[string]interface{}{"rating": 9}, true)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid rating, got %d", recorder.Code)
	}
}

func TestPreviewIntervalsEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	deckID := createDeckForTest(t, handler, "Biology")
	cardID := createCardForTest(t, handler, deckID, "front", "back")

	recorder := performRequest(t, handler, http.MethodGet,
		"/notebooks/notebook-1/review/cards/"+cardID+"/intervals", nil, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		Intervals []float64 `json:"intervals"`
	}
	decodeBody(t, recorder, &response)
	if len(response.Intervals) != 4 {
		t.Fatalf("expected four preview intervals, got %d", len(response.Intervals))
	}
	for position := 1; position < len(response.Intervals); position++ {
		if response.Intervals[position] < response.Intervals[position-1] {
			t.Fatalf("expected non-decreasing previews, got %v", response.Intervals)
		}
	}
}

func TestReviewStatsEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	deckID := createDeckForTest(t, handler, "Biology")
	cardID := createCardForTest(t, handler, deckID, "front", "back")

	recorder := performRequest(t, handler, http.MethodPost,
		"/notebooks/notebook-1/review/cards/"+cardID,
		map[string]interface{}{"rating": 3}, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("review submission failed with %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = performRequest(t, handler, http.MethodGet,
		"/notebooks/notebook-1/review/stats", nil, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var stats cards.ReviewStats
	decodeBody(t, recorder, &stats)
	if stats.TotalCards != 1 {
		t.Fatalf("expected one card in stats, got %d", stats.TotalCards)
	}
	if stats.ReviewsToday != 1 || stats.CorrectToday != 1 {
		t.Fatalf("unexpected today counters %+v", stats)
	}
}
