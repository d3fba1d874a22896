package cards

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

type sequenceIDGenerator struct {
	prefix string
	next   int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func mustNotebookID(t *testing.T, value string) NotebookID {
	t.Helper()
	id, err := NewNotebookID(value)
	if err != nil {
		t.Fatalf("unexpected notebook id error: %v", err)
	}
	return id
}

func mustDeckID(t *testing.T, value string) DeckID {
	t.Helper()
	id, err := NewDeckID(value)
	if err != nil {
		t.Fatalf("unexpected deck id error: %v", err)
	}
	return id
}

func mustCardID(t *testing.T, value string) CardID {
	t.Helper()
	id, err := NewCardID(value)
	if err != nil {
		t.Fatalf("unexpected card id error: %v", err)
	}
	return id
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:recall_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Deck{}, &Flashcard{}, &CardState{}, &ReviewRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *testClock) {
	t.Helper()
	return newTestServiceWithCaps(t, false)
}

func newTestServiceWithCaps(t *testing.T, enforceSingleDeckCaps bool) (*Service, *gorm.DB, *testClock) {
	t.Helper()

	db := newTestDatabase(t)
	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}

	service, err := NewService(ServiceConfig{
		Database:              db,
		Clock:                 clock.Now,
		IDProvider:            &sequenceIDGenerator{prefix: "id"},
		EnforceSingleDeckCaps: enforceSingleDeckCaps,
	})
	if err != nil {
		t.Fatalf("failed to construct cards service: %v", err)
	}

	return service, db, clock
}
