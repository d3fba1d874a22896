package session

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/recall/backend/internal/cards"
	"go.uber.org/zap"
)

// State enumerates the review session lifecycle.
type State string

const (
	// StateIdle means no session is active.
	StateIdle State = "idle"
	// StateLoading means the queue snapshot is being fetched.
	StateLoading State = "loading"
	// StatePresenting shows the front of the current card.
	StatePresenting State = "presenting"
	// StateRevealed shows both sides and the four rating actions.
	StateRevealed State = "revealed"
	// StateAdvancing means a rating submission is in flight.
	StateAdvancing State = "advancing"
	// StateComplete means the queue has been exhausted.
	StateComplete State = "complete"
)

// DisplayMode is a pure view-layer toggle shared by the attached surfaces.
// Switching it never touches the session state machine.
type DisplayMode string

const (
	// DisplayModeDocked renders the session in the persistent docked form.
	DisplayModeDocked DisplayMode = "docked"
	// DisplayModeFullscreen renders the session in the full-screen form.
	DisplayModeFullscreen DisplayMode = "fullscreen"
)

// Scope selects the cards a session draws from: a whole notebook, or one deck.
type Scope struct {
	NotebookID cards.NotebookID
	DeckID     *cards.DeckID
}

// Progress reports how far the session has advanced through its queue.
type Progress struct {
	Current   int `json:"current"`
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

// Snapshot is the read-only view handed to presentation surfaces. The back of
// the card is withheld until the session reaches the revealed state.
type Snapshot struct {
	State          State
	Scope          Scope
	CardID         string
	Front          string
	Back           string
	Revealed       bool
	Progress       Progress
	IntervalLabels [4]string
	DisplayMode    DisplayMode
	Err            error
}

var (
	// ErrSessionActive indicates Start was called while a session is running.
	ErrSessionActive = errors.New("session: already active")
	// ErrSessionBusy indicates a rating is already in flight for the current card.
	ErrSessionBusy = errors.New("session: rating already in flight")
	// ErrInvalidTransition indicates the requested action does not apply to the current state.
	ErrInvalidTransition = errors.New("session: invalid transition")

	errMissingBackend = errors.New("session: backend dependency required")
)

// ControllerConfig describes the dependencies of a session controller.
type ControllerConfig struct {
	Backend Backend
	Logger  *zap.Logger
}

// Controller drives one pass through a due-card queue. It is the single
// writer of session state; every attached surface observes it through
// snapshots. The queue is captured once at Start and is not live-updated by
// concurrent edits elsewhere.
type Controller struct {
	mu         sync.Mutex
	backend    Backend
	logger     *zap.Logger
	dispatcher *Dispatcher

	state       State
	scope       Scope
	queue       []cards.CardWithState
	index       int
	revealed    bool
	labels      [4]string
	displayMode DisplayMode
	lastErr     error

	// epoch fences asynchronous completions: Exit and Start bump it, and any
	// in-flight backend call that resolves under an older epoch is discarded.
	epoch uint64
}

// NewController constructs an idle session controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, errMissingBackend
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		backend:     cfg.Backend,
		logger:      logger,
		dispatcher:  NewDispatcher(),
		state:       StateIdle,
		displayMode: DisplayModeDocked,
	}, nil
}

// Subscribe attaches a presentation surface to the controller's snapshot stream.
func (c *Controller) Subscribe(ctx context.Context) (<-chan Snapshot, func()) {
	return c.dispatcher.Subscribe(ctx)
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Start fetches a fresh queue snapshot for the scope and begins presenting.
// An empty queue completes immediately. A load failure is fatal to the
// attempt: the controller returns to idle with the error surfaced.
func (c *Controller) Start(ctx context.Context, scope Scope) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateComplete {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.epoch++
	epoch := c.epoch
	c.state = StateLoading
	c.scope = scope
	c.queue = nil
	c.index = 0
	c.revealed = false
	c.labels = [4]string{}
	c.lastErr = nil
	c.publishLocked()
	c.mu.Unlock()

	queue, err := c.backend.DueCards(ctx, scope.NotebookID, scope.DeckID)

	c.mu.Lock()
	if c.epoch != epoch {
		// Exited while loading; the fetched queue is discarded.
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.state = StateIdle
		c.lastErr = err
		c.publishLocked()
		c.mu.Unlock()
		c.logger.Error("review queue load failed",
			zap.String("notebook_id", scope.NotebookID.String()), zap.Error(err))
		return err
	}
	c.queue = queue
	if len(queue) == 0 {
		c.state = StateComplete
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}
	c.state = StatePresenting
	c.publishLocked()
	notebookID := c.scope.NotebookID
	cardID := queue[0].Card.CardID
	c.mu.Unlock()

	c.loadPreviews(ctx, epoch, 0, notebookID, cardID)
	return nil
}

// Reveal flips the visibility flag for the current card. It performs no
// external call and resets automatically whenever the card index changes.
func (c *Controller) Reveal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePresenting {
		return ErrInvalidTransition
	}
	c.state = StateRevealed
	c.revealed = true
	c.publishLocked()
	return nil
}

// Rate submits the rating for the revealed card and advances the session.
// While a submission is in flight a second Rate call is rejected with
// ErrSessionBusy, so duplicate input cannot double-submit. A submit failure
// is non-fatal: the error is surfaced on the snapshot and the session still
// advances optimistically, skipping past cards deleted out-of-band.
func (c *Controller) Rate(ctx context.Context, rating cards.Rating) error {
	c.mu.Lock()
	if c.state == StateAdvancing {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	if c.state != StateRevealed {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	epoch := c.epoch
	current := c.queue[c.index]
	notebookID := c.scope.NotebookID
	c.state = StateAdvancing
	c.publishLocked()
	c.mu.Unlock()

	cardID, submitErr := cards.NewCardID(current.Card.CardID)
	if submitErr == nil {
		_, submitErr = c.backend.SubmitReview(ctx, notebookID, cardID, rating)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		// Exited mid-flight; the scheduler result is discarded.
		c.mu.Unlock()
		return nil
	}
	if submitErr != nil {
		c.lastErr = submitErr
		c.logger.Warn("review submit failed, advancing past card",
			zap.String("card_id", current.Card.CardID), zap.Error(submitErr))
	}
	c.index++
	c.revealed = false
	c.labels = [4]string{}
	if c.index >= len(c.queue) {
		c.state = StateComplete
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}
	c.state = StatePresenting
	index := c.index
	nextCardID := c.queue[c.index].Card.CardID
	c.publishLocked()
	c.mu.Unlock()

	c.loadPreviews(ctx, epoch, index, notebookID, nextCardID)
	return nil
}

// Exit returns the controller to idle from any state, discarding the queue.
// An in-flight submission is not cancelled; its result is dropped when it
// resolves under the stale epoch.
func (c *Controller) Exit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.state = StateIdle
	c.queue = nil
	c.index = 0
	c.revealed = false
	c.labels = [4]string{}
	c.lastErr = nil
	c.publishLocked()
}

// SetDisplayMode records which surface form is presenting the session.
// This is view state only and never triggers a queue re-fetch.
func (c *Controller) SetDisplayMode(mode DisplayMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mode != DisplayModeDocked && mode != DisplayModeFullscreen {
		return
	}
	c.displayMode = mode
	c.publishLocked()
}

// loadPreviews fetches interval labels for the card at index. It is advisory:
// a failure is logged and the labels stay empty, never blocking reveal or rate.
func (c *Controller) loadPreviews(ctx context.Context, epoch uint64, index int, notebookID cards.NotebookID, rawCardID string) {
	cardID, err := cards.NewCardID(rawCardID)
	if err != nil {
		return
	}
	intervals, err := c.backend.PreviewIntervals(ctx, notebookID, cardID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.index != index {
		return
	}
	if err != nil {
		c.logger.Warn("interval preview fetch failed",
			zap.String("card_id", rawCardID), zap.Error(err))
		return
	}
	for position, days := range intervals {
		c.labels[position] = formatIntervalLabel(days)
	}
	c.publishLocked()
}

func (c *Controller) progressLocked() Progress {
	total := len(c.queue)
	switch {
	case total == 0:
		return Progress{}
	case c.index >= total:
		return Progress{Current: total, Total: total}
	default:
		return Progress{Current: c.index + 1, Total: total, Remaining: total - c.index}
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		State:          c.state,
		Scope:          c.scope,
		Revealed:       c.revealed,
		Progress:       c.progressLocked(),
		IntervalLabels: c.labels,
		DisplayMode:    c.displayMode,
		Err:            c.lastErr,
	}
	if c.index < len(c.queue) {
		card := c.queue[c.index].Card
		snapshot.CardID = card.CardID
		snapshot.Front = card.Front
		if c.revealed {
			snapshot.Back = card.Back
		}
	}
	return snapshot
}

func (c *Controller) publishLocked() {
	c.dispatcher.Publish(c.snapshotLocked())
}
