package callsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"intake-platform/internal/observer"
	"intake-platform/internal/vapi"
)

// State is the call UI state. The tracker guarantees the UI always
// transitions out of connecting/active, even on failure.
type State string

const (
	StateReady      State = "ready"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateProcessing State = "processing"
)

// ErrMicPermissionDenied distinguishes the microphone-permission failure
// from generic start failures; the two get different user-facing messages.
var ErrMicPermissionDenied = errors.New("callsession: microphone permission denied")

// SDK controls the vendor's live call session.
type SDK interface {
	Stop(ctx context.Context) error
}

// Saver sends the fetch-and-save request to the transcript ingestion
// endpoint once a call has ended.
type Saver interface {
	Save(ctx context.Context, req SaveRequest) (vapi.SaveResult, error)
}

// SaveRequest carries whichever correlation keys the tracker managed to
// capture: the vendor call identity when observed, otherwise the locally
// captured start time.
type SaveRequest struct {
	CallID    string
	StartedAt *time.Time
	ProjectID string
	UserID    string
}

// Notifier receives UI-facing signals. Implementations must be fast; they
// are called with the tracker lock released.
type Notifier interface {
	StateChanged(s State)
	TranscriptLine(role, text string)
	DurationTick(seconds int)
	Warn(msg string)
	SaveFinished(ok bool, msg string)
}

// Tracker drives the live call UI and guarantees an attempt to persist a
// transcript exactly once per call, even when the vendor's event stream is
// inconsistent (missing start event, id appearing late or never, missing
// ended signal).
type Tracker struct {
	sdk    SDK
	saver  Saver
	notify Notifier
	obs    observer.Observer

	projectID string
	userID    string

	clock func() time.Time
	sleep func(time.Duration)

	// graceTimeout forces cleanup when the vendor never acknowledges a
	// manual end-call request.
	graceTimeout time.Duration

	// processingDelay is the window the vendor needs before the finished
	// call's artifact is fetchable. Heuristic, not a contract; the server
	// retries on not-found.
	processingDelay time.Duration

	saveTimeout time.Duration

	mu           sync.Mutex
	state        State
	active       bool
	finished     bool
	callID       string
	startedAt    time.Time
	hasStartedAt bool
	elapsed      int

	graceTimer *time.Timer
	ticker     *time.Ticker
	tickerDone chan struct{}

	// wg tracks the background persistence attempt; Wait is used by Close
	// and tests.
	wg sync.WaitGroup
}

func NewTracker(sdk SDK, saver Saver, notify Notifier, obs observer.Observer, projectID, userID string) *Tracker {
	if obs == nil {
		obs = observer.Nop{}
	}
	return &Tracker{
		sdk:             sdk,
		saver:           saver,
		notify:          notify,
		obs:             obs,
		projectID:       projectID,
		userID:          userID,
		clock:           time.Now,
		sleep:           time.Sleep,
		graceTimeout:    3 * time.Second,
		processingDelay: 12 * time.Second,
		saveTimeout:     60 * time.Second,
		state:           StateReady,
	}
}

// State returns the current UI state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// CallID returns the captured vendor call identity, if any.
func (t *Tracker) CallID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callID
}

// Connecting marks the session as dialing. The vendor SDK start call happens
// outside the tracker; failures come back through HandleStartFailure.
func (t *Tracker) Connecting() {
	t.setState(StateConnecting)
}

// HandleStartFailure reports a failed call start. The UI returns to a
// retryable ready state, never stuck connecting.
func (t *Tracker) HandleStartFailure(err error) {
	t.obs.RecordError(context.Background(), "callsession.start", err)
	if errors.Is(err, ErrMicPermissionDenied) {
		t.notify.Warn("Microphone access was denied. Allow microphone access and try again.")
	} else {
		t.notify.Warn("The call could not be started. Please try again.")
	}
	t.setState(StateReady)
}

// HandleCallStarted processes the vendor's call-start event. The call id is
// extracted from whichever payload shape the vendor used; when absent the
// session proceeds on timestamp correlation alone.
func (t *Tracker) HandleCallStarted(payload map[string]any) {
	t.mu.Lock()
	t.markActiveLocked()
	if t.callID == "" {
		if id, ok := vapi.ExtractCallID(payload); ok {
			t.callID = id
		}
	}
	active := t.active
	t.mu.Unlock()
	if active {
		t.notify.StateChanged(StateActive)
	}
}

// HandleMessage processes any inbound vendor message. Two duties:
// opportunistically (re)capture the call id, and treat a final transcript
// fragment as implicit evidence the call is active (some vendors skip the
// explicit start event).
func (t *Tracker) HandleMessage(payload map[string]any) {
	role, text, isFinal := transcriptFragment(payload)

	t.mu.Lock()
	if t.callID == "" {
		if id, ok := vapi.ExtractCallID(payload); ok {
			t.callID = id
		}
	}
	becameActive := false
	if isFinal && !t.active && !t.finished {
		t.markActiveLocked()
		becameActive = true
	}
	t.mu.Unlock()

	if becameActive {
		t.notify.StateChanged(StateActive)
	}
	if isFinal && text != "" {
		t.notify.TranscriptLine(role, text)
	}
}

// HandleCallEnded processes the vendor's ended signal.
func (t *Tracker) HandleCallEnded() {
	t.finish()
}

// RequestEnd is the user's manual end-call action. The vendor is asked to
// stop; if its ended signal does not arrive within the grace timeout, the
// same cleanup and persistence attempt run anyway.
func (t *Tracker) RequestEnd(ctx context.Context) {
	if t.sdk != nil {
		if err := t.sdk.Stop(ctx); err != nil {
			t.obs.RecordError(ctx, "callsession.stop", err)
		}
	}

	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	if t.graceTimer == nil {
		t.graceTimer = time.AfterFunc(t.graceTimeout, t.finish)
	}
	t.mu.Unlock()
}

// Close tears the tracker down. A still-active call is stopped with the
// vendor so navigating away never leaks an open call.
func (t *Tracker) Close(ctx context.Context) {
	t.mu.Lock()
	active := t.active
	t.mu.Unlock()

	if active && t.sdk != nil {
		if err := t.sdk.Stop(ctx); err != nil {
			t.obs.RecordError(ctx, "callsession.stop", err)
		}
	}
	t.finish()
	t.wg.Wait()
}

// Wait blocks until any in-flight persistence attempt completes.
func (t *Tracker) Wait() { t.wg.Wait() }

/* ===================== INTERNAL ===================== */

// markActiveLocked starts the session clock and the 1-second UI tick.
// Caller holds t.mu.
func (t *Tracker) markActiveLocked() {
	if t.active || t.finished {
		return
	}
	t.active = true
	t.state = StateActive
	t.startedAt = t.clock()
	t.hasStartedAt = true
	t.elapsed = 0

	// UI-only duration timer; nothing downstream depends on it.
	t.ticker = time.NewTicker(time.Second)
	t.tickerDone = make(chan struct{})
	go t.tickLoop(t.ticker, t.tickerDone)
}

func (t *Tracker) tickLoop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.mu.Lock()
			t.elapsed++
			n := t.elapsed
			t.mu.Unlock()
			t.notify.DurationTick(n)
		}
	}
}

// finish is the single cleanup path: vendor ended signal, grace timeout and
// teardown all land here. The first caller wins; the persistence attempt
// happens at most once per call.
func (t *Tracker) finish() {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	hadSession := t.active || t.callID != "" || t.hasStartedAt || t.state == StateConnecting
	t.finished = true
	t.active = false
	if t.graceTimer != nil {
		t.graceTimer.Stop()
		t.graceTimer = nil
	}
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.tickerDone)
		t.ticker = nil
	}

	callID := t.callID
	var startedAt *time.Time
	if t.hasStartedAt {
		ts := t.startedAt
		startedAt = &ts
	}
	t.mu.Unlock()

	if !hadSession {
		// Teardown without a call; nothing to persist.
		t.setState(StateReady)
		return
	}

	if callID == "" && startedAt == nil {
		// Known, accepted gap: without either correlation key the
		// transcript cannot be saved. Say so instead of failing silently.
		t.notify.Warn("This call could not be identified; the transcript may not be saved.")
		t.notify.SaveFinished(false, "transcript not saved")
		t.setState(StateReady)
		return
	}

	t.wg.Add(1)
	go t.persist(callID, startedAt)
}

// persist waits out the vendor's artifact-availability window, then asks the
// server to fetch and save the transcript. Fire-and-forget from the UI's
// perspective, with progress surfaced through the notifier.
func (t *Tracker) persist(callID string, startedAt *time.Time) {
	defer t.wg.Done()

	t.setState(StateProcessing)
	t.sleep(t.processingDelay)

	ctx, cancel := context.WithTimeout(context.Background(), t.saveTimeout)
	defer cancel()

	result, err := t.saver.Save(ctx, SaveRequest{
		CallID:    callID,
		StartedAt: startedAt,
		ProjectID: t.projectID,
		UserID:    t.userID,
	})
	if err != nil {
		t.obs.RecordError(ctx, "callsession.save", err)
		t.notify.SaveFinished(false, "The transcript could not be saved.")
		t.setState(StateReady)
		return
	}

	t.notify.SaveFinished(true, fmt.Sprintf("Transcript saved (%ds).", result.DurationSeconds))
	t.setState(StateReady)
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	t.notify.StateChanged(s)
}

// transcriptFragment inspects a vendor message for a transcript payload and
// reports whether it is a final (as opposed to partial) fragment.
func transcriptFragment(payload map[string]any) (role, text string, isFinal bool) {
	if payload == nil {
		return "", "", false
	}
	if mt, _ := payload["type"].(string); mt != "transcript" {
		return "", "", false
	}
	role, _ = payload["role"].(string)
	text, _ = payload["transcript"].(string)
	kind, _ := payload["transcriptType"].(string)
	return role, text, kind == "final"
}
