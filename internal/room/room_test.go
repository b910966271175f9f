package room

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/duelmath/duelmath/internal/models"
)

type recordedEvent struct {
	Room    string
	Type    string
	Payload any
}

// fakeBroadcaster records every event and exposes them on a channel so
// tests can wait for the room worker to get around to broadcasting.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
	ch     chan recordedEvent
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{ch: make(chan recordedEvent, 256)}
}

func (f *fakeBroadcaster) BroadcastToRoom(roomCode string, eventType string, payload any) {
	ev := recordedEvent{Room: roomCode, Type: eventType, Payload: payload}
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	f.ch <- ev
}

// waitFor consumes events until one of the wanted type arrives.
func (f *fakeBroadcaster) waitFor(t *testing.T, eventType string) recordedEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-f.ch:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

func (f *fakeBroadcaster) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func newTestRoom(t *testing.T, questionCount int) (*Store, *Room, *fakeBroadcaster, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	fb := newFakeBroadcaster()
	store := NewStore(Config{
		Capacity:      2,
		QuestionCount: questionCount,
		GracePeriod:   60 * time.Second,
	}, clock, fb, nil)
	t.Cleanup(store.Close)

	rm, err := store.Create(1, 0)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return store, rm, fb, clock
}

// startedRoom joins p1 and p2 and starts the game.
func startedRoom(t *testing.T, questionCount int) (*Store, *Room, *fakeBroadcaster, *clockwork.FakeClock) {
	t.Helper()
	store, rm, fb, clock := newTestRoom(t, questionCount)
	mustJoin(t, rm, "p1")
	mustJoin(t, rm, "p2")
	if err := rm.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	fb.waitFor(t, EventGameStarted)
	return store, rm, fb, clock
}

func mustJoin(t *testing.T, rm *Room, identity string) models.PlayerProgress {
	t.Helper()
	p, err := rm.Join(identity)
	if err != nil {
		t.Fatalf("join %s: %v", identity, err)
	}
	return p
}

// answers fetches the authoritative question set for a player.
func answers(t *testing.T, rm *Room, identity string) []models.Question {
	t.Helper()
	snap, err := rm.Rejoin(identity)
	if err != nil {
		t.Fatalf("rejoin %s: %v", identity, err)
	}
	return snap.Questions
}

func finishPlayer(t *testing.T, rm *Room, identity string) {
	t.Helper()
	for _, q := range answers(t, rm, identity) {
		result, err := rm.SubmitAnswer(identity, q.Answer)
		if err != nil {
			t.Fatalf("submit for %s: %v", identity, err)
		}
		if !result.Correct {
			t.Fatalf("authoritative answer %d for %q judged wrong", q.Answer, q.Statement)
		}
	}
}

func TestJoinIdempotent(t *testing.T) {
	_, rm, _, _ := newTestRoom(t, 2)
	first := mustJoin(t, rm, "p1")
	again := mustJoin(t, rm, "p1")
	if first != again {
		t.Fatalf("second join returned different state: %+v vs %+v", first, again)
	}
}

func TestJoinFullRoom(t *testing.T) {
	_, rm, _, _ := newTestRoom(t, 2)
	mustJoin(t, rm, "p1")
	mustJoin(t, rm, "p2")
	if _, err := rm.Join("p3"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}

func TestJoinBroadcastsRoomUpdate(t *testing.T) {
	_, rm, fb, _ := newTestRoom(t, 2)
	mustJoin(t, rm, "p1")
	ev := fb.waitFor(t, EventRoomUpdate)
	payload := ev.Payload.(RoomUpdatePayload)
	if payload.Host != "p1" || len(payload.Players) != 1 {
		t.Fatalf("unexpected roomUpdate payload: %+v", payload)
	}
}

func TestStartGuards(t *testing.T) {
	_, rm, _, _ := newTestRoom(t, 2)
	mustJoin(t, rm, "p1")

	if err := rm.Start("p1"); !errors.Is(err, ErrRoomNotFull) {
		t.Fatalf("expected ErrRoomNotFull, got %v", err)
	}
	mustJoin(t, rm, "p2")
	if err := rm.Start("p2"); !errors.Is(err, ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	if err := rm.Start("p1"); err != nil {
		t.Fatalf("host start: %v", err)
	}
	if err := rm.Start("p1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second start: expected ErrInvalidState, got %v", err)
	}
}

func TestStartBroadcastsQuestionsAndTimer(t *testing.T) {
	_, rm, fb, _ := newTestRoom(t, 2)
	mustJoin(t, rm, "p1")
	mustJoin(t, rm, "p2")
	if err := rm.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	ev := fb.waitFor(t, EventGameStarted)
	payload := ev.Payload.(GameStartedPayload)
	if len(payload.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(payload.Questions))
	}
	if payload.Mode != 1 || payload.TimeLeft != 60 {
		t.Fatalf("expected mode 1 with 60s, got %+v", payload)
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	_, rm, _, _ := newTestRoom(t, 2)
	mustJoin(t, rm, "p1")
	if _, err := rm.SubmitAnswer("p1", 4); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCorrectAnswerBroadcastsProgress(t *testing.T) {
	_, rm, fb, _ := startedRoom(t, 2)
	qs := answers(t, rm, "p1")

	result, err := rm.SubmitAnswer("p1", qs[0].Answer)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.NextQuestion != 1 || result.Score != 10 {
		t.Fatalf("expected {correct:true nextQuestion:1 score:10}, got %+v", result)
	}

	ev := fb.waitFor(t, EventProgressUpdate)
	progress := ev.Payload.([]models.PlayerProgress)
	if progress[0].Identity != "p1" || progress[0].CurrentIndex != 1 || progress[0].Score != 10 {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if progress[1].Identity != "p2" || progress[1].CurrentIndex != 0 {
		t.Fatalf("opponent progress wrong: %+v", progress)
	}
}

func TestWrongAnswerNoBroadcastNoMutation(t *testing.T) {
	_, rm, fb, _ := startedRoom(t, 2)
	qs := answers(t, rm, "p1")

	before := fb.count(EventProgressUpdate)
	result, err := rm.SubmitAnswer("p1", qs[0].Answer+1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Correct || result.NextQuestion != 0 || result.Score != 0 {
		t.Fatalf("expected rejection with untouched state, got %+v", result)
	}
	if fb.count(EventProgressUpdate) != before {
		t.Fatal("wrong answer must not trigger a progress broadcast")
	}
}

func TestAllFinishedEndsSession(t *testing.T) {
	_, rm, fb, _ := startedRoom(t, 2)
	finishPlayer(t, rm, "p1")
	finishPlayer(t, rm, "p2")

	ev := fb.waitFor(t, EventGameEnded)
	payload := ev.Payload.(GameEndedPayload)
	if payload.Reason != models.EndReasonAllFinished {
		t.Fatalf("expected allFinished, got %s", payload.Reason)
	}
	for _, p := range payload.Progress {
		if p.CurrentIndex != 2 || p.Score != 20 {
			t.Fatalf("final progress wrong: %+v", p)
		}
	}
}

func TestTimerTickBroadcastsAndPullAgrees(t *testing.T) {
	_, rm, fb, clock := startedRoom(t, 2)

	clock.Advance(time.Second)
	ev := fb.waitFor(t, EventTimerUpdate)
	tick := ev.Payload.(TimerUpdatePayload)
	if tick.TimeLeft != 59 {
		t.Fatalf("expected 59s after one tick, got %d", tick.TimeLeft)
	}

	// The pulled value must equal what the tick broadcast reported: there is
	// only one clock per session.
	left, err := rm.TimeLeft()
	if err != nil {
		t.Fatalf("timeLeft: %v", err)
	}
	if left != tick.TimeLeft {
		t.Fatalf("pull %d disagrees with tick %d", left, tick.TimeLeft)
	}
}

func TestTimerExpiryIsIdempotentAndRejectsLateAnswers(t *testing.T) {
	_, rm, fb, clock := startedRoom(t, 2)
	qs := answers(t, rm, "p2")

	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		fb.waitFor(t, EventTimerUpdate)
	}
	ev := fb.waitFor(t, EventGameEnded)
	if ev.Payload.(GameEndedPayload).Reason != models.EndReasonTimeExpired {
		t.Fatalf("expected timeExpired, got %+v", ev.Payload)
	}

	// An answer arriving after expiry is InvalidState, never a score change.
	if _, err := rm.SubmitAnswer("p2", qs[0].Answer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after expiry, got %v", err)
	}

	// Ticks past zero must not re-fire the ended transition.
	clock.Advance(time.Second)
	clock.Advance(time.Second)
	if got, err := rm.TimeLeft(); err != nil || got != 0 {
		t.Fatalf("expected 0 time left after expiry, got %d (%v)", got, err)
	}
	if n := fb.count(EventGameEnded); n != 1 {
		t.Fatalf("gameEnded fired %d times, expected exactly once", n)
	}
}

func TestEndedRoomGarbageCollectedAfterGrace(t *testing.T) {
	store, rm, fb, clock := startedRoom(t, 2)
	code := rm.Code()

	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		fb.waitFor(t, EventTimerUpdate)
	}
	fb.waitFor(t, EventGameEnded)
	// A mailbox round-trip guarantees the worker finished the ended
	// transition (and armed the grace timer) before the clock moves.
	if _, err := rm.TimeLeft(); err != nil {
		t.Fatalf("timeLeft: %v", err)
	}

	clock.Advance(61 * time.Second)
	waitRemoved(t, store, code)

	if _, err := rm.Rejoin("p1"); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed on a collected room, got %v", err)
	}
}

func waitRemoved(t *testing.T, store *Store, code string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.Get(code); errors.Is(err, ErrRoomNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s was never garbage-collected", code)
}

func TestRejoinReturnsAuthoritativeState(t *testing.T) {
	_, rm, _, _ := startedRoom(t, 2)
	original := answers(t, rm, "p1")
	finishPlayer(t, rm, "p1")

	// However stale the client's cached currentIndex is, rejoin reports the
	// authoritative value.
	snap, err := rm.Rejoin("p1")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if snap.PlayerState.CurrentIndex != 2 || snap.PlayerState.Score != 20 {
		t.Fatalf("expected authoritative progress 2/20, got %+v", snap.PlayerState)
	}
	if snap.Mode != 1 || snap.Status != models.StatusActive {
		t.Fatalf("unexpected snapshot: mode=%d status=%s", snap.Mode, snap.Status)
	}
	if len(snap.Questions) != len(original) {
		t.Fatalf("question count changed across rejoin")
	}
	for i := range original {
		if snap.Questions[i] != original[i] {
			t.Fatalf("question %d changed across rejoin: %+v vs %+v", i, snap.Questions[i], original[i])
		}
	}
}

func TestRejoinUnknownIdentity(t *testing.T) {
	_, rm, _, _ := startedRoom(t, 2)
	if _, err := rm.Rejoin("ghost"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestRematchRequiresEndedSession(t *testing.T) {
	_, rm, _, _ := startedRoom(t, 2)
	if _, err := rm.RequestRematch("p1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestRematchHandshake(t *testing.T) {
	store, rm, fb, clock := startedRoom(t, 2)
	original := answers(t, rm, "p1")
	finishPlayer(t, rm, "p1")
	finishPlayer(t, rm, "p2")
	fb.waitFor(t, EventGameEnded)

	// First request: opponent notified, requester waits.
	status, err := rm.RequestRematch("p2")
	if err != nil {
		t.Fatalf("first rematch request: %v", err)
	}
	if !status.Waiting || status.Votes != 1 || status.Needed != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
	ev := fb.waitFor(t, EventRematchRequested)
	if ev.Payload.(RematchRequestedPayload).Name != "p2" {
		t.Fatalf("unexpected requester: %+v", ev.Payload)
	}

	// Duplicate request from the same player: no new session, no second
	// notification.
	status, err = rm.RequestRematch("p2")
	if err != nil {
		t.Fatalf("duplicate rematch request: %v", err)
	}
	if !status.Waiting || status.Votes != 1 {
		t.Fatalf("duplicate request changed the vote count: %+v", status)
	}
	if n := fb.count(EventRematchRequested); n != 1 {
		t.Fatalf("rematchRequested fired %d times, expected once", n)
	}

	// Second distinct player completes the handshake.
	status, err = rm.RequestRematch("p1")
	if err != nil {
		t.Fatalf("second rematch request: %v", err)
	}
	if status.Waiting {
		t.Fatalf("handshake complete, expected Waiting=false: %+v", status)
	}
	started := fb.waitFor(t, EventRematchStarted)
	payload := started.Payload.(RematchStartedPayload)
	if payload.Mode != 1 || len(payload.Players) != 2 {
		t.Fatalf("unexpected rematchStarted payload: %+v", payload)
	}
	for _, p := range payload.Players {
		if p.Score != 0 || p.CurrentIndex != 0 {
			t.Fatalf("progress not reset: %+v", p)
		}
	}

	// The replacement session is live and resolvable under the same code.
	snap, err := rm.Rejoin("p1")
	if err != nil {
		t.Fatalf("rejoin after rematch: %v", err)
	}
	if snap.Status != models.StatusActive || snap.PlayerState.Score != 0 {
		t.Fatalf("replacement session wrong: %+v", snap)
	}
	if len(snap.Questions) != len(original) {
		t.Fatal("rematch must regenerate a full question set")
	}
	if _, err := store.Get(rm.Code()); err != nil {
		t.Fatalf("room must survive under the same code: %v", err)
	}

	// The rematch cancelled the old grace-period GC.
	clock.Advance(61 * time.Second)
	if _, err := store.Get(rm.Code()); err != nil {
		t.Fatalf("GC must be cancelled by a rematch: %v", err)
	}
}

func TestLeaveReassignsHost(t *testing.T) {
	_, rm, fb, _ := newTestRoom(t, 2)
	mustJoin(t, rm, "p1")
	mustJoin(t, rm, "p2")

	// Drain the two join broadcasts; they are enqueued before Join returns.
	fb.waitFor(t, EventRoomUpdate)
	fb.waitFor(t, EventRoomUpdate)

	if err := rm.Leave("p1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	ev := fb.waitFor(t, EventRoomUpdate)
	payload := ev.Payload.(RoomUpdatePayload)
	if payload.Host != "p2" || len(payload.Players) != 1 {
		t.Fatalf("expected p2 to inherit a one-player room, got %+v", payload)
	}
}

func TestLeaveEndsSessionWhenRemainingPlayersFinished(t *testing.T) {
	_, rm, fb, _ := startedRoom(t, 2)
	finishPlayer(t, rm, "p1")

	// p2 walks out mid-game; p1 has already exhausted the question set, so
	// the session must end now rather than idling until timer expiry.
	if err := rm.Leave("p2"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	ev := fb.waitFor(t, EventGameEnded)
	payload := ev.Payload.(GameEndedPayload)
	if payload.Reason != models.EndReasonAllFinished {
		t.Fatalf("expected allFinished, got %s", payload.Reason)
	}
	snap, err := rm.Rejoin("p1")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if snap.Status != models.StatusEnded {
		t.Fatalf("expected ended session, got %s", snap.Status)
	}
}

func TestLastPlayerLeavingRemovesWaitingRoom(t *testing.T) {
	store, rm, _, _ := newTestRoom(t, 2)
	code := rm.Code()
	mustJoin(t, rm, "p1")
	if err := rm.Leave("p1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	waitRemoved(t, store, code)
}
