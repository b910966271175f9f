package models

import (
	"testing"
	"time"
)

var testQuestions = []Question{
	{Statement: "2+2", Answer: 4, Points: QuestionPoints},
	{Statement: "3*3", Answer: 9, Points: QuestionPoints},
}

func TestTimeLeftWaiting(t *testing.T) {
	now := time.Now()
	s := NewSession("AB12", 1, testQuestions, now)
	if got := s.TimeLeft(now.Add(30 * time.Second)); got != 60 {
		t.Fatalf("waiting session should report the full duration, got %d", got)
	}
}

func TestTimeLeftActiveDerivesFromWallClock(t *testing.T) {
	now := time.Now()
	s := NewSession("AB12", 2, testQuestions, now)
	s.Status = StatusActive
	s.StartedAt = now

	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 120},
		{30 * time.Second, 90},
		{119 * time.Second, 1},
		{120 * time.Second, 0},
		{10 * time.Minute, 0},
	}
	for _, tc := range cases {
		if got := s.TimeLeft(now.Add(tc.elapsed)); got != tc.want {
			t.Errorf("elapsed %v: expected %d, got %d", tc.elapsed, tc.want, got)
		}
	}
}

func TestTimeLeftEnded(t *testing.T) {
	now := time.Now()
	s := NewSession("AB12", 1, testQuestions, now)
	s.Status = StatusEnded
	if got := s.TimeLeft(now); got != 0 {
		t.Fatalf("ended session should report 0, got %d", got)
	}
}

func TestAddPlayerIdempotent(t *testing.T) {
	now := time.Now()
	s := NewSession("AB12", 1, testQuestions, now)

	first := s.AddPlayer("p1", now)
	first.Score = 20
	first.CurrentIndex = 2

	again := s.AddPlayer("p1", now.Add(time.Minute))
	if again != first {
		t.Fatal("re-adding the same identity should return the existing state")
	}
	if again.Score != 20 || again.CurrentIndex != 2 {
		t.Fatalf("re-add must not reset progress: %+v", again)
	}
}

func TestFirstPlayerBecomesHost(t *testing.T) {
	now := time.Now()
	s := NewSession("AB12", 1, testQuestions, now)
	s.AddPlayer("p1", now)
	s.AddPlayer("p2", now)
	if s.HostIdentity != "p1" {
		t.Fatalf("expected p1 to be host, got %q", s.HostIdentity)
	}
}

func TestRemovePlayerReassignsHost(t *testing.T) {
	now := time.Now()
	s := NewSession("AB12", 1, testQuestions, now)
	s.AddPlayer("p1", now)
	s.AddPlayer("p2", now)
	s.AddPlayer("p3", now)

	s.RemovePlayer("p1")
	if s.HostIdentity != "p2" {
		t.Fatalf("expected earliest remaining joiner p2 as host, got %q", s.HostIdentity)
	}
}

func TestAllFinished(t *testing.T) {
	now := time.Now()
	s := NewSession("AB12", 1, testQuestions, now)
	if s.AllFinished() {
		t.Fatal("empty session must not count as finished")
	}
	p1 := s.AddPlayer("p1", now)
	p2 := s.AddPlayer("p2", now)
	p1.CurrentIndex = len(testQuestions)
	if s.AllFinished() {
		t.Fatal("one unfinished player left")
	}
	p2.CurrentIndex = len(testQuestions)
	if !s.AllFinished() {
		t.Fatal("all players finished")
	}
}

func TestProgressSortedByJoinOrder(t *testing.T) {
	now := time.Now()
	s := NewSession("AB12", 1, testQuestions, now)
	s.AddPlayer("zed", now)
	s.AddPlayer("amy", now)
	s.AddPlayer("mia", now)

	progress := s.Progress()
	want := []string{"zed", "amy", "mia"}
	for i, identity := range want {
		if progress[i].Identity != identity {
			t.Fatalf("position %d: expected %q, got %q", i, identity, progress[i].Identity)
		}
	}
}

func TestRematchResetsProgressKeepsPlayers(t *testing.T) {
	now := time.Now()
	s := NewSession("AB12", 1, testQuestions, now)
	p1 := s.AddPlayer("p1", now)
	s.AddPlayer("p2", now)
	p1.Score = 20
	p1.CurrentIndex = 2
	s.Status = StatusEnded

	fresh := []Question{{Statement: "5+5", Answer: 10, Points: QuestionPoints}}
	next := s.Rematch(fresh, now.Add(time.Minute))

	if next == s {
		t.Fatal("rematch must produce a new session object")
	}
	if next.RoomCode != "AB12" || next.Mode != 1 {
		t.Fatalf("room code and mode must carry over: %+v", next)
	}
	if next.Status != StatusWaiting {
		t.Fatalf("new session should start waiting, got %s", next.Status)
	}
	if len(next.Players) != 2 {
		t.Fatalf("expected both players carried over, got %d", len(next.Players))
	}
	np1 := next.Players["p1"]
	if np1.Score != 0 || np1.CurrentIndex != 0 {
		t.Fatalf("progress must reset: %+v", np1)
	}
	if np1.JoinOrder != p1.JoinOrder {
		t.Fatal("join order must be preserved across rematch")
	}
	if s.Players["p1"].Score != 20 {
		t.Fatal("old session must stay untouched")
	}
	if next.HostIdentity != s.HostIdentity {
		t.Fatal("host must carry over")
	}
}
