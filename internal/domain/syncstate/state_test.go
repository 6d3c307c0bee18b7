package syncstate

import (
	"fmt"
	"testing"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusIdle, StatusSyncing, true},
		{StatusSyncing, StatusIdle, true},
		{StatusSyncing, StatusError, true},
		{StatusError, StatusIdle, true},
		{StatusIdle, StatusError, false},
		{StatusError, StatusSyncing, false},
		{StatusSyncing, StatusSyncing, false},
		{"", StatusSyncing, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransitionRejectsInvalid(t *testing.T) {
	s := &State{Status: StatusIdle}
	if err := s.Transition(StatusError); err == nil {
		t.Fatal("expected error for idle -> error")
	}
	if s.Status != StatusIdle {
		t.Error("status changed after rejected transition")
	}
}

func TestRecordCapsHistory(t *testing.T) {
	s := &State{}
	start := time.Now()
	for i := 0; i < HistoryLimit+7; i++ {
		s.Record(NewEvent("c", EventSuccess, start.Add(time.Duration(i)*time.Second), fmt.Sprintf("event %d", i), nil))
	}

	if len(s.History) != HistoryLimit {
		t.Fatalf("history = %d, want %d", len(s.History), HistoryLimit)
	}
	if s.History[0].Message != "event 7" {
		t.Errorf("oldest kept = %q, want event 7", s.History[0].Message)
	}

	recent := s.RecentEvents(2)
	if len(recent) != 2 || recent[0].Message != fmt.Sprintf("event %d", HistoryLimit+6) {
		t.Errorf("RecentEvents() = %+v", recent)
	}
}

func TestRecoverNormalizesInterruptedCycle(t *testing.T) {
	s := &State{Status: StatusSyncing}
	if !s.Recover() {
		t.Fatal("Recover() = false for a syncing record")
	}
	if s.Status != StatusIdle || s.LastError == "" {
		t.Errorf("after Recover: %+v", s)
	}

	fresh := &State{}
	if fresh.Recover() || fresh.Status != StatusIdle {
		t.Errorf("fresh record: status %q", fresh.Status)
	}
}

func TestParkReleaseOverride(t *testing.T) {
	s := &State{}
	s.Park(conflict.Item{ID: "faq", Kind: conflict.KindPage})

	if !s.IsParked("faq") {
		t.Fatal("faq not parked")
	}
	if s.Release("missing", conflict.StrategyMerge) {
		t.Error("Release of unknown id should report false")
	}
	if !s.Release("faq", conflict.StrategyLocalWins) {
		t.Fatal("Release(faq) = false")
	}
	if s.IsParked("faq") {
		t.Error("faq still parked")
	}

	strategy, ok := s.TakeOverride("faq")
	if !ok || strategy != conflict.StrategyLocalWins {
		t.Errorf("TakeOverride() = %s, %v", strategy, ok)
	}
	if _, ok := s.TakeOverride("faq"); ok {
		t.Error("override must be one-shot")
	}
}
