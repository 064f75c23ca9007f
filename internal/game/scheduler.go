// internal/game/scheduler.go
package game

import (
	"time"
)

// schedule arms the session's single timer slot. Any previously armed timer is
// invalidated by bumping the generation counter, so a stale callback that
// already fired but has not yet taken the lock becomes a no-op. Assumes lock
// is held.
func (s *Session) schedule(d time.Duration, fn func()) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(d, func() {
		s.Mu.Lock()
		defer s.Mu.Unlock()
		if s.closed || s.Ended || gen != s.timerGen {
			return
		}
		fn()
	})
}

// cancelTimer stops the timer slot and invalidates in-flight callbacks.
// Assumes lock is held.
func (s *Session) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

// countdownTick runs once per second during the pre-game countdown. Assumes
// lock is held (invoked via schedule).
func (s *Session) countdownTick() {
	s.countdown--
	s.broadcast(Event{Type: EventCountdownUpdate, Count: intPtr(s.countdown)})
	if s.countdown <= 0 {
		s.beginPlay()
		return
	}
	s.schedule(s.TickInterval, s.countdownTick)
}

// beginPlay transitions starting -> playing: shuffles the deck, reveals the
// first card, and delivers each connected player their private hand in the
// same game-started message. Assumes lock is held.
func (s *Session) beginPlay() {
	s.State = StatePlaying
	s.Deck = NewDeck()
	s.RevealCursor = 1
	s.CurrentCard = &s.Deck[0]
	s.TimeLeft = s.RevealSeconds

	s.notifyStatus(StatusPlaying)
	s.logEvent(s.HostID, "game_start", map[string]interface{}{"players": len(s.Players)})

	now := time.Now().UnixMilli()
	for id, p := range s.Players {
		if !p.Connected {
			continue
		}
		s.broadcastTo(id, Event{
			Type:        EventGameStarted,
			Hand:        p.Hand,
			CurrentCard: s.CurrentCard,
			CardIndex:   intPtr(0),
			TimeLeft:    intPtr(s.TimeLeft),
			Timestamp:   now,
		})
	}
	s.schedule(s.TickInterval, s.revealTick)
}

// revealTick counts the current card's window down one second at a time. When
// the window hits zero a short gap separates it from the next reveal. Assumes
// lock is held (invoked via schedule).
func (s *Session) revealTick() {
	s.TimeLeft--
	s.broadcast(Event{Type: EventTimeUpdate, TimeLeft: intPtr(s.TimeLeft)})
	if s.TimeLeft > 0 {
		s.schedule(s.TickInterval, s.revealTick)
		return
	}
	s.schedule(s.RevealGap, s.advanceReveal)
}

// advanceReveal shows the next card, or finishes the game when the deck is
// exhausted. Assumes lock is held (invoked via schedule).
func (s *Session) advanceReveal() {
	if s.RevealCursor >= len(s.Deck) {
		s.finishExhausted()
		return
	}
	idx := s.RevealCursor
	s.CurrentCard = &s.Deck[idx]
	s.RevealCursor = idx + 1
	s.TimeLeft = s.RevealSeconds

	s.broadcast(Event{
		Type:      EventNewCard,
		Card:      s.CurrentCard,
		CardIndex: intPtr(idx),
		TimeLeft:  intPtr(s.TimeLeft),
		Timestamp: time.Now().UnixMilli(),
	})
	s.schedule(s.TickInterval, s.revealTick)
}

// scheduleCleanup arms the post-game grace timer. When it fires the session is
// removed so late sockets stop finding it. Assumes lock is held.
func (s *Session) scheduleCleanup() {
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
	}
	s.cleanupTimer = time.AfterFunc(s.CleanupDelay, func() {
		s.Mu.Lock()
		defer s.Mu.Unlock()
		s.close()
	})
}
