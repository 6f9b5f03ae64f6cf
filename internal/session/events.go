package session

// LogoutReason says why a session was torn down
type LogoutReason string

const (
	ReasonSessionReplaced LogoutReason = "session-replaced"
	ReasonRefreshFailed   LogoutReason = "refresh-failed"
	ReasonUser            LogoutReason = "user"
)

// LogoutEvent is broadcast when credentials are dropped
type LogoutEvent struct {
	Reason LogoutReason
}

// Subscribe registers fn for logout events. The returned func unsubscribes.
func (s *Session) Subscribe(fn func(LogoutEvent)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// Broadcast delivers ev to every listener synchronously
func (s *Session) Broadcast(ev LogoutEvent) {
	s.listenersMu.Lock()
	fns := make([]func(LogoutEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	s.log.WithField("reason", ev.Reason).Info("auth:logout")
	for _, fn := range fns {
		fn(ev)
	}
}
