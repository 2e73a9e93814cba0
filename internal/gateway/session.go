package gateway

import "sync"

// SessionState tracks everything needed to resume a Gateway session
// across reconnects: the session id and resume URL Discord hands back in
// READY, and the last sequence number seen from a DISPATCH frame.
type SessionState struct {
	mu               sync.Mutex
	sessionID        string
	resumeGatewayURL string
	sequence         int64
	hasSequence      bool
}

// Ready records the session id and resume URL from a READY dispatch.
func (s *SessionState) Ready(sessionID, resumeGatewayURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	s.resumeGatewayURL = resumeGatewayURL
}

// ObserveSequence records the sequence number of a DISPATCH frame.
func (s *SessionState) ObserveSequence(seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence = seq
	s.hasSequence = true
}

// Sequence returns the last observed sequence number, or (0, false) if
// none has been seen yet.
func (s *SessionState) Sequence() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence, s.hasSequence
}

// Resumable reports whether enough state is held to attempt a Resume
// instead of a fresh Identify.
func (s *SessionState) Resumable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID != "" && s.hasSequence
}

// ResumeInfo returns the session id, resume URL, and sequence needed to
// build a Resume frame.
func (s *SessionState) ResumeInfo() (sessionID, resumeGatewayURL string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID, s.resumeGatewayURL, s.sequence
}

// Clear drops session identity, forcing the next connection to Identify
// fresh rather than Resume.
func (s *SessionState) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.resumeGatewayURL = ""
	s.sequence = 0
	s.hasSequence = false
}
