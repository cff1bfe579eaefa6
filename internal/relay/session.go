package relay

import "sync"

// SessionStore owns every process-local map of the relay: the awaiting-
// question flags, the outbound-message → user correlation, the per-operator
// reply targets and the control-message index. All access goes through the
// one mutex; handlers run on separate goroutines.
//
// State is volatile by design: in-flight sessions are lost on restart.
type SessionStore struct {
	mu sync.Mutex

	awaiting map[int64]bool

	// origins maps operator-channel message ids back to the user whose
	// content produced them. Bounded FIFO: once maxOrigins correlations
	// exist the oldest is evicted, since handles that old no longer appear
	// in the operator's working set.
	origins     map[int]int64
	originOrder []int
	maxOrigins  int

	replyTargets map[int64]int64 // operator id -> user id
	controls     map[int64]MessageRef
}

const defaultOriginLimit = 4096

// NewSessionStore builds an empty store. originLimit bounds the correlation
// index; non-positive means the default.
func NewSessionStore(originLimit int) *SessionStore {
	if originLimit <= 0 {
		originLimit = defaultOriginLimit
	}
	return &SessionStore{
		awaiting:     make(map[int64]bool),
		origins:      make(map[int]int64),
		maxOrigins:   originLimit,
		replyTargets: make(map[int64]int64),
		controls:     make(map[int64]MessageRef),
	}
}

// SetAwaiting flags the user as expected to send a question next.
func (s *SessionStore) SetAwaiting(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaiting[userID] = true
}

// ClearAwaiting drops the flag.
func (s *SessionStore) ClearAwaiting(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.awaiting, userID)
}

// Awaiting reports whether the user's next message is a support question.
func (s *SessionStore) Awaiting(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaiting[userID]
}

// RecordOrigin correlates an operator-channel message with its originating
// user, evicting the oldest correlation when the bound is hit.
func (s *SessionStore) RecordOrigin(messageID int, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.origins[messageID]; !exists {
		s.originOrder = append(s.originOrder, messageID)
	}
	s.origins[messageID] = userID
	for len(s.originOrder) > s.maxOrigins {
		oldest := s.originOrder[0]
		s.originOrder = s.originOrder[1:]
		delete(s.origins, oldest)
	}
}

// Origin resolves an operator-channel message back to its user.
func (s *SessionStore) Origin(messageID int) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.origins[messageID]
	return id, ok
}

// SetReplyTarget enters (or replaces) the operator's reply session and
// returns the superseded target, if any.
func (s *SessionStore) SetReplyTarget(operatorID, userID int64) (prev int64, had bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had = s.replyTargets[operatorID]
	s.replyTargets[operatorID] = userID
	return prev, had
}

// ReplyTarget returns the user the operator is currently answering.
func (s *SessionStore) ReplyTarget(operatorID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.replyTargets[operatorID]
	return id, ok
}

// ClearReplyTarget ends the operator's reply session.
func (s *SessionStore) ClearReplyTarget(operatorID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.replyTargets[operatorID]
	delete(s.replyTargets, operatorID)
	return id, ok
}

// SetControl remembers where the control affordance for a user's forwarded
// question lives.
func (s *SessionStore) SetControl(userID int64, ref MessageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls[userID] = ref
}

// Control returns the control-message handle for a user.
func (s *SessionStore) Control(userID int64) (MessageRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.controls[userID]
	return ref, ok
}

// DeleteControl forgets the control-message handle for a user.
func (s *SessionStore) DeleteControl(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.controls, userID)
}
