// Package session keeps per-user conversation state: the pending file action
// and a bounded message history.
package session

import (
	"strings"
	"sync"
	"time"
)

// Action is the file operation a user asked for before sending a file.
type Action int

const (
	ActionNone Action = iota
	ActionCompressImage
	ActionCompressPDF
	ActionImageToPDF
	ActionPDFToImages
)

// String returns the command name of the action.
func (a Action) String() string {
	switch a {
	case ActionCompressImage:
		return "compress_image"
	case ActionCompressPDF:
		return "compress_pdf"
	case ActionImageToPDF:
		return "img2pdf"
	case ActionPDFToImages:
		return "pdf2img"
	default:
		return "none"
	}
}

// Prompt is what the user is told after choosing the action.
func (a Action) Prompt() string {
	switch a {
	case ActionCompressImage:
		return "Send me the image to compress."
	case ActionCompressPDF:
		return "Send me the PDF to compress."
	case ActionImageToPDF:
		return "Send me the image to convert to PDF."
	case ActionPDFToImages:
		return "Send me the PDF to convert to images."
	default:
		return ""
	}
}

// ParseAction maps a bot command, with or without the leading slash, to an
// Action. Unknown commands map to ActionNone.
func ParseAction(command string) Action {
	switch strings.TrimPrefix(strings.ToLower(command), "/") {
	case "compress_image":
		return ActionCompressImage
	case "compress_pdf":
		return ActionCompressPDF
	case "img2pdf":
		return ActionImageToPDF
	case "pdf2img":
		return ActionPDFToImages
	default:
		return ActionNone
	}
}

// Role tells who produced a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one message in a conversation.
type Entry struct {
	Role Role
	Text string
	At   time.Time
}

// Session is the state of one user.
type Session struct {
	UserID   int64
	Pending  Action
	History  []Entry
	LastSeen time.Time
}

// Store maps user ids to sessions. Both the history of a session and the
// number of sessions are bounded; the oldest entry or the least recently
// seen session is dropped first.
type Store struct {
	mu          sync.Mutex
	sessions    map[int64]*Session
	historyCap  int
	maxSessions int
	now         func() time.Time
}

// NewStore returns a store keeping at most historyCap entries per session and
// at most maxSessions sessions. Non-positive values disable the bound.
func NewStore(historyCap, maxSessions int) *Store {
	return &Store{
		sessions:    make(map[int64]*Session),
		historyCap:  historyCap,
		maxSessions: maxSessions,
		now:         time.Now,
	}
}

// session returns the session of user, creating it. Caller holds mu.
func (s *Store) session(user int64) *Session {
	sess, ok := s.sessions[user]
	if !ok {
		if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
			s.evictOldest()
		}
		sess = &Session{UserID: user}
		s.sessions[user] = sess
	}
	sess.LastSeen = s.now()
	return sess
}

func (s *Store) evictOldest() {
	var oldest *Session
	for _, sess := range s.sessions {
		if oldest == nil || sess.LastSeen.Before(oldest.LastSeen) {
			oldest = sess
		}
	}
	if oldest != nil {
		delete(s.sessions, oldest.UserID)
	}
}

// SetPending records the action the next file of user is for.
func (s *Store) SetPending(user int64, a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session(user).Pending = a
}

// Pending returns the pending action without clearing it.
func (s *Store) Pending(user int64) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[user]; ok {
		return sess.Pending
	}
	return ActionNone
}

// Take returns the pending action of user and clears it.
func (s *Store) Take(user int64) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[user]
	if !ok {
		return ActionNone
	}
	a := sess.Pending
	sess.Pending = ActionNone
	sess.LastSeen = s.now()
	return a
}

// Append adds a message to the history of user.
func (s *Store) Append(user int64, role Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(user)
	sess.History = append(sess.History, Entry{Role: role, Text: text, At: s.now()})
	if s.historyCap > 0 && len(sess.History) > s.historyCap {
		drop := len(sess.History) - s.historyCap
		sess.History = append(sess.History[:0:0], sess.History[drop:]...)
	}
}

// History returns a copy of the last n entries of user, or all when n <= 0.
func (s *Store) History(user int64, n int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[user]
	if !ok {
		return nil
	}
	h := sess.History
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]Entry(nil), h...)
}

// Reset clears the pending action and history of user.
func (s *Store) Reset(user int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, user)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
