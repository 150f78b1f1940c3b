package server

import (
	"sync"

	"golang.org/x/text/cases"
)

// sessionSet holds every live connection and the nickname index. A slot is
// reserved before its Session exists.
type sessionSet struct {
	mu        sync.Mutex
	max       int
	reserved  int
	live      map[*Session]struct{}
	nicknames map[string]*Session
	fold      cases.Caser
}

func newSessionSet(max int) *sessionSet {
	return &sessionSet{
		max:       max,
		live:      make(map[*Session]struct{}),
		nicknames: make(map[string]*Session),
		fold:      cases.Fold(),
	}
}

// reserve claims a connection slot, or returns ErrServerFull.
func (ss *sessionSet) reserve() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.reserved >= ss.max {
		return ErrServerFull
	}
	ss.reserved++
	return nil
}

func (ss *sessionSet) release() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.reserved > 0 {
		ss.reserved--
	}
}

func (ss *sessionSet) add(s *Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.live[s] = struct{}{}
}

// remove drops s and frees its nickname. The slot itself is freed by release.
func (ss *sessionSet) remove(s *Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	delete(ss.live, s)
	if nickname, _ := s.Identity(); nickname != "" {
		key := ss.fold.String(nickname)
		if ss.nicknames[key] == s {
			delete(ss.nicknames, key)
		}
	}
}

// claim assigns nickname to s if no other live session holds it under case
// folding. A session renaming itself releases its previous name. The avatar
// is chosen on the first successful claim and kept afterwards.
func (ss *sessionSet) claim(s *Session, nickname string, pickAvatar func() string) (string, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	key := ss.fold.String(nickname)
	if holder, taken := ss.nicknames[key]; taken && holder != s {
		return "", ErrNicknameTaken
	}

	previous, avatar := s.Identity()
	if previous != "" {
		if prevKey := ss.fold.String(previous); ss.nicknames[prevKey] == s {
			delete(ss.nicknames, prevKey)
		}
	}
	if avatar == "" {
		avatar = pickAvatar()
	}

	ss.nicknames[key] = s
	s.setIdentity(nickname, avatar)
	return avatar, nil
}

func (ss *sessionSet) snapshot() []*Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	out := make([]*Session, 0, len(ss.live))
	for s := range ss.live {
		out = append(out, s)
	}
	return out
}

func (ss *sessionSet) counts() (connections, sessions int) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.reserved, len(ss.live)
}
