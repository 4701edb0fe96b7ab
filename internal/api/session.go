package api

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"duel-arena/internal/loadout"
	"duel-arena/internal/profile"
	"duel-arena/internal/wire"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 4096
)

var errSessionClosed = errors.New("session closed")

// Session is one websocket connection. Reads happen on a single goroutine;
// writes from any goroutine are serialized by writeMu.
type Session struct {
	id    string
	ip    string
	conn  *websocket.Conn
	codec wire.Codec
	log   *zap.Logger

	// actions caps gameplay messages per second
	actions *rate.Limiter

	writeMu sync.Mutex

	mu        sync.Mutex
	user      *profile.Profile
	loadout   *loadout.Loadout
	cooldowns loadout.Cooldowns
	matchID   string
	closed    bool
}

func newSession(id, ip string, conn *websocket.Conn, codec wire.Codec, actions *rate.Limiter, log *zap.Logger) *Session {
	return &Session{
		id:      id,
		ip:      ip,
		conn:    conn,
		codec:   codec,
		actions: actions,
		log:     log.With(zap.String("session", id), zap.String("codec", codec.Name())),
	}
}

// ID returns the session id, which is also its match participant id.
func (s *Session) ID() string { return s.id }

// Send encodes and writes m. Safe for concurrent use.
func (s *Session) Send(m *wire.Message) error {
	data, err := s.codec.Encode(m)
	if err != nil {
		s.log.Error("encode failed", zap.String("type", string(m.Type)), zap.Error(err))
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return errSessionClosed
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(s.codec.FrameType(), data); err != nil {
		s.log.Debug("write failed", zap.Error(err))
		return err
	}
	IncrementWSMessages("out")
	return nil
}

func (s *Session) sendError(code, format string, args ...any) {
	s.Send(wire.Errorf(code, format, args...))
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close marks the session closed and returns the match it was in.
func (s *Session) close() string {
	s.mu.Lock()
	s.closed = true
	id := s.matchID
	s.mu.Unlock()

	s.writeMu.Lock()
	s.conn.Close()
	s.writeMu.Unlock()
	return id
}

func (s *Session) profile() (profile.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return profile.Profile{}, false
	}
	return *s.user, true
}

func (s *Session) setProfile(p profile.Profile) {
	s.mu.Lock()
	s.user = &p
	s.mu.Unlock()
}

func (s *Session) currentMatch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

// join records the match the session plays in. It fails once the
// session has closed or when it is already in another match.
func (s *Session) join(matchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.matchID != "" {
		return false
	}
	s.matchID = matchID
	s.cooldowns.Reset()
	return true
}

// leave clears matchID if it is still the current match.
func (s *Session) leave(matchID string) {
	s.mu.Lock()
	if s.matchID == matchID {
		s.matchID = ""
	}
	s.mu.Unlock()
}

func (s *Session) setLoadout(l loadout.Loadout) {
	s.mu.Lock()
	s.loadout = &l
	s.cooldowns.Reset()
	s.mu.Unlock()
}

// useSkill fires slot if the session has a loadout and the slot is ready.
func (s *Session) useSkill(slot int, now time.Time) (loadout.Skill, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadout == nil {
		return loadout.Skill{}, 0, errNoLoadout
	}
	skill, ok := s.loadout.Skill(slot)
	if !ok {
		return loadout.Skill{}, 0, errBadSlot
	}
	wait, ok := s.cooldowns.Use(slot, skill, now)
	if !ok {
		return skill, wait, errCoolingDown
	}
	return skill, 0, nil
}

// weaponID picks the requested weapon, then the loadout's, then none.
func (s *Session) weaponID(requested string) string {
	if requested != "" {
		return requested
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadout != nil {
		return s.loadout.Weapon.ID
	}
	return ""
}

var (
	errNoLoadout   = errors.New("no loadout set")
	errBadSlot     = errors.New("no skill in that slot")
	errCoolingDown = errors.New("skill on cooldown")
)
