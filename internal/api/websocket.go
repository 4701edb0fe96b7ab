package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"duel-arena/internal/bot"
	"duel-arena/internal/combat"
	"duel-arena/internal/loadout"
	"duel-arena/internal/match"
	"duel-arena/internal/profile"
	"duel-arena/internal/wire"
)

const (
	defaultDamage = 10
	recordTimeout = 5 * time.Second
)

// HubConfig wires a Hub.
type HubConfig struct {
	Matches  *match.Manager         // required
	Weapons  *combat.WeaponRegistry // required
	Catalog  *loadout.Catalog       // required
	Profiles *profile.Service       // required

	Origins          []string // websocket origin allow list; empty allows any
	MaxConnections   int
	MaxPerIP         int
	ActionsPerSecond float64
	ActionBurst      int
	MaxDamage        int // attack damage is clamped to [0, MaxDamage]

	BotDifficulty bot.Difficulty // used when practice does not name one
	BotDamage     int

	Log *zap.Logger
}

// Hub owns every websocket session, the ranked queue and the practice bots.
type Hub struct {
	cfg      HubConfig
	log      *zap.Logger
	upgrader websocket.Upgrader
	conns    *ConnLimiter
	queue    *match.Queue
	nextID   atomic.Uint64

	mu       sync.RWMutex
	sessions map[string]*Session
	bots     map[string]*bot.Bot      // by match id
	koEnds   map[string]match.Summary // KO summaries held until the hit is reported
}

// NewHub creates a hub and subscribes it to match endings.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.MaxDamage <= 0 {
		cfg.MaxDamage = 50
	}
	if cfg.ActionsPerSecond <= 0 {
		cfg.ActionsPerSecond = 20
	}
	if cfg.ActionBurst <= 0 {
		cfg.ActionBurst = 10
	}
	if cfg.BotDifficulty == "" {
		cfg.BotDifficulty = bot.Easy
	}
	if cfg.BotDamage <= 0 {
		cfg.BotDamage = defaultDamage
	}
	if len(cfg.Origins) == 0 {
		cfg.Origins = []string{"*"}
	}

	h := &Hub{
		cfg:      cfg,
		log:      cfg.Log,
		conns:    NewConnLimiter(cfg.MaxConnections, cfg.MaxPerIP),
		sessions: make(map[string]*Session),
		bots:     make(map[string]*bot.Bot),
		koEnds:   make(map[string]match.Summary),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    wire.Subprotocols,
		CheckOrigin:     NewOriginChecker(cfg.Origins).CheckOrigin,
	}
	h.queue = match.NewQueue(h.pair)
	cfg.Matches.OnEnd(h.matchEnded)
	return h
}

// ServeHTTP upgrades the request and starts the session's read loop.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if reason, ok := h.conns.Acquire(ip); !ok {
		h.log.Warn("websocket connection rejected", zap.String("ip", ip), zap.String("reason", reason))
		RecordConnectionRejected(reason)
		code := http.StatusServiceUnavailable
		if reason == "ws_ip_limit" {
			code = http.StatusTooManyRequests
		}
		http.Error(w, "too many connections", code)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.String("ip", ip), zap.Error(err))
		h.conns.Release(ip)
		return
	}

	id := "s" + strconv.FormatUint(h.nextID.Add(1), 10)
	limiter := rate.NewLimiter(rate.Limit(h.cfg.ActionsPerSecond), h.cfg.ActionBurst)
	s := newSession(id, ip, conn, wire.Negotiate(conn.Subprotocol()), limiter, h.log)

	h.mu.Lock()
	h.sessions[id] = s
	count := len(h.sessions)
	h.mu.Unlock()
	UpdateWSConnections(count)
	s.log.Info("client connected", zap.String("ip", ip), zap.Int("total", count))

	s.Send(&wire.Message{Type: wire.TypeWelcome, ID: id})
	go h.readLoop(s)
}

func (h *Hub) readLoop(s *Session) {
	defer h.disconnect(s)

	s.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		IncrementWSMessages("in")

		var msg wire.Message
		if err := s.codec.Decode(data, &msg); err != nil {
			s.sendError(wire.CodeBadMessage, "%v", err)
			continue
		}
		if err := msg.Validate(); err != nil {
			s.sendError(wire.CodeBadMessage, "%v", err)
			continue
		}
		h.handle(s, &msg)
	}
}

func (h *Hub) disconnect(s *Session) {
	matchID := s.close()
	h.queue.Remove(s.id)

	h.mu.Lock()
	delete(h.sessions, s.id)
	count := len(h.sessions)
	h.mu.Unlock()

	h.conns.Release(s.ip)
	UpdateWSConnections(count)
	s.log.Info("client disconnected", zap.Int("remaining", count))

	if matchID == "" {
		return
	}
	if m, err := h.cfg.Matches.Get(matchID); err == nil {
		m.Forfeit(s.id, match.EndDisconnect)
	}
}

func (h *Hub) session(id string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[id]
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// QueueLen returns the number of players waiting for a ranked match.
func (h *Hub) QueueLen() int { return h.queue.Len() }

// Close stops every bot and drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	bots := h.bots
	h.bots = make(map[string]*bot.Bot)
	h.mu.Unlock()

	for _, b := range bots {
		b.Stop()
	}
	for _, s := range sessions {
		s.close()
	}
}

// gameplay messages count against the session's action limiter
var limited = map[wire.Type]bool{
	wire.TypeAction:   true,
	wire.TypeAttack:   true,
	wire.TypeMove:     true,
	wire.TypeUseSkill: true,
}

func (h *Hub) handle(s *Session, msg *wire.Message) {
	if limited[msg.Type] && !s.actions.Allow() {
		s.Send(&wire.Message{
			Type:         wire.TypeError,
			Code:         wire.CodeRateLimited,
			Error:        "too many actions",
			RetryAfterMs: int64(1000 / h.cfg.ActionsPerSecond),
		})
		return
	}

	switch msg.Type {
	case wire.TypePing:
		s.Send(&wire.Message{Type: wire.TypePong, Time: time.Now().UnixMilli()})
	case wire.TypeLogin:
		h.handleLogin(s, msg)
	case wire.TypeQueue:
		h.handleQueue(s, msg)
	case wire.TypePractice:
		h.handlePractice(s, msg)
	case wire.TypeSetLoadout:
		h.handleSetLoadout(s, msg)
	case wire.TypeUseSkill:
		h.handleUseSkill(s, msg)
	case wire.TypeAction:
		h.handleAction(s, msg)
	case wire.TypeAttack:
		h.handleAttack(s, msg)
	case wire.TypeMove:
		h.handleMove(s, msg)
	case wire.TypeLeave:
		h.handleLeave(s)
	}
}

func (h *Hub) handleLogin(s *Session, msg *wire.Message) {
	if s.currentMatch() != "" {
		s.sendError(wire.CodeAlreadyInMatch, "cannot change user during a match")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	p, err := h.cfg.Profiles.Login(ctx, msg.Name)
	if errors.Is(err, profile.ErrInvalidName) {
		s.sendError(wire.CodeBadMessage, "%v", err)
		return
	}
	if err != nil {
		s.log.Error("login failed", zap.String("name", msg.Name), zap.Error(err))
		s.sendError(wire.CodeInternal, "login failed")
		return
	}
	s.setProfile(p)
	s.log.Info("logged in", zap.String("name", p.Name), zap.Int64("user", p.ID))
	s.Send(&wire.Message{Type: wire.TypeLoginOK, User: &p})
}

func (h *Hub) participant(s *Session) match.Participant {
	p := match.Participant{ID: s.id, Name: "guest-" + s.id}
	if u, ok := s.profile(); ok {
		p.ProfileID = u.ID
		p.Name = u.Name
	}
	return p
}

func (h *Hub) weapon(s *Session, requested string) (combat.Weapon, error) {
	id := s.weaponID(requested)
	if id == "" {
		return h.cfg.Weapons.Default(), nil
	}
	return h.cfg.Weapons.Get(id)
}

func (h *Hub) handleQueue(s *Session, msg *wire.Message) {
	if _, ok := s.profile(); !ok {
		s.sendError(wire.CodeNotLoggedIn, "login before queueing")
		return
	}
	if s.currentMatch() != "" {
		s.sendError(wire.CodeAlreadyInMatch, "already in a match")
		return
	}
	w, err := h.weapon(s, msg.Weapon)
	if err != nil {
		s.sendError(wire.CodeInvalidLoadout, "%v", err)
		return
	}

	// queued goes out first; pairing may send match_start from Enqueue
	s.Send(&wire.Message{Type: wire.TypeQueued, Weapon: w.ID})
	h.queue.Enqueue(match.Ticket{Participant: h.participant(s), Weapon: w})
}

// pair starts a ranked match for two queued tickets.
func (h *Hub) pair(a, b match.Ticket) {
	sa, sb := h.session(a.ID), h.session(b.ID)
	switch {
	case sa == nil && sb == nil:
		return
	case sa == nil:
		h.queue.Enqueue(b)
		return
	case sb == nil:
		h.queue.Enqueue(a)
		return
	}

	m, err := h.cfg.Matches.Create(match.ModeRanked, a.Participant, b.Participant, a.Weapon, b.Weapon)
	if err != nil {
		h.log.Warn("ranked match refused", zap.Error(err))
		for _, s := range []*Session{sa, sb} {
			s.sendError(wire.CodeServerBusy, "%v", err)
		}
		return
	}

	for _, s := range []*Session{sa, sb} {
		if !s.join(m.ID()) {
			m.Forfeit(s.id, match.EndDisconnect)
			return
		}
	}
	h.sendMatchStart(m)
}

func (h *Hub) sendMatchStart(m *match.Match) {
	v := m.Snapshot()
	players := m.Players()
	for i, p := range players {
		if s := h.session(p.ID); s != nil {
			s.Send(&wire.Message{
				Type:     wire.TypeMatchStart,
				MatchID:  m.ID(),
				Opponent: players[1-i].Name,
				State:    &v,
			})
		}
	}
}

func (h *Hub) handlePractice(s *Session, msg *wire.Message) {
	if s.currentMatch() != "" {
		s.sendError(wire.CodeAlreadyInMatch, "already in a match")
		return
	}
	difficulty := h.cfg.BotDifficulty
	if msg.Difficulty != "" {
		d, err := bot.ParseDifficulty(msg.Difficulty)
		if err != nil {
			s.sendError(wire.CodeBadMessage, "%v", err)
			return
		}
		difficulty = d
	}
	w, err := h.weapon(s, msg.Weapon)
	if err != nil {
		s.sendError(wire.CodeInvalidLoadout, "%v", err)
		return
	}

	// a practice player never waits in the ranked queue at the same time
	h.queue.Remove(s.id)

	botID := "bot-" + s.id
	opponent := match.Participant{ID: botID, Name: "bot (" + string(difficulty) + ")", Bot: true}
	m, err := h.cfg.Matches.Create(match.ModePractice, h.participant(s), opponent, w, h.cfg.Weapons.Default())
	if err != nil {
		s.sendError(wire.CodeServerBusy, "%v", err)
		return
	}
	if !s.join(m.ID()) {
		m.Forfeit(s.id, match.EndDisconnect)
		return
	}

	b := bot.New(m, bot.Config{
		ID:         botID,
		OpponentID: s.id,
		Difficulty: difficulty,
		Damage:     h.cfg.BotDamage,
		Log:        h.log,
		OnTurn: func(t bot.Turn) {
			h.botTurn(m, botID, s.id, t)
		},
	})
	h.mu.Lock()
	h.bots[m.ID()] = b
	h.mu.Unlock()

	h.sendMatchStart(m)
	b.Start()
}

// botTurn reports a bot step to its human opponent.
func (h *Hub) botTurn(m *match.Match, botID, humanID string, t bot.Turn) {
	if t.Action != "" {
		h.reportAction(m, botID, t.Action, t.Outcome)
	}
	if res, ok := t.Hit.Get(); ok {
		h.reportHit(m, botID, humanID, h.cfg.BotDamage, res)
		return
	}
	if t.Decision == bot.MoveTowards || t.Decision == bot.MoveAway {
		h.broadcastState(m)
	}
}

func (h *Hub) handleSetLoadout(s *Session, msg *wire.Message) {
	l, err := h.cfg.Catalog.Validate(msg.Weapon, msg.Skills, h.cfg.Weapons)
	if err != nil {
		code := wire.CodeInvalidLoadout
		if errors.Is(err, loadout.ErrInvalidSkill) {
			code = wire.CodeInvalidSkill
		}
		s.sendError(code, "%v", err)
		return
	}
	s.setLoadout(l)

	if id := s.currentMatch(); id != "" {
		if m, err := h.cfg.Matches.Get(id); err == nil {
			m.Equip(s.id, l.Weapon)
		}
	}

	defs := make([]loadout.SkillDef, len(l.Skills))
	for i, sk := range l.Skills {
		defs[i] = sk.SkillDef
	}
	s.Send(&wire.Message{Type: wire.TypeLoadoutOK, Weapon: l.Weapon.ID, Skills: defs})
}

func (h *Hub) handleUseSkill(s *Session, msg *wire.Message) {
	slot := *msg.Index
	skill, wait, err := s.useSkill(slot, h.cfg.Matches.Resolver().Now())
	switch {
	case errors.Is(err, errNoLoadout):
		s.sendError(wire.CodeNoLoadout, "set a loadout first")
	case errors.Is(err, errBadSlot):
		s.sendError(wire.CodeInvalidSkill, "no skill in slot %d", slot)
	case errors.Is(err, errCoolingDown):
		s.Send(&wire.Message{
			Type:         wire.TypeError,
			Code:         wire.CodeSkillCooldown,
			Error:        "skill on cooldown",
			Index:        wire.IntPtr(slot),
			RetryAfterMs: wait.Milliseconds(),
		})
	default:
		s.Send(&wire.Message{
			Type:  wire.TypeSkillExecuted,
			Index: wire.IntPtr(slot),
			Skill: wire.NewSkillView(skill),
		})
	}
}

// liveMatch returns the session's match or reports not_in_match.
func (h *Hub) liveMatch(s *Session) (*match.Match, bool) {
	id := s.currentMatch()
	if id == "" {
		s.sendError(wire.CodeNotInMatch, "not in a match")
		return nil, false
	}
	m, err := h.cfg.Matches.Get(id)
	if err != nil {
		s.leave(id)
		s.sendError(wire.CodeNotInMatch, "%v", err)
		return nil, false
	}
	return m, true
}

// matchError maps a Match error onto the client.
func (h *Hub) matchError(s *Session, err error) {
	switch {
	case errors.Is(err, match.ErrMatchOver), errors.Is(err, match.ErrNotParticipant):
		s.sendError(wire.CodeNotInMatch, "%v", err)
	case errors.Is(err, match.ErrWrongTarget):
		s.sendError(wire.CodeBadMessage, "%v", err)
	default:
		s.log.Error("match call failed", zap.Error(err))
		s.sendError(wire.CodeInternal, "internal error")
	}
}

func (h *Hub) handleAction(s *Session, msg *wire.Message) {
	a, err := combat.ParseAction(msg.Action)
	if err != nil {
		s.sendError(wire.CodeInvalidAction, "%v", err)
		return
	}
	m, ok := h.liveMatch(s)
	if !ok {
		return
	}
	out, err := m.Act(s.id, a)
	if err != nil {
		h.matchError(s, err)
		return
	}
	h.reportAction(m, s.id, a, out)
}

func (h *Hub) handleAttack(s *Session, msg *wire.Message) {
	m, ok := h.liveMatch(s)
	if !ok {
		return
	}
	target := msg.Target
	if target == "" {
		opp, err := m.Opponent(s.id)
		if err != nil {
			h.matchError(s, err)
			return
		}
		target = opp.ID
	}
	damage := msg.Damage
	if damage == 0 {
		damage = defaultDamage
	}
	damage = max(0, min(damage, h.cfg.MaxDamage))

	res, err := m.Attack(s.id, target, damage)
	if err != nil {
		h.matchError(s, err)
		return
	}
	h.reportHit(m, s.id, target, damage, res)
}

func (h *Hub) handleMove(s *Session, msg *wire.Message) {
	m, ok := h.liveMatch(s)
	if !ok {
		return
	}
	if err := m.Move(s.id, *msg.X, *msg.Y); err != nil {
		h.matchError(s, err)
		return
	}
	h.broadcastState(m)
}

func (h *Hub) handleLeave(s *Session) {
	if h.queue.Remove(s.id) {
		return
	}
	id := s.currentMatch()
	if id == "" {
		s.sendError(wire.CodeNotInMatch, "not queued or in a match")
		return
	}
	if m, err := h.cfg.Matches.Get(id); err == nil {
		m.Forfeit(s.id, match.EndForfeit)
		return
	}
	s.leave(id)
}

func (h *Hub) reportAction(m *match.Match, playerID string, a combat.Action, out combat.Outcome) {
	RecordAction(string(a), outcomeLabel(out))
	h.cfg.Matches.RecordAction(m.ID(), playerID, a, out)
	h.broadcast(m, &wire.Message{
		Type:    wire.TypeActionResult,
		MatchID: m.ID(),
		Result:  wire.NewActionResult(playerID, a, out),
	})
}

// reportHit sends the hit, then the match end if the hit was a KO.
func (h *Hub) reportHit(m *match.Match, attackerID, targetID string, damage int, res combat.HitResult) {
	RecordHit(hitKind(res))
	h.cfg.Matches.RecordHit(m.ID(), attackerID, targetID, damage, res)
	h.broadcast(m, &wire.Message{
		Type:    wire.TypeHitResult,
		MatchID: m.ID(),
		Hit:     wire.NewHitReport(attackerID, targetID, damage, res),
	})

	// a stale non-KO hit racing the KO must not release its summary
	if hp, ok := res.HP.Get(); !ok || hp != 0 {
		return
	}
	h.mu.Lock()
	s, ko := h.koEnds[m.ID()]
	delete(h.koEnds, m.ID())
	h.mu.Unlock()
	if ko {
		h.finish(s)
	}
}

func (h *Hub) broadcastState(m *match.Match) {
	v := m.Snapshot()
	h.broadcast(m, &wire.Message{Type: wire.TypeState, MatchID: m.ID(), State: &v})
}

func (h *Hub) broadcast(m *match.Match, msg *wire.Message) {
	for _, p := range m.Players() {
		if s := h.session(p.ID); s != nil {
			s.Send(msg)
		}
	}
}

// matchEnded runs for every finished match on the goroutine that
// finished it. A KO is finished by Attack before the hit is reported, so
// its summary waits for reportHit to keep hit_result ahead of match_end.
func (h *Hub) matchEnded(s match.Summary) {
	if s.Reason == match.EndKO {
		h.mu.Lock()
		h.koEnds[s.MatchID] = s
		h.mu.Unlock()
		return
	}
	h.finish(s)
}

func (h *Hub) finish(s match.Summary) {
	h.mu.Lock()
	b := h.bots[s.MatchID]
	delete(h.bots, s.MatchID)
	h.mu.Unlock()
	if b != nil {
		// may be running on the bot's own goroutine
		go b.Stop()
	}

	end := &wire.Message{
		Type:     wire.TypeMatchEnd,
		MatchID:  s.MatchID,
		Summary:  &s,
		LengthMs: s.Duration.Milliseconds(),
	}
	for _, p := range s.Players {
		if sess := h.session(p.ID); sess != nil {
			sess.leave(s.MatchID)
			sess.Send(end)
		}
	}

	if s.Mode == match.ModeRanked {
		h.recordRanked(s)
	}
}

func (h *Hub) recordRanked(s match.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	now := time.Now()
	for i, p := range s.Players {
		if p.ProfileID == 0 {
			continue
		}
		result, err := profile.ParseResult(s.ResultFor(p.ID))
		if err != nil {
			h.log.Error("bad match result", zap.String("match", s.MatchID), zap.Error(err))
			continue
		}
		updated, err := h.cfg.Profiles.Record(ctx, profile.MatchRecord{
			UserID:      p.ProfileID,
			OpponentID:  s.Players[1-i].ProfileID,
			Result:      result,
			DamageDealt: s.Stats[i].DamageDealt,
			DamageTaken: s.Stats[i].DamageTaken,
			Length:      s.Duration,
			CreatedAt:   now,
		})
		if err != nil {
			continue
		}
		if sess := h.session(p.ID); sess != nil {
			sess.setProfile(updated)
			sess.Send(&wire.Message{Type: wire.TypeProfile, User: &updated})
		}
	}
}

func outcomeLabel(out combat.Outcome) string {
	switch {
	case !out.OK:
		return string(out.Reason)
	case out.Cancelled:
		return "cancelled"
	}
	return "ok"
}

func hitKind(res combat.HitResult) string {
	switch {
	case !res.Hit:
		return "miss"
	case res.Parried:
		return "parried"
	case res.Guarded:
		return "guarded"
	}
	return "hit"
}
