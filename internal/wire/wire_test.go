package wire

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duel-arena/internal/combat"
	"duel-arena/internal/loadout"
	"duel-arena/internal/match"
	"duel-arena/internal/profile"
)

// TestCodecsCarryServerMessages sends a populated state update through both codecs
func TestCodecsCarryServerMessages(t *testing.T) {
	view := &match.View{
		ID:    "m1",
		Mode:  match.ModeRanked,
		Arena: match.DefaultArena(),
	}
	view.Sides[0].Participant = match.Participant{ID: "s1", Name: "alice"}
	view.Sides[0].State = combat.StateView{
		Hurtbox:    combat.Box{W: 40, H: 80},
		Hitbox:     &combat.Box{X: 40, W: 20, H: 10},
		ComboChain: []string{"light", "light", "heavy"},
		ComboIndex: 1,
		HP:         90,
		Gauge:      50,
	}
	msg := &Message{
		Type:  TypeState,
		State: view,
		Hit: &HitReport{
			Attacker: "s1",
			Target:   "s2",
			Damage:   10,
			Hit:      true,
			HP:       IntPtr(90),
		},
	}

	for _, c := range []Codec{JSONCodec{}, NewMsgpackCodec()} {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.Encode(msg)
			require.NoError(t, err)

			var got Message
			require.NoError(t, c.Decode(b, &got))
			assert.Equal(t, TypeState, got.Type)
			require.NotNil(t, got.State)
			assert.Equal(t, "alice", got.State.Sides[0].Name)
			assert.Equal(t, view.Sides[0].State.Hitbox, got.State.Sides[0].State.Hitbox)
			assert.Equal(t, []string{"light", "light", "heavy"}, got.State.Sides[0].State.ComboChain)
			require.NotNil(t, got.Hit)
			require.NotNil(t, got.Hit.HP)
			assert.Equal(t, 90, *got.Hit.HP)
			assert.Nil(t, got.Hit.Gauge)
			assert.Nil(t, got.Summary)
		})
	}
}

// TestCodecsDecodeClientMessages checks optional client fields survive decoding
func TestCodecsDecodeClientMessages(t *testing.T) {
	msgs := []*Message{
		{Type: TypeLogin, Name: "alice"},
		{Type: TypeMove, X: FloatPtr(0), Y: FloatPtr(12.5)},
		{Type: TypeUseSkill, Index: IntPtr(0)},
		{Type: TypeSetLoadout, Weapon: "spear", Skills: []loadout.SkillDef{
			{Trigger: "on_hit", Action: "heal", Modifiers: []string{"amplified"}},
			{Trigger: "low_hp", Action: "shield"},
		}},
	}
	for _, c := range []Codec{JSONCodec{}, NewMsgpackCodec()} {
		for _, m := range msgs {
			t.Run(c.Name()+"/"+string(m.Type), func(t *testing.T) {
				b, err := c.Encode(m)
				require.NoError(t, err)
				var got Message
				require.NoError(t, c.Decode(b, &got))
				assert.NoError(t, got.Validate())
				assert.Equal(t, m.Type, got.Type)
				if m.X != nil {
					assert.Equal(t, 0.0, *got.X)
					assert.Equal(t, 12.5, *got.Y)
				}
				if m.Index != nil {
					assert.Equal(t, 0, *got.Index)
				}
				if m.Skills != nil {
					require.Len(t, got.Skills, 2)
					assert.Equal(t, "heal", got.Skills[0].Action)
					assert.Equal(t, []string{"amplified"}, got.Skills[0].Modifiers)
				}
			})
		}
	}
}

// TestJSONShape pins the field names clients rely on
func TestJSONShape(t *testing.T) {
	b, err := JSONCodec{}.Encode(&Message{Type: TypeLoginOK, User: &profile.Profile{ID: 3, Name: "alice", Level: 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"login_ok","user":{"id":3,"name":"alice","level":1,"xp":0,"wins":0,"losses":0}}`, string(b))

	b, err = JSONCodec{}.Encode(Errorf(CodeSkillCooldown, "skill %d not ready", 1))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","code":"skill_cooldown","message":"skill 1 not ready"}`, string(b))
}

// TestValidate covers required fields per type
func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		err  error
	}{
		{"ping", Message{Type: TypePing}, nil},
		{"server type from client", Message{Type: TypeWelcome}, ErrUnknownType},
		{"unknown", Message{Type: "bot_action"}, ErrUnknownType},
		{"login without name", Message{Type: TypeLogin}, ErrMissingField},
		{"skill without index", Message{Type: TypeUseSkill}, ErrMissingField},
		{"action without action", Message{Type: TypeAction}, ErrMissingField},
		{"move without y", Message{Type: TypeMove, X: FloatPtr(1)}, ErrMissingField},
		{"loadout without weapon", Message{Type: TypeSetLoadout}, ErrMissingField},
		{"attack", Message{Type: TypeAttack, Target: "s2", Damage: 10}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

// TestNewActionResult converts outcomes including combo progress
func TestNewActionResult(t *testing.T) {
	out := combat.Outcome{
		OK:     true,
		Combo:  combat.Some(combat.ComboProgress{Chain: combat.ComboRule{combat.ActionLight, combat.ActionHeavy}, Index: 1}),
		Hitbox: combat.Some(combat.Box{X: 40, W: 20, H: 10}),
	}
	r := NewActionResult("s1", combat.ActionLight, out)
	assert.True(t, r.OK)
	assert.Equal(t, &ComboView{Chain: []string{"light", "heavy"}, Index: 1}, r.Combo)
	assert.Equal(t, 20.0, r.Hitbox.W)

	r = NewActionResult("s1", combat.ActionDash, combat.Outcome{Reason: combat.ReasonDashCooldown, RetryAfter: 400 * time.Millisecond})
	assert.False(t, r.OK)
	assert.Equal(t, int64(400), r.RetryAfterMs)
	assert.Nil(t, r.Combo)
	assert.Nil(t, r.Hitbox)
}

// TestNegotiate maps subprotocols to codecs
func TestNegotiate(t *testing.T) {
	assert.Equal(t, "msgpack", Negotiate(SubprotocolMsgpack).Name())
	assert.Equal(t, websocket.BinaryMessage, Negotiate(SubprotocolMsgpack).FrameType())
	assert.Equal(t, "json", Negotiate("").Name())
	assert.Equal(t, websocket.TextMessage, Negotiate("other").FrameType())
}
