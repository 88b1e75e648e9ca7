package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const gatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Gateway intents: GUILDS, GUILD_VOICE_STATES, DIRECT_MESSAGES,
// MESSAGE_CONTENT.
const intents = (1 << 0) | (1 << 7) | (1 << 12) | (1 << 15)

// DMHandler receives the author ID and content of each direct message.
type DMHandler func(ctx context.Context, userID, content string)

// Gateway maintains a persistent connection to the Discord gateway, keeping
// the voice-state cache current and forwarding DMs to the handler.
type Gateway struct {
	token string
	state *State
	onDM  DMHandler

	botUserID string
	sessionID string
	resumeURL string
	canResume bool
	ready     chan struct{}
	readyOnce bool

	// The read loop writes the sequence while the heartbeat goroutine reads
	// it, so both go through atomics.
	lastSeq atomic.Int64
	hasSeq  atomic.Bool
}

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// NewGateway creates a gateway client. Run must be called to connect.
func NewGateway(token string, state *State, onDM DMHandler) *Gateway {
	return &Gateway{
		token: token,
		state: state,
		onDM:  onDM,
		ready: make(chan struct{}),
	}
}

// Ready is closed after the first successful READY event.
func (g *Gateway) Ready() <-chan struct{} {
	return g.ready
}

// Run connects to the gateway and blocks until ctx is canceled, reconnecting
// with backoff on every disconnect.
func (g *Gateway) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := g.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Warn("gateway disconnected, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > time.Minute {
			backoff = time.Minute
		}
	}
}

// session runs one gateway connection from dial to disconnect.
func (g *Gateway) session(ctx context.Context) error {
	url := gatewayURL
	if g.canResume && g.resumeURL != "" {
		url = g.resumeURL + "/?v=10&encoding=json"
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// GUILD_CREATE payloads for large guilds exceed the default limit.
	conn.SetReadLimit(16 * 1024 * 1024)

	var hello payload
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &helloData); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}
	interval := time.Duration(helloData.HeartbeatInterval) * time.Millisecond

	if g.canResume && g.sessionID != "" {
		err = g.sendResume(ctx, conn)
	} else {
		err = g.sendIdentify(ctx, conn)
	}
	if err != nil {
		return err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go g.heartbeatLoop(sessionCtx, conn, interval)

	for {
		var p payload
		if err := wsjson.Read(ctx, conn, &p); err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		g.noteSeq(p.S)

		switch p.Op {
		case opDispatch:
			g.handleDispatch(ctx, p.T, p.D)
		case opHeartbeat:
			if err := wsjson.Write(ctx, conn, payload{Op: opHeartbeat, D: g.seqJSON()}); err != nil {
				return fmt.Errorf("answer heartbeat: %w", err)
			}
		case opReconnect:
			g.canResume = true
			return errors.New("server requested reconnect")
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			g.canResume = resumable
			// The gateway asks clients to wait a moment before re-identifying.
			time.Sleep(time.Duration(1000+rand.IntN(4000)) * time.Millisecond)
			return errors.New("session invalidated")
		case opHeartbeatACK:
		}
	}
}

func (g *Gateway) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	// Jitter the first beat per the gateway contract.
	first := time.Duration(float64(interval) * rand.Float64())
	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := wsjson.Write(ctx, conn, payload{Op: opHeartbeat, D: g.seqJSON()}); err != nil {
			conn.Close(websocket.StatusAbnormalClosure, "heartbeat failed")
			return
		}
		timer.Reset(interval)
	}
}

func (g *Gateway) noteSeq(s *int64) {
	if s == nil {
		return
	}
	g.lastSeq.Store(*s)
	g.hasSeq.Store(true)
}

func (g *Gateway) seqJSON() json.RawMessage {
	if !g.hasSeq.Load() {
		return json.RawMessage("null")
	}
	return json.RawMessage(strconv.FormatInt(g.lastSeq.Load(), 10))
}

func (g *Gateway) sendIdentify(ctx context.Context, conn *websocket.Conn) error {
	identify := map[string]any{
		"token":   g.token,
		"intents": intents,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "jamie",
			"device":  "jamie",
		},
	}
	d, _ := json.Marshal(identify)
	if err := wsjson.Write(ctx, conn, payload{Op: opIdentify, D: d}); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}
	return nil
}

func (g *Gateway) sendResume(ctx context.Context, conn *websocket.Conn) error {
	seq := g.lastSeq.Load()
	resume := map[string]any{
		"token":      g.token,
		"session_id": g.sessionID,
		"seq":        seq,
	}
	d, _ := json.Marshal(resume)
	if err := wsjson.Write(ctx, conn, payload{Op: opResume, D: d}); err != nil {
		return fmt.Errorf("send resume: %w", err)
	}
	slog.Info("resuming gateway session", "session_id", g.sessionID, "seq", seq)
	return nil
}

func (g *Gateway) handleDispatch(ctx context.Context, event string, data json.RawMessage) {
	switch event {
	case "READY":
		g.handleReady(data)
	case "RESUMED":
		slog.Info("gateway session resumed")
	case "GUILD_CREATE":
		g.handleGuildCreate(data)
	case "GUILD_DELETE":
		g.handleGuildDelete(data)
	case "CHANNEL_CREATE", "CHANNEL_UPDATE":
		g.handleChannelUpsert(data)
	case "CHANNEL_DELETE":
		g.handleChannelDelete(data)
	case "VOICE_STATE_UPDATE":
		g.handleVoiceStateUpdate(data)
	case "MESSAGE_CREATE":
		g.handleMessageCreate(ctx, data)
	}
}

func (g *Gateway) handleReady(data json.RawMessage) {
	var ready struct {
		SessionID        string `json:"session_id"`
		ResumeGatewayURL string `json:"resume_gateway_url"`
		User             struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &ready); err != nil {
		slog.Error("failed to decode READY", "error", err)
		return
	}
	g.botUserID = ready.User.ID
	g.sessionID = ready.SessionID
	g.resumeURL = ready.ResumeGatewayURL
	g.canResume = true

	slog.Info("gateway ready", "bot_user", ready.User.Username, "bot_id", ready.User.ID)
	if !g.readyOnce {
		g.readyOnce = true
		close(g.ready)
	}
}

func (g *Gateway) handleGuildCreate(data json.RawMessage) {
	var guild struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Channels []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"channels"`
		VoiceStates []struct {
			UserID    string `json:"user_id"`
			ChannelID string `json:"channel_id"`
		} `json:"voice_states"`
	}
	if err := json.Unmarshal(data, &guild); err != nil {
		slog.Error("failed to decode GUILD_CREATE", "error", err)
		return
	}

	channels := make(map[string]string, len(guild.Channels))
	for _, ch := range guild.Channels {
		channels[ch.ID] = ch.Name
	}
	voice := make(map[string]string, len(guild.VoiceStates))
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != "" {
			voice[vs.UserID] = vs.ChannelID
		}
	}

	g.state.applyGuild(guild.ID, guild.Name, channels, voice)
	slog.Debug("guild cached", "guild_id", guild.ID, "name", guild.Name, "voice_users", len(voice))
}

func (g *Gateway) handleGuildDelete(data json.RawMessage) {
	var guild struct {
		ID          string `json:"id"`
		Unavailable bool   `json:"unavailable"`
	}
	if err := json.Unmarshal(data, &guild); err != nil {
		return
	}
	// Outages mark the guild unavailable; only drop it when removed for real.
	if !guild.Unavailable {
		g.state.removeGuild(guild.ID)
	}
}

func (g *Gateway) handleChannelUpsert(data json.RawMessage) {
	var ch struct {
		ID      string `json:"id"`
		GuildID string `json:"guild_id"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(data, &ch); err != nil || ch.GuildID == "" {
		return
	}
	g.state.setChannelName(ch.GuildID, ch.ID, ch.Name)
}

func (g *Gateway) handleChannelDelete(data json.RawMessage) {
	var ch struct {
		ID      string `json:"id"`
		GuildID string `json:"guild_id"`
	}
	if err := json.Unmarshal(data, &ch); err != nil || ch.GuildID == "" {
		return
	}
	g.state.removeChannel(ch.GuildID, ch.ID)
}

func (g *Gateway) handleVoiceStateUpdate(data json.RawMessage) {
	var vs struct {
		GuildID   string `json:"guild_id"`
		UserID    string `json:"user_id"`
		ChannelID string `json:"channel_id"`
	}
	if err := json.Unmarshal(data, &vs); err != nil || vs.GuildID == "" {
		return
	}
	g.state.setVoiceState(vs.GuildID, vs.UserID, vs.ChannelID)
}

func (g *Gateway) handleMessageCreate(ctx context.Context, data json.RawMessage) {
	var msg struct {
		GuildID string `json:"guild_id"`
		Content string `json:"content"`
		Author  struct {
			ID  string `json:"id"`
			Bot bool   `json:"bot"`
		} `json:"author"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Error("failed to decode MESSAGE_CREATE", "error", err)
		return
	}

	// Only DMs from humans are commands. Guild messages and other bots
	// (including our own echoes) are ignored.
	if msg.GuildID != "" || msg.Author.Bot || msg.Author.ID == g.botUserID {
		return
	}
	if g.onDM != nil {
		g.onDM(ctx, msg.Author.ID, msg.Content)
	}
}
