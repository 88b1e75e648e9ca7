package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/deepc0py/Jamie/internal/errs"
	"github.com/deepc0py/Jamie/internal/models"
	"github.com/deepc0py/Jamie/internal/session"
	"github.com/deepc0py/Jamie/internal/urls"
)

// Handler routes incoming DMs to the stop, status, help, and stream-start
// flows.
type Handler struct {
	sessions   *session.Manager
	controller StreamController
	voice      VoiceLocator
	messenger  Messenger
	webhookURL string
}

// NewHandler wires the DM handler to its collaborators.
func NewHandler(sessions *session.Manager, controller StreamController, voice VoiceLocator, messenger Messenger, webhookURL string) *Handler {
	return &Handler{
		sessions:   sessions,
		controller: controller,
		voice:      voice,
		messenger:  messenger,
		webhookURL: webhookURL,
	}
}

// HandleDM processes one DM from a user. Commands are matched
// case-insensitively; anything else is treated as a potential URL.
func (h *Handler) HandleDM(ctx context.Context, userID, content string) {
	trimmed := strings.TrimSpace(content)
	command := strings.ToLower(trimmed)

	preview := trimmed
	if len(preview) > 50 {
		preview = preview[:50]
	}
	slog.Debug("dm received", "user_id", userID, "content_preview", preview)

	switch command {
	case "stop":
		h.handleStop(ctx, userID)
	case "status":
		h.handleStatus(ctx, userID)
	case "help", "?":
		h.reply(ctx, userID, helpMessage)
	default:
		h.handleURL(ctx, userID, trimmed)
	}
}

func (h *Handler) handleStop(ctx context.Context, userID string) {
	sess := h.sessions.GetForUser(userID)
	if sess == nil {
		h.reply(ctx, userID, msgNoActiveStream())
		return
	}

	slog.Info("stop requested", "user_id", userID, "session_id", sess.SessionID)

	if _, err := h.controller.StopStream(ctx, sess.SessionID, userID); err != nil {
		slog.Error("stop failed", "user_id", userID, "session_id", sess.SessionID, "error", err)
		h.reply(ctx, userID, msgStopFailed(userMessageFor(err)))
		return
	}

	h.sessions.Update(sess.SessionID, session.StateStopping, "", "")
	h.reply(ctx, userID, msgStreamStopping())
}

func (h *Handler) handleStatus(ctx context.Context, userID string) {
	sess := h.sessions.GetForUser(userID)
	if sess == nil {
		h.reply(ctx, userID, msgNoActiveStream())
		return
	}
	h.reply(ctx, userID, msgStatus(sess.State, sess.ChannelName, sess.URL, sess.ErrorMsg))
}

func (h *Handler) handleURL(ctx context.Context, userID, content string) {
	found := urls.ExtractURLs(content)
	if len(found) == 0 {
		h.reply(ctx, userID, msgNoURLFound())
		return
	}

	// Only the first URL in the message is considered.
	parsed := urls.Parse(found[0])
	if parsed == nil {
		h.reply(ctx, userID, msgInvalidURL(found[0]))
		return
	}

	slog.Info("stream url received",
		"user_id", userID,
		"url", parsed.Original,
		"service", parsed.Service)

	streamURL := parsed.Normalized
	if streamURL == "" {
		streamURL = parsed.Original
	}
	h.startStream(ctx, userID, streamURL, parsed.Service)
}

// startStream runs the full request flow: busy check, voice lookup, session
// creation, acknowledgment, then the controller call. The controller's own
// confirmation arrives later via the status webhook.
func (h *Handler) startStream(ctx context.Context, userID, url string, service urls.Service) {
	if existing := h.sessions.GetForUser(userID); existing != nil {
		h.reply(ctx, userID, msgAlreadyStreaming(existing.ChannelName))
		return
	}

	loc, err := h.voice.Locate(ctx, userID)
	if err != nil {
		slog.Error("voice lookup failed", "user_id", userID, "error", err)
		h.reply(ctx, userID, userMessageFor(err))
		return
	}
	if loc == nil {
		h.reply(ctx, userID, msgNotInVoice())
		return
	}

	sess, err := h.sessions.Create(userID, loc.GuildID, loc.ChannelID, loc.ChannelName, url)
	if err != nil {
		slog.Warn("session create failed", "user_id", userID, "error", err)
		h.reply(ctx, userID, userMessageFor(err))
		return
	}

	slog.Info("session created",
		"session_id", sess.SessionID,
		"user_id", userID,
		"channel", loc.ChannelName,
		"guild", loc.GuildName)

	serviceName := titleCase(string(service))
	if service == urls.ServiceGeneric {
		serviceName = "Link"
	}
	h.reply(ctx, userID, msgStreamStarting(serviceName, loc.ChannelName, loc.GuildName))

	h.sessions.Update(sess.SessionID, session.StateRequesting, "", "")

	resp, err := h.controller.StartStream(ctx, &models.StreamRequest{
		SessionID:   sess.SessionID,
		URL:         url,
		GuildID:     loc.GuildID,
		ChannelID:   loc.ChannelID,
		ChannelName: loc.ChannelName,
		RequesterID: userID,
		WebhookURL:  h.webhookURL,
	})
	if err != nil {
		slog.Error("stream request failed",
			"session_id", sess.SessionID,
			"error", err)
		h.sessions.Update(sess.SessionID, session.StateFailed, userMessageFor(err), "")
		h.reply(ctx, userID, msgStreamFailed(userMessageFor(err)))
		return
	}

	// The session moves to active once the agent reports streaming.
	slog.Info("stream requested",
		"session_id", sess.SessionID,
		"response_status", resp.Status,
		"message", resp.Message)
}

func (h *Handler) reply(ctx context.Context, userID, text string) {
	if err := h.messenger.DM(ctx, userID, text); err != nil {
		slog.Warn("failed to DM user", "user_id", userID, "error", err)
	}
}

// titleCase capitalizes the first letter of an ASCII service name.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// userMessageFor extracts the friendly message from a typed error, falling
// back to the generic internal-error text.
func userMessageFor(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		if e.UserMessage != "" {
			return e.UserMessage
		}
		return errs.DefaultUserMessage(e.Code)
	}
	return errs.DefaultUserMessage(errs.CodeInternal)
}
