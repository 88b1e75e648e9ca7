package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/deepc0py/Jamie/internal/errs"
	"github.com/deepc0py/Jamie/internal/models"
	"github.com/deepc0py/Jamie/internal/session"
	"github.com/deepc0py/Jamie/internal/store"
)

// statusToState maps agent workflow statuses onto bot session states.
var statusToState = map[models.StreamStatus]session.State{
	models.StatusPending:       session.StateRequesting,
	models.StatusStarting:      session.StateRequesting,
	models.StatusLoggingIn:     session.StateRequesting,
	models.StatusJoiningVoice:  session.StateRequesting,
	models.StatusOpeningURL:    session.StateActive,
	models.StatusSharingScreen: session.StateActive,
	models.StatusStreaming:     session.StateActive,
	models.StatusStopping:      session.StateStopping,
	models.StatusStopped:       session.StateCompleted,
	models.StatusFailed:        session.StateFailed,
}

// Updater applies agent status updates to sessions, notifies users at
// lifecycle milestones, and archives ended streams.
type Updater struct {
	sessions  *session.Manager
	messenger Messenger
	archive   store.Repository // optional
	feed      *StatusFeed      // optional
}

// NewUpdater wires the status-update pipeline. archive and feed may be nil.
func NewUpdater(sessions *session.Manager, messenger Messenger, archive store.Repository, feed *StatusFeed) *Updater {
	return &Updater{
		sessions:  sessions,
		messenger: messenger,
		archive:   archive,
		feed:      feed,
	}
}

// HandleStatusUpdate processes one webhook payload from the agent.
func (u *Updater) HandleStatusUpdate(ctx context.Context, update *models.StatusUpdate) error {
	sess := u.sessions.Get(update.SessionID)
	if sess == nil {
		slog.Warn("status update for unknown session", "session_id", update.SessionID)
		return nil
	}

	state, ok := statusToState[update.Status]
	if !ok {
		state = session.StateActive
	}

	errMsg := ""
	if update.ErrorCode != "" {
		errMsg = errs.DefaultMessage(errs.Code(update.ErrorCode))
	}
	u.sessions.Update(update.SessionID, state, errMsg, string(update.Status))

	if u.feed != nil {
		u.feed.Broadcast(update)
	}

	switch update.Status {
	case models.StatusStreaming:
		u.notify(ctx, sess.RequesterID, msgStreamActive(sess.ChannelName))
	case models.StatusStopped:
		u.notify(ctx, sess.RequesterID, msgStreamStopped(sess.ChannelName))
		u.archiveSession(ctx, update.SessionID)
	case models.StatusFailed:
		text := errs.DefaultUserMessage(errs.CodeInternal)
		if update.ErrorCode != "" {
			text = errs.DefaultUserMessage(errs.Code(update.ErrorCode))
		}
		u.notify(ctx, sess.RequesterID, text)
		u.archiveSession(ctx, update.SessionID)
	}

	return nil
}

// ArchiveSwept persists a session removed by the stale-session sweeper.
func (u *Updater) ArchiveSwept(s *session.StreamSession) {
	if u.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	u.record(ctx, s)
}

func (u *Updater) archiveSession(ctx context.Context, sessionID string) {
	if u.archive == nil {
		return
	}
	// Re-read after the state transition so the archived record is final.
	if s := u.sessions.Get(sessionID); s != nil {
		u.record(ctx, s)
	}
}

func (u *Updater) record(ctx context.Context, s *session.StreamSession) {
	err := u.archive.RecordStream(ctx, &store.StreamRecord{
		SessionID:   s.SessionID,
		RequesterID: s.RequesterID,
		GuildID:     s.GuildID,
		ChannelID:   s.ChannelID,
		ChannelName: s.ChannelName,
		URL:         s.URL,
		FinalState:  string(s.State),
		ErrorMsg:    s.ErrorMsg,
		StartedAt:   s.CreatedAt,
		EndedAt:     s.UpdatedAt,
	})
	if err != nil {
		slog.Error("failed to archive stream", "session_id", s.SessionID, "error", err)
	}
}

func (u *Updater) notify(ctx context.Context, userID, text string) {
	if err := u.messenger.DM(ctx, userID, text); err != nil {
		slog.Warn("failed to DM user", "user_id", userID, "error", err)
	}
}
