package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/deepc0py/Jamie/internal/errs"
	"github.com/deepc0py/Jamie/internal/models"
	"github.com/deepc0py/Jamie/internal/session"
)

const (
	testUser    = "111111111111111111"
	testGuild   = "222222222222222222"
	testChannel = "333333333333333333"
)

type fakeController struct {
	mu         sync.Mutex
	startErr   error
	stopErr    error
	startCalls []*models.StreamRequest
	stopCalls  []string
}

func (f *fakeController) StartStream(ctx context.Context, req *models.StreamRequest) (*models.StreamResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls = append(f.startCalls, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &models.StreamResponse{SessionID: req.SessionID, Status: models.StatusPending}, nil
}

func (f *fakeController) StopStream(ctx context.Context, sessionID, requesterID string) (*models.StreamResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls = append(f.stopCalls, sessionID)
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return &models.StreamResponse{SessionID: sessionID, Status: models.StatusStopping}, nil
}

type fakeVoice struct {
	loc *VoiceLocation
}

func (f *fakeVoice) Locate(ctx context.Context, userID string) (*VoiceLocation, error) {
	return f.loc, nil
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeMessenger) DM(ctx context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeMessenger) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("No DM was sent")
	}
	return f.sent[len(f.sent)-1]
}

func testVoiceLocation() *VoiceLocation {
	return &VoiceLocation{
		GuildID:     testGuild,
		GuildName:   "Movie Club",
		ChannelID:   testChannel,
		ChannelName: "movie-night",
	}
}

func newTestHandler(ctrl *fakeController, loc *VoiceLocation) (*Handler, *session.Manager, *fakeMessenger) {
	sessions := session.NewManager()
	msgr := &fakeMessenger{}
	h := NewHandler(sessions, ctrl, &fakeVoice{loc: loc}, msgr, "http://bot:8080/webhook/status")
	return h, sessions, msgr
}

func TestHandleDMHelp(t *testing.T) {
	for _, cmd := range []string{"help", "?", "HELP"} {
		h, _, msgr := newTestHandler(&fakeController{}, testVoiceLocation())
		h.HandleDM(context.Background(), testUser, cmd)
		if got := msgr.last(t); !strings.Contains(got, "How to use") {
			t.Errorf("help reply for %q = %q", cmd, got)
		}
	}
}

func TestHandleDMStopWithoutSession(t *testing.T) {
	h, _, msgr := newTestHandler(&fakeController{}, testVoiceLocation())
	h.HandleDM(context.Background(), testUser, "stop")
	if got := msgr.last(t); !strings.Contains(got, "don't have an active stream") {
		t.Errorf("Reply = %q", got)
	}
}

func TestHandleDMStatusWithoutSession(t *testing.T) {
	h, _, msgr := newTestHandler(&fakeController{}, testVoiceLocation())
	h.HandleDM(context.Background(), testUser, "status")
	if got := msgr.last(t); !strings.Contains(got, "don't have an active stream") {
		t.Errorf("Reply = %q", got)
	}
}

func TestHandleDMNoURL(t *testing.T) {
	h, _, msgr := newTestHandler(&fakeController{}, testVoiceLocation())
	h.HandleDM(context.Background(), testUser, "hello there")
	if got := msgr.last(t); !strings.Contains(got, "didn't find a URL") {
		t.Errorf("Reply = %q", got)
	}
}

func TestHandleDMStartsStream(t *testing.T) {
	ctrl := &fakeController{}
	h, sessions, msgr := newTestHandler(ctrl, testVoiceLocation())

	h.HandleDM(context.Background(), testUser, "check this out https://youtu.be/dQw4w9WgXcQ")

	if len(ctrl.startCalls) != 1 {
		t.Fatalf("StartStream called %d times, want 1", len(ctrl.startCalls))
	}
	req := ctrl.startCalls[0]
	if req.URL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("Requested URL = %q, want normalized watch URL", req.URL)
	}
	if req.WebhookURL != "http://bot:8080/webhook/status" {
		t.Errorf("WebhookURL = %q", req.WebhookURL)
	}
	if req.ChannelName != "movie-night" {
		t.Errorf("ChannelName = %q", req.ChannelName)
	}

	sess := sessions.GetForUser(testUser)
	if sess == nil {
		t.Fatal("No session created")
	}
	if sess.State != session.StateRequesting {
		t.Errorf("State = %q, want requesting", sess.State)
	}

	// Acknowledgment names the detected service.
	msgr.mu.Lock()
	ack := strings.Join(msgr.sent, "\n")
	msgr.mu.Unlock()
	if !strings.Contains(ack, "Youtube") {
		t.Errorf("Acknowledgment missing service name: %q", ack)
	}
}

func TestHandleDMGenericURLAckSaysLink(t *testing.T) {
	ctrl := &fakeController{}
	h, _, msgr := newTestHandler(ctrl, testVoiceLocation())

	h.HandleDM(context.Background(), testUser, "https://example.com/show")

	if got := msgr.last(t); !strings.Contains(got, "**Link**") {
		t.Errorf("Generic ack = %q", got)
	}
}

func TestHandleDMNotInVoice(t *testing.T) {
	ctrl := &fakeController{}
	h, sessions, msgr := newTestHandler(ctrl, nil)

	h.HandleDM(context.Background(), testUser, "https://youtu.be/dQw4w9WgXcQ")

	if len(ctrl.startCalls) != 0 {
		t.Error("StartStream should not be called when user is not in voice")
	}
	if sessions.GetForUser(testUser) != nil {
		t.Error("No session should be created when user is not in voice")
	}
	if got := msgr.last(t); !strings.Contains(got, "voice channel") {
		t.Errorf("Reply = %q", got)
	}
}

func TestHandleDMBusyUser(t *testing.T) {
	ctrl := &fakeController{}
	h, _, msgr := newTestHandler(ctrl, testVoiceLocation())

	h.HandleDM(context.Background(), testUser, "https://youtu.be/dQw4w9WgXcQ")
	h.HandleDM(context.Background(), testUser, "https://www.twitch.tv/examplechannel")

	if len(ctrl.startCalls) != 1 {
		t.Fatalf("StartStream called %d times, want 1", len(ctrl.startCalls))
	}
	if got := msgr.last(t); !strings.Contains(got, "already have a stream running") {
		t.Errorf("Reply = %q", got)
	}
}

func TestHandleDMControllerFailureMarksSessionFailed(t *testing.T) {
	ctrl := &fakeController{startErr: errs.New(errs.CodeCUAUnavailable, "controller down")}
	h, sessions, msgr := newTestHandler(ctrl, testVoiceLocation())

	h.HandleDM(context.Background(), testUser, "https://youtu.be/dQw4w9WgXcQ")

	// Busy mapping is released once the session is terminal.
	if sessions.GetForUser(testUser) != nil {
		t.Error("Expected failed session to be invisible to user lookup")
	}
	if got := msgr.last(t); !strings.Contains(got, "Failed to start stream") {
		t.Errorf("Reply = %q", got)
	}
}

func TestHandleDMStopActiveSession(t *testing.T) {
	ctrl := &fakeController{}
	h, sessions, msgr := newTestHandler(ctrl, testVoiceLocation())

	h.HandleDM(context.Background(), testUser, "https://youtu.be/dQw4w9WgXcQ")
	sess := sessions.Get(ctrl.startCalls[0].SessionID)

	h.HandleDM(context.Background(), testUser, "stop")

	if len(ctrl.stopCalls) != 1 || ctrl.stopCalls[0] != sess.SessionID {
		t.Errorf("stopCalls = %v", ctrl.stopCalls)
	}
	if got := sessions.Get(sess.SessionID); got.State != session.StateStopping {
		t.Errorf("State = %q, want stopping", got.State)
	}
	if got := msgr.last(t); !strings.Contains(got, "Stopping your stream") {
		t.Errorf("Reply = %q", got)
	}
}

func TestHandleDMStopFailure(t *testing.T) {
	ctrl := &fakeController{stopErr: errs.New(errs.CodeCUAUnavailable, "controller down")}
	h, _, msgr := newTestHandler(ctrl, testVoiceLocation())

	h.HandleDM(context.Background(), testUser, "https://youtu.be/dQw4w9WgXcQ")
	h.HandleDM(context.Background(), testUser, "stop")

	if got := msgr.last(t); !strings.Contains(got, "Couldn't stop stream") {
		t.Errorf("Reply = %q", got)
	}
}
