package agent

import (
	"strings"

	"github.com/deepc0py/Jamie/internal/errs"
)

// markerRules maps failure markers reported by the vision model onto error
// codes. Order matters: the first match wins, so specific login markers come
// before the generic LOGIN_FAILED catch-all.
var markerRules = []struct {
	marker string
	code   errs.Code
}{
	{"LOGIN_FAILED_INVALID_CREDENTIALS", errs.CodeInvalidCredentials},
	{"LOGIN_FAILED_CAPTCHA", errs.CodeCaptchaRequired},
	{"LOGIN_FAILED_2FA_REQUIRED", errs.CodeTwoFARequired},
	{"LOGIN_FAILED_RATE_LIMITED", errs.CodeDiscordRateLimit},
	{"LOGIN_FAILED", errs.CodeDiscordLoginFailed},

	{"SERVER_NOT_FOUND", errs.CodeVoiceJoinFailed},
	{"CHANNEL_NOT_FOUND", errs.CodeVoiceJoinFailed},
	{"CHANNEL_LOCKED", errs.CodeVoiceJoinFailed},
	{"CONNECTION_FAILED", errs.CodeVoiceJoinFailed},
	{"PHONE_VERIFICATION_REQUIRED", errs.CodeVoiceJoinFailed},

	{"URL_UNREACHABLE", errs.CodeURLUnreachable},
	{"VIDEO_UNAVAILABLE", errs.CodeURLUnreachable},
	{"AGE_VERIFICATION_REQUIRED", errs.CodeURLUnreachable},
	{"LOGIN_REQUIRED", errs.CodeURLUnreachable},
	{"REGION_BLOCKED", errs.CodeURLUnreachable},
	{"CONTENT_LOAD_FAILED", errs.CodeURLUnreachable},

	{"SCREEN_SHARE_BUTTON_NOT_FOUND", errs.CodeScreenShareFailed},
	{"PICKER_FAILED", errs.CodeScreenShareFailed},
	{"TAB_NOT_FOUND_IN_PICKER", errs.CodeScreenShareFailed},
	{"SHARE_NOT_AVAILABLE", errs.CodeScreenShareFailed},
	{"PERMISSION_DENIED", errs.CodeScreenShareFailed},
	{"AUDIO_NOT_SHARED", errs.CodeScreenShareFailed},

	{"CAPTCHA", errs.CodeCaptchaRequired},
}

// classifyFailure turns the model's step output into an error code, using the
// step's fallback when no known marker appears.
func classifyFailure(output string, fallback errs.Code) errs.Code {
	upper := strings.ToUpper(output)
	for _, rule := range markerRules {
		if strings.Contains(upper, rule.marker) {
			return rule.code
		}
	}
	return fallback
}

// hasMarker reports whether the model's output contains the given success
// marker.
func hasMarker(output, marker string) bool {
	return strings.Contains(strings.ToUpper(output), marker)
}
