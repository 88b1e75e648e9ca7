// Package errs defines the error taxonomy shared by the bot and the agent.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies an error code by who can act on it.
type Category string

const (
	CategoryUser      Category = "user"      // recoverable by user action
	CategoryTransient Category = "transient" // temporary, retry may help
	CategoryConfig    Category = "config"    // misconfiguration, needs operator
	CategoryExternal  Category = "external"  // third-party service failure
	CategoryInternal  Category = "internal"  // bug or unexpected state
)

// Code identifies a failure kind. The set is closed: every failure that
// crosses a process boundary or reaches a human carries exactly one Code.
type Code string

const (
	// User errors.
	CodeNotInVoice       Code = "NOT_IN_VOICE"
	CodeInvalidURL       Code = "INVALID_URL"
	CodeNoSharedGuild    Code = "NO_SHARED_GUILD"
	CodeAlreadyStreaming Code = "ALREADY_STREAMING"
	CodeNotRequester     Code = "NOT_REQUESTER"

	// Transient errors.
	CodeSandboxFailed    Code = "SANDBOX_FAILED"
	CodeSandboxTimeout   Code = "SANDBOX_TIMEOUT"
	CodeAgentTimeout     Code = "AGENT_TIMEOUT"
	CodeAgentStuck       Code = "AGENT_STUCK"
	CodeDiscordRateLimit Code = "DISCORD_RATE_LIMIT"
	CodeStreamDropped    Code = "STREAM_DROPPED"

	// Configuration errors.
	CodeDiscordLoginFailed Code = "DISCORD_LOGIN_FAILED"
	CodeTwoFARequired      Code = "TWO_FA_REQUIRED"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeNoBotToken         Code = "NO_BOT_TOKEN"
	CodeNoAPIKey           Code = "NO_API_KEY"

	// External service errors.
	CodeVoiceJoinFailed   Code = "VOICE_JOIN_FAILED"
	CodeScreenShareFailed Code = "SCREEN_SHARE_FAILED"
	CodeCUAUnavailable    Code = "CUA_UNAVAILABLE"
	CodeDiscordDown       Code = "DISCORD_DOWN"
	CodeAnthropicDown     Code = "ANTHROPIC_DOWN"
	CodeURLUnreachable    Code = "URL_UNREACHABLE"
	CodeCaptchaRequired   Code = "CAPTCHA_REQUIRED"

	// Internal errors.
	CodeBudgetExceeded Code = "BUDGET_EXCEEDED"
	CodeMaxIterations  Code = "MAX_ITERATIONS"
	CodeInternal       Code = "INTERNAL"
)

type meta struct {
	category Category
	message  string
}

var metadata = map[Code]meta{
	CodeNotInVoice:       {CategoryUser, "User not in a voice channel"},
	CodeInvalidURL:       {CategoryUser, "URL format not recognized or unsupported"},
	CodeNoSharedGuild:    {CategoryUser, "No shared guild found with user"},
	CodeAlreadyStreaming: {CategoryUser, "Stream already in progress"},
	CodeNotRequester:     {CategoryUser, "Only the requester can stop the stream"},

	CodeSandboxFailed:    {CategoryTransient, "Sandbox failed to start"},
	CodeSandboxTimeout:   {CategoryTransient, "Sandbox operation timed out"},
	CodeAgentTimeout:     {CategoryTransient, "Agent took too long to respond"},
	CodeAgentStuck:       {CategoryTransient, "Agent loop not progressing"},
	CodeDiscordRateLimit: {CategoryTransient, "Discord rate limited the request"},
	CodeStreamDropped:    {CategoryTransient, "Stream unexpectedly ended"},

	CodeDiscordLoginFailed: {CategoryConfig, "Discord login failed"},
	CodeTwoFARequired:      {CategoryConfig, "Discord account requires 2FA"},
	CodeInvalidCredentials: {CategoryConfig, "Discord credentials are invalid"},
	CodeNoBotToken:         {CategoryConfig, "Bot token not configured"},
	CodeNoAPIKey:           {CategoryConfig, "Anthropic API key not configured"},

	CodeVoiceJoinFailed:   {CategoryExternal, "Failed to join voice channel"},
	CodeScreenShareFailed: {CategoryExternal, "Screen share failed to start"},
	CodeCUAUnavailable:    {CategoryExternal, "CUA service is not responding"},
	CodeDiscordDown:       {CategoryExternal, "Discord services are unavailable"},
	CodeAnthropicDown:     {CategoryExternal, "Anthropic API is unavailable"},
	CodeURLUnreachable:    {CategoryExternal, "Streaming URL is not accessible"},
	CodeCaptchaRequired:   {CategoryExternal, "CAPTCHA challenge required"},

	CodeBudgetExceeded: {CategoryInternal, "Cost budget exceeded for session"},
	CodeMaxIterations:  {CategoryInternal, "Maximum agent iterations exceeded"},
	CodeInternal:       {CategoryInternal, "An unexpected internal error occurred"},
}

var userMessages = map[Code]string{
	CodeNotInVoice:       "❌ You're not in any voice channel I can see.\nJoin a voice channel in a server we share, then try again.",
	CodeInvalidURL:       "❌ I couldn't find a valid URL in your message.\nSend me a YouTube, Twitch, or Vimeo link to stream!",
	CodeNoSharedGuild:    "❌ We don't share any servers where I can stream.\nInvite me to your server or join one I'm already in!",
	CodeAlreadyStreaming: "⏳ I'm already streaming somewhere else.\nDM `stop` to end that stream first.",
	CodeNotRequester:     "❌ Only the person who started the stream can stop it.",

	CodeSandboxFailed:    "❌ Failed to start the streaming environment.\nPlease try again in a moment.",
	CodeSandboxTimeout:   "❌ Stream setup timed out.\nPlease try again.",
	CodeAgentTimeout:     "❌ The stream took too long to set up.\nPlease try again.",
	CodeAgentStuck:       "❌ Something got stuck during setup.\nPlease try again.",
	CodeDiscordRateLimit: "⏳ Discord is asking me to slow down.\nPlease wait a moment and try again.",
	CodeStreamDropped:    "❌ The stream unexpectedly ended.\nPlease try starting it again.",

	CodeDiscordLoginFailed: "❌ I couldn't log into Discord.\nPlease contact the administrator.",
	CodeTwoFARequired:      "❌ My streaming account requires 2FA setup.\nPlease contact the administrator.",
	CodeInvalidCredentials: "❌ My streaming credentials are invalid.\nPlease contact the administrator.",

	CodeVoiceJoinFailed:   "❌ I couldn't join the voice channel.\nCheck my permissions and try again.",
	CodeScreenShareFailed: "❌ Screen sharing failed to start.\nPlease try again.",
	CodeCUAUnavailable:    "❌ My streaming service is currently unavailable.\nPlease try again later.",
	CodeDiscordDown:       "❌ Discord seems to be having issues.\nPlease try again later.",
	CodeAnthropicDown:     "❌ My AI service is currently unavailable.\nPlease try again later.",
	CodeURLUnreachable:    "❌ I couldn't load that URL.\nIt might be geoblocked or require a login.",
	CodeCaptchaRequired:   "❌ A CAPTCHA challenge appeared.\nPlease contact the administrator.",

	CodeBudgetExceeded: "❌ This session got too expensive.\nTry again with a simpler request.",
	CodeMaxIterations:  "❌ Setup took too many steps.\nPlease try again with a different URL.",
	CodeInternal:       "❌ Something went wrong on my end.\nPlease try again later.",
}

var httpStatus = map[Code]int{
	CodeNotInVoice:       http.StatusBadRequest,
	CodeInvalidURL:       http.StatusBadRequest,
	CodeNoSharedGuild:    http.StatusBadRequest,
	CodeAlreadyStreaming: http.StatusConflict,
	CodeNotRequester:     http.StatusForbidden,

	CodeSandboxFailed:    http.StatusServiceUnavailable,
	CodeSandboxTimeout:   http.StatusGatewayTimeout,
	CodeAgentTimeout:     http.StatusGatewayTimeout,
	CodeAgentStuck:       http.StatusInternalServerError,
	CodeDiscordRateLimit: http.StatusTooManyRequests,
	CodeStreamDropped:    http.StatusInternalServerError,

	CodeDiscordLoginFailed: http.StatusUnauthorized,
	CodeTwoFARequired:      http.StatusUnauthorized,
	CodeInvalidCredentials: http.StatusUnauthorized,
	CodeNoBotToken:         http.StatusInternalServerError,
	CodeNoAPIKey:           http.StatusInternalServerError,

	CodeVoiceJoinFailed:   http.StatusBadGateway,
	CodeScreenShareFailed: http.StatusInternalServerError,
	CodeCUAUnavailable:    http.StatusServiceUnavailable,
	CodeDiscordDown:       http.StatusServiceUnavailable,
	CodeAnthropicDown:     http.StatusServiceUnavailable,
	CodeURLUnreachable:    http.StatusBadGateway,
	CodeCaptchaRequired:   http.StatusServiceUnavailable,

	CodeBudgetExceeded: http.StatusPaymentRequired,
	CodeMaxIterations:  http.StatusInternalServerError,
	CodeInternal:       http.StatusInternalServerError,
}

const fallbackUserMessage = "❌ Something went wrong. Please try again later."

// CategoryOf returns the category for a code, INTERNAL for unknown codes.
func CategoryOf(code Code) Category {
	if m, ok := metadata[code]; ok {
		return m.category
	}
	return CategoryInternal
}

// IsUserError reports whether a code is recoverable by user action.
func IsUserError(code Code) bool {
	return CategoryOf(code) == CategoryUser
}

// IsRetryable reports whether retrying the same operation may succeed.
// Only transient failures qualify.
func IsRetryable(code Code) bool {
	return CategoryOf(code) == CategoryTransient
}

// HTTPStatus returns the transport status for a code, 500 for unknown codes.
func HTTPStatus(code Code) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// DefaultMessage returns the default technical message for a code.
func DefaultMessage(code Code) string {
	if m, ok := metadata[code]; ok {
		return m.message
	}
	return "An error occurred"
}

// DefaultUserMessage returns the default user-facing message for a code.
func DefaultUserMessage(code Code) string {
	if msg, ok := userMessages[code]; ok {
		return msg
	}
	return fallbackUserMessage
}

// Error is a classified failure. Both the log line and the transport status
// are derivable from the code alone; message and details refine them.
type Error struct {
	Code        Code
	Message     string
	UserMessage string
	Details     map[string]any
}

// New creates an Error with the code's default messages. An optional message
// overrides the technical message.
func New(code Code, message string) *Error {
	if message == "" {
		message = DefaultMessage(code)
	}
	return &Error{
		Code:        code,
		Message:     message,
		UserMessage: DefaultUserMessage(code),
	}
}

// Newf creates an Error with a formatted technical message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithDetails attaches structured detail fields.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithUserMessage overrides the user-facing message.
func (e *Error) WithUserMessage(msg string) *Error {
	e.UserMessage = msg
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Category returns the category of the error's code.
func (e *Error) Category() Category {
	return CategoryOf(e.Code)
}

// HTTPStatus returns the transport status of the error's code.
func (e *Error) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// Dict renders the error body for API responses.
func (e *Error) Dict() map[string]any {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return map[string]any{
		"code":     string(e.Code),
		"message":  e.Message,
		"category": string(e.Category()),
		"details":  details,
	}
}

// AsError extracts an *Error from an error chain. Non-taxonomy errors come
// back as INTERNAL with the original text as the technical message.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(CodeInternal, err.Error())
}
