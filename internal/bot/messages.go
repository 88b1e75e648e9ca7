package bot

import (
	"fmt"

	"github.com/deepc0py/Jamie/internal/session"
)

// Centralized user-facing message templates. Every DM the bot sends comes
// from here so tone and emoji stay consistent.

const (
	emojiMovie    = "🎬"
	emojiStop     = "🛑"
	emojiCheck    = "✅"
	emojiError    = "❌"
	emojiQuestion = "❓"
	emojiPopcorn  = "🍿"
	emojiVoice    = "🎙️"
	emojiHelp     = "💡"
)

var stateEmoji = map[session.State]string{
	session.StateCreated:    "🆕",
	session.StateRequesting: "⏳",
	session.StateActive:     emojiMovie,
	session.StateStopping:   emojiStop,
	session.StateCompleted:  emojiCheck,
	session.StateFailed:     emojiError,
}

func emojiForState(state session.State) string {
	if e, ok := stateEmoji[state]; ok {
		return e
	}
	return emojiQuestion
}

var helpMessage = emojiMovie + ` **Jamie - Discord Stream Bot**

**How to use:**
1. Join a voice channel in a server where I'm a member
2. DM me a URL to stream
3. Sit back and enjoy! ` + emojiPopcorn + `

**Supported services:**
• YouTube (videos, shorts, live)
• Twitch (channels)
• Vimeo
• Wikipedia
• Any other URL

**Commands:**
• ` + "`stop`" + ` - Stop your current stream
• ` + "`status`" + ` - Check your stream status
• ` + "`help`" + ` - Show this message

` + emojiHelp + ` **Tip:** I work best with direct video URLs!`

func msgStreamStarting(serviceName, channelName, guildName string) string {
	return fmt.Sprintf("%s Starting **%s** stream to **%s** in %s...\n\n%s *Tip: Send `stop` anytime to end the stream.*",
		emojiMovie, serviceName, channelName, guildName, emojiHelp)
}

func msgStreamActive(channelName string) string {
	return fmt.Sprintf("%s Now streaming to **%s**!\n\n%s Enjoy the show! Send `stop` when you're done.",
		emojiCheck, channelName, emojiPopcorn)
}

func msgStreamStopping() string {
	return emojiStop + " Stopping your stream..."
}

func msgStreamStopped(channelName string) string {
	return fmt.Sprintf("%s Stream to **%s** ended.\n\nSend me another link anytime to start a new stream!",
		emojiCheck, channelName)
}

func msgStatus(state session.State, channelName, url, errorMsg string) string {
	out := fmt.Sprintf("%s **Stream Status**\n• Channel: %s\n• URL: %s\n• Status: %s",
		emojiForState(state), channelName, url, state)
	if errorMsg != "" {
		out += "\n• Error: " + errorMsg
	}
	switch state {
	case session.StateActive:
		out += "\n\n" + emojiHelp + " *Send `stop` to end the stream.*"
	case session.StateFailed:
		out += "\n\n" + emojiHelp + " *Try sending the URL again, or a different link.*"
	}
	return out
}

func msgNoActiveStream() string {
	return emojiQuestion + " You don't have an active stream.\n\nSend me a URL to start streaming!"
}

func msgStreamFailed(reason string) string {
	return fmt.Sprintf("%s **Failed to start stream**\nReason: %s\n\n%s *Try again in a moment, or try a different URL.*",
		emojiError, reason, emojiHelp)
}

func msgStopFailed(reason string) string {
	return fmt.Sprintf("%s **Couldn't stop stream**\nReason: %s\n\n%s *The stream may have already ended. Check `status` to confirm.*",
		emojiError, reason, emojiHelp)
}

func msgInvalidURL(url string) string {
	return fmt.Sprintf("%s That doesn't look like a valid URL:\n`%s`\n\n%s *Make sure to include `https://` at the start.*",
		emojiError, url, emojiHelp)
}

func msgNoURLFound() string {
	return emojiQuestion + " I didn't find a URL in your message.\n\nSend me a link to stream, or type `help` for usage info."
}

func msgNotInVoice() string {
	return emojiVoice + " You need to be in a voice channel!\n\n**How to fix:**\n1. Join a voice channel in a server where I'm a member\n2. Send me the URL again\n\n" +
		emojiHelp + " *I'll stream directly to your voice channel.*"
}

func msgAlreadyStreaming(channelName string) string {
	return fmt.Sprintf("%s You already have a stream running in **%s**!\n\n**Options:**\n• Send `stop` to end it first\n• Send `status` to check on it",
		emojiMovie, channelName)
}
