package agent

import "fmt"

// Step-by-step instructions for the vision model. Each prompt states the
// goal, the steps, a success marker to report, and the failure markers the
// classifier understands.

const discordLoginPrompt = `You are automating Discord login in a browser.

GOAL: Log into Discord with the provided credentials.

CURRENT STATE: Browser open at discord.com/login

CREDENTIALS:
- Email: %[1]s
- Password: %[2]s

STEPS:
1. Click the email input field ("Email or Phone Number") and type the email
2. Click the password field and type the password
3. Click the "Log In" button
4. Wait for Discord to load (3-5 seconds)

VERIFICATION:
- After login the left sidebar should show the server list
- If you see the server list, report: LOGIN_SUCCESS

ERROR HANDLING:
- "Invalid login credentials" -> report: LOGIN_FAILED_INVALID_CREDENTIALS
- CAPTCHA challenge -> report: LOGIN_FAILED_CAPTCHA
- "New login location" or 2FA prompt -> report: LOGIN_FAILED_2FA_REQUIRED
- "Too many login attempts" -> report: LOGIN_FAILED_RATE_LIMITED
- Page fails to load -> report: LOGIN_FAILED_PAGE_ERROR
- Any step fails after 3 attempts -> report: LOGIN_FAILED_UNKNOWN

IMPORTANT:
- Do NOT click any "Download" or "Get Discord for..." buttons
- Work around cookie banners instead of dismissing them
- Take a screenshot after each major step to verify progress`

const joinVoicePrompt = `You are automating Discord to join a voice channel.

GOAL: Join the specified voice channel in the specified server.

TARGET:
- Server: %[1]s
- Voice Channel: %[2]s

STEPS:
1. Find and click the server icon for "%[1]s" in the left sidebar
   (hover over icons to see server names if needed)
2. Wait for the channel list to load
3. Find "%[2]s" with a speaker icon next to it, expanding categories and
   scrolling if needed
4. Click the voice channel to join and wait for the connection

VERIFICATION:
- Your username appears under the voice channel name
- Voice controls (mute, deafen, disconnect) appear at the bottom
- Report: JOINED_CHANNEL

ERROR HANDLING:
- Server not in sidebar after scrolling -> report: SERVER_NOT_FOUND
- Channel not in list after scrolling -> report: CHANNEL_NOT_FOUND
- Channel shows a lock icon -> report: CHANNEL_LOCKED
- Microphone permission prompt -> click "Allow" and continue
- Connection fails repeatedly -> report: CONNECTION_FAILED
- "You must verify your phone" -> report: PHONE_VERIFICATION_REQUIRED

IMPORTANT:
- Voice channels have a speaker icon, text channels a hash
- Take a screenshot after joining to confirm your presence`

const openURLPrompt = `You are automating a browser to open a URL in a new tab.

GOAL: Open the URL in a new tab and prepare it for streaming.

URL TO OPEN: %[1]s

STEPS:
1. Open a new tab with Ctrl+T
2. Type the URL and press Enter
3. Wait for the page to fully load

FOR VIDEO CONTENT (YouTube, Twitch, Vimeo):
4. Wait for the player to initialize; click play if it doesn't auto-play
5. Wait out or skip any ads

VERIFICATION:
- The URL bar shows the expected domain and the content is rendered
- For videos the player is visible and playing
- Report: URL_LOADED

ERROR HANDLING:
- "This site can't be reached" -> report: URL_UNREACHABLE
- "Video unavailable" -> report: VIDEO_UNAVAILABLE
- Age verification required -> report: AGE_VERIFICATION_REQUIRED
- Login/subscription wall -> report: LOGIN_REQUIRED
- Region blocked -> report: REGION_BLOCKED
- Page loads but content fails -> report: CONTENT_LOAD_FAILED

IMPORTANT:
- Keep the Discord tab open - both tabs are needed
- Make sure audio/video is playing before proceeding`

const startSharePrompt = `You are automating Discord to start screen sharing in a voice channel.

GOAL: Share the browser tab containing the streaming content.

PRECONDITIONS:
- Already connected to a voice channel
- The content tab is already open

STEPS:
1. Switch to the Discord tab (Ctrl+Tab) and confirm you are still in voice
2. Click the "Share Your Screen" button in the voice controls
3. In the picker dialog, choose the browser-tab option and click the tab
   containing %[1]s
4. If an "Also share tab audio" checkbox exists, make sure it is CHECKED
5. Click "Share" / "Go Live" and wait for the stream to start

VERIFICATION:
- A small preview of the stream appears in Discord
- Report: SCREEN_SHARE_STARTED

ERROR HANDLING:
- Share button not visible -> report: SCREEN_SHARE_BUTTON_NOT_FOUND
- Picker dialog does not appear after retrying -> report: PICKER_FAILED
- Target tab not in picker -> report: TAB_NOT_FOUND_IN_PICKER
- Share button grayed out -> report: SHARE_NOT_AVAILABLE
- Permission denied -> report: PERMISSION_DENIED
- Stream starts without audio -> report: AUDIO_NOT_SHARED

IMPORTANT:
- Audio sharing is critical - enable "Share audio" when offered
- The content tab must be the focused tab in its window to appear in the picker`

const stopSharePrompt = `You are automating Discord to stop an active screen share.

GOAL: Stop the current screen share.

STEPS:
1. Switch to the Discord tab if needed
2. Find the stop control: "Stop Streaming" in the preview, the red stop
   button in the voice controls, or the share button toggled again
3. Click it and wait for the stream to end

VERIFICATION:
- The stream preview disappears; you remain in the voice channel
- Report: SCREEN_SHARE_STOPPED

ERROR HANDLING:
- Stop control not found -> press Escape to close popups, then retry
- Stream will not stop -> report: STOP_FAILED
- Disconnected from voice after stopping -> report: DISCONNECTED_AFTER_STOP`

const leaveVoicePrompt = `You are automating Discord to leave the current voice channel.

GOAL: Disconnect from the voice channel cleanly.

STEPS:
1. Switch to the Discord tab if needed
2. Click the disconnect button (phone-with-X icon) in the voice control bar,
   not the mute or deafen buttons
3. Wait for disconnection

VERIFICATION:
- The voice controls disappear and you are no longer listed in the channel
- Report: LEFT_CHANNEL

ERROR HANDLING:
- Still connected after clicking -> press Escape, then retry
- Still connected after retry -> report: DISCONNECT_FAILED`

func loginInstruction(email, password string) string {
	return fmt.Sprintf(discordLoginPrompt, email, password)
}

func joinVoiceInstruction(serverName, channelName string) string {
	return fmt.Sprintf(joinVoicePrompt, serverName, channelName)
}

func openURLInstruction(url string) string {
	return fmt.Sprintf(openURLPrompt, url)
}

func startShareInstruction(url string) string {
	return fmt.Sprintf(startSharePrompt, url)
}
