package models

import (
	"fmt"
	"net/url"
	"strconv"
)

// ValidateURL reports whether a URL is well-formed http(s).
func ValidateURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateSnowflake reports whether a string looks like a Discord snowflake
// ID (a 17-20 digit unsigned integer).
func ValidateSnowflake(id string) bool {
	if len(id) < 17 || len(id) > 20 {
		return false
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return false
	}
	return n >= 1e16
}

// Validate checks a stream request, returning a list of problems. An empty
// list means the request is valid.
func (r *StreamRequest) Validate() []string {
	var problems []string
	if r.SessionID == "" {
		problems = append(problems, "missing session_id")
	}
	if !ValidateURL(r.URL) {
		problems = append(problems, "invalid URL format")
	}
	if !ValidateSnowflake(r.GuildID) {
		problems = append(problems, "invalid guild_id format")
	}
	if !ValidateSnowflake(r.ChannelID) {
		problems = append(problems, "invalid channel_id format")
	}
	if !ValidateSnowflake(r.RequesterID) {
		problems = append(problems, "invalid requester_id format")
	}
	if r.ChannelName == "" || len(r.ChannelName) > 100 {
		problems = append(problems, "invalid channel_name")
	}
	if r.WebhookURL != "" && !ValidateURL(r.WebhookURL) {
		problems = append(problems, "invalid webhook_url format")
	}
	return problems
}

// Validate checks a status update at the webhook boundary. Payloads missing
// required fields are rejected, not coerced.
func (u *StatusUpdate) Validate() error {
	if u.SessionID == "" {
		return fmt.Errorf("missing session_id")
	}
	if u.Status == "" {
		return fmt.Errorf("missing status")
	}
	if !knownStatuses[u.Status] {
		return fmt.Errorf("unknown status %q", u.Status)
	}
	return nil
}
