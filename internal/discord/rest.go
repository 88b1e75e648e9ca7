// Package discord implements the minimal Discord surface the bot needs: a
// REST client for direct messages and a gateway client that tracks voice
// state across guilds.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const apiBase = "https://discord.com/api/v10"

// Client is a Discord REST client scoped to the endpoints the bot uses.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client

	mu         sync.Mutex
	dmChannels map[string]string // user ID -> DM channel ID
}

// NewClient creates a REST client authenticated as a bot.
func NewClient(token string) *Client {
	return &Client{
		token:      token,
		baseURL:    apiBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		dmChannels: make(map[string]string),
	}
}

// DM opens (or reuses) a DM channel with the user and sends text to it.
func (c *Client) DM(ctx context.Context, userID, text string) error {
	channelID, err := c.dmChannel(ctx, userID)
	if err != nil {
		return err
	}
	return c.SendMessage(ctx, channelID, text)
}

// SendMessage posts a message to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) error {
	body := map[string]string{"content": content}
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return nil
}

func (c *Client) dmChannel(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	channelID, ok := c.dmChannels[userID]
	c.mu.Unlock()
	if ok {
		return channelID, nil
	}

	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]string{"recipient_id": userID}
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", body, &resp); err != nil {
		return "", fmt.Errorf("open dm channel with %s: %w", userID, err)
	}

	c.mu.Lock()
	c.dmChannels[userID] = resp.ID
	c.mu.Unlock()
	return resp.ID, nil
}

// do issues one authenticated request, retrying once after a rate limit.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		var reader io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}
			reader = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := retryAfter(resp)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("discord api %s %s: status %d: %s", method, path, resp.StatusCode, detail)
		}

		if out != nil {
			err = json.NewDecoder(resp.Body).Decode(out)
		} else {
			_, err = io.Copy(io.Discard, resp.Body)
		}
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("discord api %s %s: rate limited", method, path)
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Second
}
