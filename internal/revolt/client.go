// Package revolt is a small client for the Revolt REST API and its Autumn
// file server.
package revolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// maxErrorBody caps how much of an error response is kept in APIError.
const maxErrorBody = 512

// APIError is returned for any non-200 response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("revolt %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// User is the subset of a Revolt user object the bridge reads.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Bot      *struct {
		Owner string `json:"owner"`
	} `json:"bot,omitempty"`
}

// Channel is the subset of a Revolt channel object the bridge reads.
type Channel struct {
	ID          string `json:"_id"`
	ChannelType string `json:"channel_type"`
	Name        string `json:"name"`
}

// File is an Autumn file attached to a message.
type File struct {
	ID          string `json:"_id"`
	Tag         string `json:"tag"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Message is a Revolt message as returned by the API and the gateway.
type Message struct {
	ID          string `json:"_id"`
	Nonce       string `json:"nonce,omitempty"`
	Channel     string `json:"channel"`
	Author      string `json:"author"`
	Content     string `json:"content"`
	Attachments []File `json:"attachments,omitempty"`
}

// Masquerade overrides the displayed author of a message.
type Masquerade struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// OutgoingMessage is the body of POST /channels/{id}/messages.
type OutgoingMessage struct {
	Content     string      `json:"content,omitempty"`
	Nonce       string      `json:"nonce"`
	Attachments []string    `json:"attachments,omitempty"`
	Masquerade  *Masquerade `json:"masquerade,omitempty"`
}

// Client issues authenticated calls to the Revolt API.
type Client struct {
	apiURL    string
	autumnURL string
	token     string
	http      *http.Client
	logger    *slog.Logger
}

// Config configures a Client.
type Config struct {
	APIURL     string
	AutumnURL  string
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New creates a Revolt client.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiURL:    strings.TrimRight(cfg.APIURL, "/"),
		autumnURL: strings.TrimRight(cfg.AutumnURL, "/"),
		token:     cfg.Token,
		http:      cfg.HTTPClient,
		logger:    cfg.Logger,
	}
}

// Self returns the bot's own user. A non-200 answer means the token is
// invalid.
func (c *Client) Self(ctx context.Context) (*User, error) {
	return c.User(ctx, "@me")
}

// User fetches a user by ID.
func (c *Client) User(ctx context.Context, id string) (*User, error) {
	var u User
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Channel fetches a channel by ID.
func (c *Client) Channel(ctx context.Context, id string) (*Channel, error) {
	var ch Channel
	if err := c.getJSON(ctx, "/channels/"+url.PathEscape(id), &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// UserName resolves a user mention. Any failure yields ("", false).
func (c *Client) UserName(ctx context.Context, id string) (string, bool) {
	u, err := c.User(ctx, id)
	if err != nil {
		c.logger.Debug("revolt user lookup failed", "id", id, "err", err)
		return "", false
	}
	return u.Username, u.Username != ""
}

// ChannelName resolves a channel mention. Any failure yields ("", false).
func (c *Client) ChannelName(ctx context.Context, id string) (string, bool) {
	ch, err := c.Channel(ctx, id)
	if err != nil {
		c.logger.Debug("revolt channel lookup failed", "id", id, "err", err)
		return "", false
	}
	return ch.Name, ch.Name != ""
}

// SendMessage posts msg to a channel. Every call carries a fresh nonce.
func (c *Client) SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) (*Message, error) {
	msg.Nonce = uuid.NewString()
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var sent Message
	if err := c.do(req, path, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

// Upload stores data on Autumn under the attachments tag and returns the
// new file ID.
func (c *Client) Upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	path := "/attachments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.autumnURL+path, &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(req, path, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("revolt upload: response carried no file id")
	}
	return out.ID, nil
}

// AttachmentURL is the public Autumn address of an uploaded attachment.
func (c *Client) AttachmentURL(id, filename string) string {
	return c.autumnURL + "/attachments/" + url.PathEscape(id) + "/" + url.PathEscape(filename)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, path, out)
}

// do sends req with the bot token and decodes a 200 response into out.
func (c *Client) do(req *http.Request, path string, out any) error {
	req.Header.Set("X-Bot-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("revolt %s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method:     req.Method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("revolt %s %s: decode response: %w", req.Method, path, err)
	}
	return nil
}
