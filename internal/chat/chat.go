// Package chat relays customer questions to the Gemini generateContent API
// with the CoolCare assistant prompt.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	FallbackReply = "I'm sorry, I couldn't process your message. Please try again."
	ErrorReply    = "I'm experiencing technical difficulties. Please try again later."
)

const (
	defaultModel      = "gemini-1.5-flash"
	defaultAPIVersion = "v1beta"
	temperature       = 0.7
	maxOutputTokens   = 300
)

var (
	ErrNotConfigured = errors.New("chat: gemini api key is not configured")
	ErrEmptyMessage  = errors.New("chat: message is required")
	ErrUpstream      = errors.New("chat: upstream failed")
)

const systemPrompt = `You are CoolCare's helpful AC service assistant. You help customers with:
- AC repair questions and troubleshooting
- Maintenance tips and scheduling
- AC rental options and pricing
- General AC-related inquiries

Keep responses helpful, professional, and concise. If customers need to book a service, direct them to use the booking form on the website. Our services include:
- Repair: Fix broken AC units
- Maintenance: Regular servicing and cleaning
- Rent: Short-term and long-term AC rentals

We service window, split, and central AC systems.

User: `

type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the Gemini API host. Empty uses the SDK default.
	BaseURL string
	// RPS caps outbound calls per second. Zero disables the cap.
	RPS float64
}

type Client struct {
	cfg     Config
	http    *http.Client
	models  *genai.Models
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(l *zap.SugaredLogger) Option { return func(c *Client) { c.log = l } }

// New builds the relay. Without an API key the client is returned unwired and
// Reply reports ErrNotConfigured.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 20 * time.Second},
		log:  zap.NewNop().Sugar(),
	}
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	for _, o := range opts {
		o(c)
	}
	if !c.Configured() {
		return c, nil
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.http,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: defaultAPIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat: init gemini client: %w", err)
	}
	c.models = gc.Models
	return c, nil
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.cfg.APIKey != "" }

// Reply asks the model about message. An empty model answer yields
// FallbackReply; transport or upstream failures wrap ErrUpstream.
func (c *Client) Reply(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	if !c.Configured() || c.models == nil {
		return "", ErrNotConfigured
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	}

	temp := float32(temperature)
	resp, err := c.models.GenerateContent(ctx, c.cfg.Model,
		[]*genai.Content{{
			Role:  "user",
			Parts: []*genai.Part{{Text: systemPrompt + message}},
		}},
		&genai.GenerateContentConfig{
			Temperature:     &temp,
			MaxOutputTokens: maxOutputTokens,
		},
	)
	if err != nil {
		c.log.Errorw("gemini api error", "model", c.cfg.Model, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if text := firstText(resp); text != "" {
		return text, nil
	}
	return FallbackReply, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil || len(cand.Content.Parts) == 0 || cand.Content.Parts[0] == nil {
		return ""
	}
	return cand.Content.Parts[0].Text
}
