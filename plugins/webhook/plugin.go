package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/plugrun/runtime/plugin"
)

// Config holds the webhook provider configuration with declarative tags
type Config struct {
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	UserAgent   string        `yaml:"user_agent" default:"plugrun-webhook"`
	Debug       bool          `yaml:"debug" default:"false"`
}

// Mode decides how several likes paths are combined against the threshold.
type Mode string

const (
	ModeAny Mode = "any"
	ModeAll Mode = "all"
)

func (Mode) EnumValues() []any {
	return []any{ModeAny, ModeAll}
}

// Provider pings webhooks when engagement thresholds are met and sends
// periodic heartbeats.
type Provider struct {
	Config Config // Exported so the host can set it before Initialize
	client *resty.Client
	l      *slog.Logger
}

func New(config Config, l *slog.Logger) *Provider {
	if l == nil {
		l = slog.Default()
	}
	return &Provider{Config: config, l: l}
}

func (p *Provider) Identifier() string {
	return "webhook"
}

func (p *Provider) Plugs() []plugin.Declaration {
	urlRules := []plugin.RuleSpec{
		{Kind: plugin.RuleRequired},
		{Kind: plugin.RulePattern, Pattern: `^https?://`, Message: "Must be an http(s) URL"},
	}

	return []plugin.Declaration{
		{
			Identifier:  "autoPing",
			Title:       "Auto Ping",
			Description: "Notify a webhook once a post reaches a number of likes",
			RunEveryMs:  21600000,
			TotalRuns:   10,
			Method:      "AutoPing",
			Params: []plugin.ParamSpec{
				{Name: "ctx"},
				{Name: "exec"},
				{Name: "statsUrl"},
				{Name: "minLikes"},
				plugin.ParamWithDefault("mode", string(ModeAny)),
				plugin.ParamWithDefault("likesPath", []string{"likes"}),
				{Name: "webhookUrl"},
			},
			Fields: []plugin.FieldSpec{
				{
					Name:        "statsUrl",
					Type:        "string",
					Placeholder: "https://api.example.com/posts/stats",
					Description: "Endpoint returning the post statistics as JSON",
					Rules:       urlRules,
				},
				{
					Name:        "minLikes",
					Type:        "number",
					Placeholder: "10",
					Rules: []plugin.RuleSpec{
						{Kind: plugin.RuleRequired},
						{Kind: plugin.RuleMin, Min: 1},
					},
				},
				{
					Name: "mode",
					Type: "select",
					Rules: []plugin.RuleSpec{
						{Kind: plugin.RuleExpression, Expression: `value == nil || lower(value) in ["any", "all"]`, Message: "Mode must be any or all"},
					},
				},
				{Name: "likesPath", Type: "string", Description: "Dotted JSON path(s) of the likes counter"},
				{Name: "webhookUrl", Type: "string", Rules: urlRules},
			},
		},
		{
			Identifier:  "heartbeat",
			Title:       "Heartbeat",
			Description: "Post a heartbeat to a webhook",
			RunEveryMs:  60000,
			Method:      "Heartbeat",
			Params: []plugin.ParamSpec{
				{Name: "ctx"},
				{Name: "exec"},
				{Name: "webhookUrl"},
				{Name: "note"},
			},
			Fields: []plugin.FieldSpec{
				{Name: "webhookUrl", Type: "string", Rules: urlRules},
				{Name: "note", Type: "string", Placeholder: "still alive"},
			},
		},
	}
}

// Initialize implements the plugin.Initializer interface
// Config is already validated by the host before this is called
func (p *Provider) Initialize(ctx context.Context) error {
	p.client = resty.New().
		SetTimeout(p.Config.Timeout).
		SetRetryCount(p.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(p.Config.RetryWaitMS) * time.Millisecond).
		SetHeader("User-Agent", p.Config.UserAgent).
		SetDebug(p.Config.Debug)

	return nil
}

// Shutdown implements the plugin.Shutdowner interface
func (p *Provider) Shutdown(ctx context.Context) error {
	// Resty doesn't require explicit cleanup
	p.client = nil
	return nil
}

// PingOutcome is the value an AutoPing run resolves to.
type PingOutcome struct {
	Triggered bool               `json:"triggered"`
	Likes     map[string]float64 `json:"likes"`
}

// AutoPing fetches post statistics and notifies webhookUrl when the likes
// found at likesPath reach minLikes. With several paths, mode decides
// whether any or all of them must reach the threshold.
func (p *Provider) AutoPing(ctx context.Context, exec *plugin.Execution, statsUrl string, minLikes int, mode Mode, likesPath []string, webhookUrl string) plugin.Deferred {
	return plugin.Go(ctx, func(ctx context.Context) (any, error) {
		if p.client == nil {
			return nil, fmt.Errorf("webhook provider is not initialized")
		}

		stats, err := p.fetchStats(ctx, exec, statsUrl)
		if err != nil {
			return nil, err
		}

		outcome := PingOutcome{Likes: make(map[string]float64, len(likesPath))}
		met := 0
		for _, path := range likesPath {
			path = strings.TrimSpace(path)
			likes, ok := number(stats.Path(path).Data())
			if !ok {
				return nil, fmt.Errorf("no numeric likes at %q", path)
			}
			outcome.Likes[path] = likes
			if likes >= float64(minLikes) {
				met++
			}
		}

		switch mode {
		case ModeAll:
			outcome.Triggered = met > 0 && met == len(likesPath)
		default:
			outcome.Triggered = met > 0
		}

		if !outcome.Triggered {
			p.l.InfoContext(ctx, "Likes threshold not reached",
				"min_likes", minLikes,
				"likes", outcome.Likes)
			return outcome, nil
		}

		body := gabs.New()
		body.Set("autoPing", "plug")
		body.Set(outcome.Likes, "likes")
		body.Set(minLikes, "threshold")
		setExecution(body, exec)

		if err := p.post(ctx, webhookUrl, body); err != nil {
			return nil, err
		}
		return outcome, nil
	})
}

// Heartbeat posts a heartbeat payload to webhookUrl.
func (p *Provider) Heartbeat(ctx context.Context, exec *plugin.Execution, webhookUrl string, note string) (map[string]any, error) {
	if p.client == nil {
		return nil, fmt.Errorf("webhook provider is not initialized")
	}

	sentAt := time.Now().UTC()
	body := gabs.New()
	body.Set("heartbeat", "plug")
	body.Set(sentAt.Format(time.RFC3339), "sent_at")
	if note != "" {
		body.Set(note, "note")
	}
	setExecution(body, exec)

	if err := p.post(ctx, webhookUrl, body); err != nil {
		return nil, err
	}

	return map[string]any{"sent_at": sentAt}, nil
}

func (p *Provider) fetchStats(ctx context.Context, exec *plugin.Execution, statsUrl string) (*gabs.Container, error) {
	req := p.client.R().SetContext(ctx)
	if exec != nil {
		if exec.AccessToken != "" {
			req.SetAuthToken(exec.AccessToken)
		}
		if exec.HasPost() {
			req.SetQueryParam("post_id", exec.PostID)
		}
	}

	resp, err := req.Get(statsUrl)
	if err != nil {
		return nil, fmt.Errorf("stats request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("stats request returned %s", resp.Status())
	}

	stats, err := gabs.ParseJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("stats response is not JSON: %w", err)
	}
	return stats, nil
}

func (p *Provider) post(ctx context.Context, url string, body *gabs.Container) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body.Bytes()).
		Post(url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %s", resp.Status())
	}
	return nil
}

func setExecution(body *gabs.Container, exec *plugin.Execution) {
	if exec == nil {
		return
	}
	body.Set(exec.ID, "execution", "id")
	body.Set(exec.IntegrationID, "execution", "integration_id")
	if exec.HasPost() {
		body.Set(exec.PostID, "execution", "post_id")
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
