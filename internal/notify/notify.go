// Package notify sends batched alerts about newly reachable subdomains to
// Slack and Discord incoming webhooks. Both platforms are independently
// optional, gated on the presence of their webhook URL, and a send failure
// is logged, never returned to the caller — a broken webhook must not abort
// a probe sweep.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/slack-go/slack"

	"github.com/tbckr/dixcover/internal/metrics"
)

const sendTimeout = 5 * time.Second

const (
	slackMaxItems   = 25
	slackMaxBlocks  = 45
	slackMaxLineLen = 600

	discordMaxDescLen = 4096
	discordMaxTitle   = 256
	discordMaxItems   = 50
)

// Alive is one newly reachable subdomain to report.
type Alive struct {
	Subdomain  string
	StatusCode *int
	ProbedAt   time.Time
}

// Notifier fans a batch of Alive events out to whichever platforms are
// configured. A zero Notifier (no webhooks set) is valid and a no-op.
type Notifier struct {
	http *req.Client
	logger *slog.Logger

	slackURL   string
	discordURL string

	slackMention   string
	discordMention string

	metrics *metrics.Metrics
}

// New builds a Notifier. slackURL/discordURL may be empty to disable that
// platform. slackMention is "here" or "channel"; discordMention is "here"
// or "everyone"; any other value (including empty) sends no mention. m may
// be nil to disable instrumentation.
func New(httpClient *req.Client, logger *slog.Logger, slackURL, discordURL, slackMention, discordMention string, m *metrics.Metrics) *Notifier {
	n := &Notifier{
		http:           httpClient,
		logger:         logger,
		slackURL:       slackURL,
		discordURL:     discordURL,
		slackMention:   strings.ToLower(strings.TrimSpace(slackMention)),
		discordMention: strings.ToLower(strings.TrimSpace(discordMention)),
		metrics:        m,
	}
	if n.slackURL != "" {
		logger.Info("notifier: slack enabled", "webhook", redact(n.slackURL))
	}
	if n.discordURL != "" {
		logger.Info("notifier: discord enabled", "webhook", redact(n.discordURL))
	}
	return n
}

func redact(url string) string {
	parts := strings.Split(url, "/")
	if len(parts) == 0 {
		return "(redacted)"
	}
	return ".../" + parts[len(parts)-1]
}

// NotifyBatch reports a batch of newly alive subdomains. Empty batches are
// a no-op. Each platform receives one message regardless of batch size.
func (n *Notifier) NotifyBatch(ctx context.Context, items []Alive) {
	if len(items) == 0 {
		return
	}
	n.logger.Info("notifier: new alive subdomains", "count", len(items))

	if n.slackURL != "" {
		n.sendSlack(ctx, items)
	}
	if n.discordURL != "" {
		n.sendDiscord(ctx, items)
	}
}

func (n *Notifier) sendSlack(ctx context.Context, items []Alive) {
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*%d new alive subdomains detected*", len(items)), false, false),
			nil, nil,
		),
	}

	display := items
	if len(display) > slackMaxItems {
		display = display[:slackMaxItems]
	}
	for _, it := range display {
		raw := fmt.Sprintf("*%s* — `%s` — status: `%s`", it.ProbedAt.Format("2006-01-02 15:04"), it.Subdomain, statusString(it.StatusCode))
		text := raw
		if len(text) > slackMaxLineLen {
			text = text[:slackMaxLineLen-3] + "..."
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
			nil, nil,
		))
	}

	if remaining := len(items) - len(display); remaining > 0 {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("And %d more entries...", remaining), false, false),
		))
	}
	if len(blocks) > slackMaxBlocks {
		blocks = blocks[:slackMaxBlocks]
	}

	mention := ""
	switch n.slackMention {
	case "here":
		mention = "<!here> "
	case "channel":
		mention = "<!channel> "
	}

	msg := &slack.WebhookMessage{
		Text:   fmt.Sprintf("%s%d new alive subdomains detected", mention, len(items)),
		Blocks: &slack.Blocks{BlockSet: blocks},
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := slack.PostWebhookContext(sendCtx, n.slackURL, msg); err != nil {
		if n.metrics != nil {
			n.metrics.NotifyFailures.WithLabelValues("slack").Inc()
		}
		n.logger.Error("notifier: slack send failed", "err", err)
		return
	}
	n.logger.Debug("notifier: slack batch sent", "count", len(items))
}

type discordEmbed struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Footer      discordEmbedFoot  `json:"footer"`
}

type discordEmbedFoot struct {
	Text string `json:"text"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

func (n *Notifier) sendDiscord(ctx context.Context, items []Alive) {
	display := items
	if len(display) > discordMaxItems {
		display = display[:discordMaxItems]
	}

	lines := make([]string, 0, len(display))
	for _, it := range display {
		lines = append(lines, fmt.Sprintf("**%s** — `%s` — %s", it.Subdomain, statusString(it.StatusCode), it.ProbedAt.Format("2006-01-02 15:04")))
	}
	description := strings.Join(lines, "\n")
	shown := len(lines)

	if len(description) > discordMaxDescLen-50 {
		truncated := description[:discordMaxDescLen-50]
		if lastNewline := strings.LastIndex(truncated, "\n"); lastNewline > 0 {
			description = truncated[:lastNewline]
			shown = strings.Count(description, "\n") + 1
		} else {
			description = truncated + "\n\n... (truncated)"
			shown = 1
		}
	}
	if remaining := len(items) - shown; remaining > 0 {
		description += fmt.Sprintf("\n\n... and %d more subdomains", remaining)
	}

	title := fmt.Sprintf("%d new alive subdomains", len(items))
	if len(title) > discordMaxTitle {
		title = title[:discordMaxTitle-3] + "..."
	}

	content := ""
	switch n.discordMention {
	case "everyone":
		content = "@everyone"
	case "here":
		content = "@here"
	}

	payload := discordPayload{
		Content: content,
		Embeds: []discordEmbed{{
			Title:       title,
			Description: description,
			Footer:      discordEmbedFoot{Text: "dixcover"},
		}},
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	resp, err := n.http.R().SetContext(sendCtx).SetBody(payload).Post(n.discordURL)
	if err != nil {
		if n.metrics != nil {
			n.metrics.NotifyFailures.WithLabelValues("discord").Inc()
		}
		n.logger.Error("notifier: discord send failed", "err", err)
		return
	}
	if resp.StatusCode >= 400 {
		if n.metrics != nil {
			n.metrics.NotifyFailures.WithLabelValues("discord").Inc()
		}
		n.logger.Error("notifier: discord non-2xx response", "status", resp.StatusCode)
		return
	}
	n.logger.Debug("notifier: discord batch sent", "count", len(items))
}

func statusString(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *code)
}
