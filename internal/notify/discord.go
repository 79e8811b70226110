package notify

import (
	"context"
	"fmt"
	"net/http"
)

// discordMaxContent is the webhook's message length limit.
const discordMaxContent = 2000

// DiscordSender posts run summaries to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newHTTPClient()}
}

// Send posts the message with the title in bold. Long messages are cut to
// the webhook limit.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := fmt.Sprintf("**%s**\n%s", title, message)
	if len(content) > discordMaxContent {
		content = content[:discordMaxContent-3] + "..."
	}
	return postJSON(ctx, d.client, "discord", d.webhookURL, map[string]string{"content": content})
}

// Name returns "discord".
func (d *DiscordSender) Name() string { return "discord" }
