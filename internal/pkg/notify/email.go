package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jprome/auct-alert/internal/config"
)

// EmailNotifier delivers alerts over SMTP.
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// Send renders the alert card and dispatches it. Missing SMTP config or an
// empty recipient is a logged skip, not an error, so a half-configured
// deployment still runs the rest of the pipeline.
func (n *EmailNotifier) Send(ctx context.Context, msg *AlertMessage) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification")
		return nil
	}
	if strings.TrimSpace(msg.ToEmail) == "" {
		n.logger.Warn("email recipient empty, skip notification")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(n.cfg.FromEmail, n.cfg.FromName))
	m.SetHeader("To", msg.ToEmail)
	m.SetHeader("Subject", fmt.Sprintf("[Auction Alert] %s", msg.Item.Title))
	m.SetBody("text/html", n.buildHTMLBody(msg))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("alert email sent",
		slog.String("to", msg.ToEmail),
		slog.String("item_id", msg.Item.ItemID))
	return nil
}

func (n *EmailNotifier) buildHTMLBody(msg *AlertMessage) string {
	item := msg.Item

	priceLine := "Price unknown"
	if item.CurrentPrice != nil {
		priceLine = fmt.Sprintf("$%.0f", *item.CurrentPrice)
	}

	location := "Location unknown"
	if item.PickupCity != "" {
		location = item.PickupCity
		if item.PickupState != "" {
			location += ", " + item.PickupState
		}
	}

	closing := "Closing time unknown"
	if item.ClosingAt != nil {
		closing = item.ClosingAt.Format(time.RFC1123)
	}

	clickURL := msg.ClickURL
	if clickURL == "" {
		clickURL = item.SourceURL
	}

	var reasonItems strings.Builder
	for _, r := range msg.MatchReasons {
		reasonItems.WriteString("<li>" + r + "</li>")
	}

	template := `
<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #0f172a; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; }
  .price { font-size: 26px; font-weight: bold; color: #ef4444; margin: 8px 0 12px; }
  .title { font-size: 16px; margin-bottom: 8px; }
  .meta { font-size: 14px; color: #374151; margin-bottom: 4px; }
  .score { font-size: 14px; color: #0f766e; margin: 12px 0; font-weight: bold; }
  .reasons { font-size: 13px; color: #4b5563; margin: 0 0 16px 18px; padding: 0; }
  .cta { display: inline-block; padding: 12px 20px; background: #22c55e; color: #fff; text-decoration: none; border-radius: 8px; font-weight: bold; }
  .footer { margin-top: 20px; font-size: 12px; color: #6b7280; }
</style>
</head>
<body>
  <div class="card">
    <div class="header">Auction match found</div>
    <div class="content">
      <div class="title">%s</div>
      <div class="price">%s</div>
      <div class="meta">Pickup: %s</div>
      <div class="meta">Closes: %s</div>
      <div class="score">Match score: %.0f%%</div>
      <ul class="reasons">%s</ul>
      <div style="text-align:center; margin-bottom: 12px;">
        <a class="cta" href="%s" target="_blank">View auction</a>
      </div>
      <div class="footer">Source: %s</div>
    </div>
  </div>
</body>
</html>`

	return fmt.Sprintf(template,
		item.Title,
		priceLine,
		location,
		closing,
		msg.Confidence*100,
		reasonItems.String(),
		clickURL,
		item.Source,
	)
}
