package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	twilio "github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/NerdyNot/NerdyOps/internal/models"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

const alertEmailHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Fleet Alert</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif; background-color: #fcf8e3; color: #8a6d3b; margin: 0; padding: 20px; }
  .container { max-width: 600px; margin: auto; background: #fff; border: 1px solid #faebcc; border-radius: 8px; }
  .header { background-color: #fcf8e3; padding: 15px 20px; border-bottom: 1px solid #faebcc; }
  .header h1 { margin: 0; font-size: 20px; color: #8a6d3b; }
  .content { padding: 20px; }
  ul { list-style: none; padding: 0; }
  li { padding: 8px; border-bottom: 1px solid #eee; }
  li:last-child { border-bottom: none; }
  strong { color: #333; }
</style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>%s</h1>
    </div>
    <div class="content">
      <p>An automated fleet alert was triggered. Please review.</p>
      <ul>%s
        <li><strong>Timestamp (UTC):</strong> %s</li>
      </ul>
    </div>
  </div>
</body>
</html>`

// Notifier is what the sweep and the result intake need from the
// alerting layer.
type Notifier interface {
	NotifyAgentDown(ctx context.Context, agent *models.Agent)
	NotifyTaskFailed(ctx context.Context, task *models.Task)
}

/*
NotificationService pushes SMS and email alerts to the configured
on-call contact. Delivery is best-effort: failures are logged, never
propagated, so an unreachable provider cannot block the sweep or a
result report.
*/
type NotificationService struct {
	twClient    *twilio.RestClient
	sgClient    *sendgrid.Client
	fromPhone   string
	fromEmail   string
	onCallPhone string
	onCallEmail string
	orgName     string
	sgSandbox   bool
}

func NewNotificationService(
	twClient *twilio.RestClient,
	sgClient *sendgrid.Client,
	fromPhone, fromEmail string,
	onCallPhone, onCallEmail string,
	orgName string,
	sgSandbox bool,
) *NotificationService {
	return &NotificationService{
		twClient:    twClient,
		sgClient:    sgClient,
		fromPhone:   fromPhone,
		fromEmail:   fromEmail,
		onCallPhone: onCallPhone,
		onCallEmail: onCallEmail,
		orgName:     orgName,
		sgSandbox:   sgSandbox,
	}
}

func (n *NotificationService) NotifyAgentDown(ctx context.Context, agent *models.Agent) {
	subject := fmt.Sprintf("Agent down: %s", agent.ID)
	plain := fmt.Sprintf(
		"Agent %s (%s, %s) stopped reporting.\nLast report: %s",
		agent.ID, agent.Hostname, agent.OSType,
		agent.LastReportTime.UTC().Format(time.RFC1123Z),
	)
	htmlItems := fmt.Sprintf(
		"<li><strong>Agent:</strong> %s</li><li><strong>Hostname:</strong> %s</li><li><strong>Last Report:</strong> %s</li>",
		agent.ID, agent.Hostname, agent.LastReportTime.UTC().Format(time.RFC1123Z),
	)
	n.send(subject, plain, htmlItems)
}

func (n *NotificationService) NotifyTaskFailed(ctx context.Context, task *models.Task) {
	subject := fmt.Sprintf("Task failed on agent %s", task.AgentID)
	plain := fmt.Sprintf(
		"Task %s failed.\nInput: %s\nError: %s",
		task.ID, task.Input, task.Error,
	)
	htmlItems := fmt.Sprintf(
		"<li><strong>Task:</strong> %s</li><li><strong>Agent:</strong> %s</li><li><strong>Input:</strong> %s</li><li><strong>Error:</strong> %s</li>",
		task.ID, task.AgentID, task.Input, task.Error,
	)
	n.send(subject, plain, htmlItems)
}

func (n *NotificationService) send(subject, plainBody, htmlItems string) {
	// ---------- Twilio SMS ----------
	if n.twClient != nil && n.onCallPhone != "" {
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(n.onCallPhone)
		params.SetFrom(n.fromPhone)
		params.SetBody(subject + " :: " + plainBody)
		if _, smsErr := n.twClient.Api.CreateMessage(params); smsErr != nil {
			utils.Logger.WithError(smsErr).Warnf("Failed to send on-call SMS for %q", subject)
		}
	} else {
		utils.Logger.Warnf("Twilio client unavailable, skipping SMS for %q", subject)
	}

	// ---------- SendGrid Email ----------
	if n.sgClient != nil && n.onCallEmail != "" {
		htmlBody := fmt.Sprintf(alertEmailHTML, subject, htmlItems,
			time.Now().UTC().Format(time.RFC1123Z))
		from := mail.NewEmail(fmt.Sprintf("%s Bot", n.orgName), n.fromEmail)
		to := mail.NewEmail("On-call", n.onCallEmail)
		msg := mail.NewSingleEmail(from, subject, to, plainBody, htmlBody)
		msg.TrackingSettings = &mail.TrackingSettings{
			ClickTracking: &mail.ClickTrackingSetting{
				Enable: utils.Ptr(false),
			},
		}
		if n.sgSandbox {
			ms := mail.NewMailSettings()
			ms.SetSandboxMode(mail.NewSetting(true))
			msg.MailSettings = ms
		}
		if _, sgErr := n.sgClient.Send(msg); sgErr != nil {
			utils.Logger.WithError(sgErr).Warnf("Failed to send on-call email for %q", subject)
		}
	} else {
		utils.Logger.Warnf("SendGrid client unavailable, skipping email for %q", subject)
	}
}
