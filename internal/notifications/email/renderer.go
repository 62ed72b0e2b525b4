package email

import (
	"fmt"
	"html"
	"strings"
	"time"

	"talentsphere/internal/types"
)

// RenderedEmail is a fully rendered message ready for the provider.
type RenderedEmail struct {
	Subject  string
	BodyText string
	BodyHTML string
}

// subjectPrefixes give category context in the inbox without a full template
// system. Unlisted categories use the bare title.
var subjectPrefixes = map[types.Category]string{
	types.CategoryJobAlert:          "New job match",
	types.CategoryApplicationUpdate: "Application update",
	types.CategoryInterviewReminder: "Interview reminder",
	types.CategoryJobExpiryWarning:  "Posting expires soon",
}

// RenderNotification renders a single-notification email.
func RenderNotification(n *types.Notification) RenderedEmail {
	subject := n.Title
	if prefix, ok := subjectPrefixes[n.Category]; ok {
		subject = fmt.Sprintf("%s: %s", prefix, n.Title)
	}

	text := n.Message + "\n\n" + footerText
	htmlBody := fmt.Sprintf(
		"<h2>%s</h2><p>%s</p><hr><p><small>%s</small></p>",
		html.EscapeString(n.Title),
		html.EscapeString(n.Message),
		html.EscapeString(footerText),
	)

	return RenderedEmail{Subject: subject, BodyText: text, BodyHTML: htmlBody}
}

// RenderDigest renders one email summarizing a batch of notifications,
// newest last. Callers must not pass an empty batch.
func RenderDigest(kind types.DigestKind, notifications []*types.Notification, now time.Time) RenderedEmail {
	label := "daily"
	if kind == types.DigestWeekly {
		label = "weekly"
	}

	subject := fmt.Sprintf("Your %s digest: %d update", label, len(notifications))
	if len(notifications) != 1 {
		subject += "s"
	}

	var text strings.Builder
	var htmlBody strings.Builder
	fmt.Fprintf(&text, "Here is your %s summary for %s.\n\n", label, now.Format("January 2, 2006"))
	fmt.Fprintf(&htmlBody, "<h2>Your %s summary</h2><ul>", label)

	for _, n := range notifications {
		fmt.Fprintf(&text, "- %s\n  %s\n", n.Title, n.Message)
		fmt.Fprintf(&htmlBody, "<li><strong>%s</strong><br>%s</li>",
			html.EscapeString(n.Title), html.EscapeString(n.Message))
	}

	text.WriteString("\n" + footerText)
	fmt.Fprintf(&htmlBody, "</ul><hr><p><small>%s</small></p>", html.EscapeString(footerText))

	return RenderedEmail{Subject: subject, BodyText: text.String(), BodyHTML: htmlBody.String()}
}

const footerText = "You are receiving this because of your TalentSphere notification settings. " +
	"Manage preferences from your account page."
