package notify

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/MrWong99/vocepta/pkg/callstore"
)

// FormatSMS renders the one-line staff page for an urgent callback:
//
//	New urgent callback: Maria Garcia +15551234567 - Hail damage claim
//
// Missing name falls back to "Unknown", missing intent to "Callback
// requested".
func FormatSMS(call *callstore.Call, task *callstore.CallbackTask) string {
	name := strings.TrimSpace(task.Name)
	if name == "" {
		name = "Unknown"
	}
	intent := ""
	if call != nil {
		intent = strings.TrimSpace(call.Intent)
	}
	if intent == "" {
		intent = "Callback requested"
	}
	return fmt.Sprintf("New urgent callback: %s %s - %s", name, task.CallbackNumber, intent)
}

// FormatEmailSubject renders the staff email subject, e.g.
// "[URGENT] New Callback: Maria Garcia".
func FormatEmailSubject(task *callstore.CallbackTask) string {
	name := strings.TrimSpace(task.Name)
	if name == "" {
		name = "Unknown Caller"
	}
	return fmt.Sprintf("[%s] New Callback: %s", task.Priority.String(), name)
}

// emailData feeds the HTML and text body renderers.
type emailData struct {
	Priority      string
	Name          string
	Phone         string
	BestTime      string
	Language      string
	Intent        string
	Summary       string
	Notes         string
	TranscriptURL string
}

// The tel: prefix stays constant in the template so html/template escapes
// the number as a URL component instead of rejecting the scheme.
var emailHTML = template.Must(template.New("callback-email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: Arial, Helvetica, sans-serif; color: #333;">
  <h2>New Callback Request</h2>
  <table cellpadding="6">
    <tr><td><strong>Priority</strong></td><td>{{.Priority}}</td></tr>
    <tr><td><strong>Name</strong></td><td>{{.Name}}</td></tr>
    <tr><td><strong>Phone</strong></td><td><a href="tel:{{.Phone}}">{{.Phone}}</a></td></tr>
    <tr><td><strong>Best time to call</strong></td><td>{{.BestTime}}</td></tr>
    <tr><td><strong>Language</strong></td><td>{{.Language}}</td></tr>
    <tr><td><strong>Notes</strong></td><td>{{.Notes}}</td></tr>
  </table>
{{- if .Intent}}
  <h3>Intent</h3>
  <p>{{.Intent}}</p>
{{- end}}
{{- if .Summary}}
  <h3>Call Summary</h3>
  <p>{{.Summary}}</p>
{{- end}}
{{- if .TranscriptURL}}
  <p><a href="{{.TranscriptURL}}">View full transcript</a></p>
{{- end}}
</body>
</html>
`))

// FormatEmailBody renders the HTML staff email and its plain-text variant.
// transcriptBaseURL may be empty, in which case the transcript link is
// omitted from both.
func FormatEmailBody(call *callstore.Call, task *callstore.CallbackTask, transcriptBaseURL string) (html, text string) {
	d := emailData{
		Priority: task.Priority.String(),
		Name:     strings.TrimSpace(task.Name),
		Phone:    task.CallbackNumber,
		BestTime: strings.TrimSpace(task.BestTimeWindow),
		Notes:    strings.TrimSpace(task.Notes),
	}
	if d.Name == "" {
		d.Name = "Unknown Caller"
	}
	if d.BestTime == "" {
		d.BestTime = "Any time"
	}
	if call != nil {
		d.Language = call.Language.LongForm()
		d.Intent = strings.TrimSpace(call.Intent)
		d.Summary = strings.TrimSpace(call.Summary)
	}
	if d.Language == "" {
		d.Language = "Unknown"
	}
	if base := strings.TrimSuffix(transcriptBaseURL, "/"); base != "" {
		d.TranscriptURL = fmt.Sprintf("%s/%s", base, task.CallID)
	}

	var hb strings.Builder
	// A fixed template over emailData cannot fail to execute.
	if err := emailHTML.Execute(&hb, d); err != nil {
		panic(fmt.Sprintf("notify: render email template: %v", err))
	}
	return hb.String(), formatEmailText(d)
}

// FormatDirectEmail wraps a plain one-off message for the email channel.
func FormatDirectEmail(message string) (html, text string) {
	return "<p>" + template.HTMLEscapeString(message) + "</p>", message
}

func formatEmailText(d emailData) string {
	var b strings.Builder
	b.WriteString("New Callback Request\n\n")
	fmt.Fprintf(&b, "Priority:  %s\n", d.Priority)
	fmt.Fprintf(&b, "Name:      %s\n", d.Name)
	fmt.Fprintf(&b, "Phone:     %s\n", d.Phone)
	fmt.Fprintf(&b, "Best time: %s\n", d.BestTime)
	fmt.Fprintf(&b, "Language:  %s\n", d.Language)
	fmt.Fprintf(&b, "Notes:     %s\n", d.Notes)
	if d.Intent != "" {
		fmt.Fprintf(&b, "\nIntent:\n%s\n", d.Intent)
	}
	if d.Summary != "" {
		fmt.Fprintf(&b, "\nCall Summary:\n%s\n", d.Summary)
	}
	if d.TranscriptURL != "" {
		fmt.Fprintf(&b, "\nTranscript: %s\n", d.TranscriptURL)
	}
	return b.String()
}
