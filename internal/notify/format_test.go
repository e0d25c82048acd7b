package notify_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/vocepta/internal/notify"
	"github.com/MrWong99/vocepta/pkg/callstore"
	"github.com/MrWong99/vocepta/pkg/types"
)

func TestFormatSMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		caller string
		intent string
		want   string
	}{
		{
			name:   "full",
			caller: "Maria Garcia",
			intent: "Hail damage claim",
			want:   "New urgent callback: Maria Garcia +15559876543 - Hail damage claim",
		},
		{
			name: "fallbacks",
			want: "New urgent callback: Unknown +15559876543 - Callback requested",
		},
	}
	for _, tc := range tests {
		call := testCall()
		call.Intent = tc.intent
		task := testTask(callstore.PriorityUrgent)
		task.Name = tc.caller

		if got := notify.FormatSMS(call, task); got != tc.want {
			t.Errorf("%s: FormatSMS() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestFormatSMS_NilCall(t *testing.T) {
	t.Parallel()

	task := testTask(callstore.PriorityUrgent)
	want := "New urgent callback: Maria Garcia +15559876543 - Callback requested"
	if got := notify.FormatSMS(nil, task); got != want {
		t.Errorf("FormatSMS(nil, task) = %q, want %q", got, want)
	}
}

func TestFormatEmailSubject(t *testing.T) {
	t.Parallel()

	task := testTask(callstore.PriorityHigh)
	if got := notify.FormatEmailSubject(task); got != "[HIGH] New Callback: Maria Garcia" {
		t.Errorf("FormatEmailSubject() = %q", got)
	}

	task.Name = "  "
	task.Priority = callstore.PriorityNormal
	if got := notify.FormatEmailSubject(task); got != "[NORMAL] New Callback: Unknown Caller" {
		t.Errorf("FormatEmailSubject() fallback = %q", got)
	}
}

func TestFormatEmailBody(t *testing.T) {
	t.Parallel()

	call := testCall()
	call.Summary = "Caller wants a hail damage claim callback."
	task := testTask(callstore.PriorityUrgent)

	html, text := notify.FormatEmailBody(call, task, "https://app.agency.example/transcripts/")

	for _, want := range []string{
		"Maria Garcia",
		"+15559876543",
		"mañana por la mañana",
		"Spanish",
		"prefers Spanish",
		"Hail damage claim",
		"hail damage claim callback",
		"https://app.agency.example/transcripts/CA-test-1",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q", want)
		}
	}
	if !strings.Contains(strings.ToLower(html), "tel:%2b15559876543") {
		t.Errorf("HTML missing tel link:\n%s", html)
	}
}

func TestFormatEmailBody_Fallbacks(t *testing.T) {
	t.Parallel()

	call := testCall()
	call.Language = types.LanguageUnknown
	call.Intent = ""
	task := testTask(callstore.PriorityNormal)
	task.Name = ""
	task.BestTimeWindow = ""

	html, text := notify.FormatEmailBody(call, task, "")

	for _, want := range []string{"Unknown Caller", "Any time"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing fallback %q", want)
		}
		if !strings.Contains(text, want) {
			t.Errorf("text missing fallback %q", want)
		}
	}
	if !strings.Contains(html, "<td>Unknown</td>") {
		t.Error("HTML missing language fallback row")
	}
	if !strings.Contains(text, "Language:  Unknown") {
		t.Error("text missing language fallback line")
	}
	if strings.Contains(html, "Intent") || strings.Contains(html, "Call Summary") {
		t.Error("HTML renders empty optional blocks")
	}
	if strings.Contains(html, "View full transcript") || strings.Contains(text, "Transcript:") {
		t.Error("transcript link rendered without a base URL")
	}
}

// TestFormatEmailBody_EscapesHTML keeps caller-supplied text inert in the
// HTML variant.
func TestFormatEmailBody_EscapesHTML(t *testing.T) {
	t.Parallel()

	call := testCall()
	call.Intent = `<script>alert("x")</script>`
	task := testTask(callstore.PriorityUrgent)
	task.Name = "Bob <b>Bold</b>"

	html, _ := notify.FormatEmailBody(call, task, "")

	if strings.Contains(html, "<script>") || strings.Contains(html, "<b>Bold</b>") {
		t.Errorf("HTML contains unescaped caller input:\n%s", html)
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Errorf("HTML missing escaped intent:\n%s", html)
	}
}
