package twiml_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/vocepta/internal/twiml"
)

// TestRender_Prolog verifies that every document starts with the XML prolog
// and a Response root, even when empty.
func TestRender_Prolog(t *testing.T) {
	out, err := twiml.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	got := string(out)
	if !strings.HasPrefix(got, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Errorf("document missing prolog: %q", got)
	}
	if !strings.Contains(got, "<Response></Response>") {
		t.Errorf("empty document = %q, want empty <Response>", got)
	}
}

// TestRender_GreetingGather renders the bilingual greeting document and
// checks verb nesting and attributes.
func TestRender_GreetingGather(t *testing.T) {
	out, err := twiml.Render(twiml.Gather{
		NumDigits: 1,
		Action:    "/webhooks/twilio/language-select",
		Input:     "dtmf",
		Timeout:   5,
		Verbs: []twiml.Verb{
			twiml.Say{Language: "en-US", Text: "For English, press one."},
			twiml.Say{Language: "es-MX", Text: "Para español, presione dos."},
		},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	got := string(out)
	for _, want := range []string{
		`<Gather numDigits="1" action="/webhooks/twilio/language-select" input="dtmf" timeout="5">`,
		`<Say language="en-US">For English, press one.</Say>`,
		`<Say language="es-MX">Para español, presione dos.</Say>`,
		`</Gather>`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("document missing %q:\n%s", want, got)
		}
	}
}

// TestRender_DialWithNumber verifies the nested Number element and its
// callback attributes.
func TestRender_DialWithNumber(t *testing.T) {
	out, err := twiml.Render(twiml.Dial{
		Timeout:  20,
		CallerID: "+15550001111",
		Action:   "/webhooks/twilio/transfer-status",
		Number: &twiml.Number{
			StatusCallback:      "/webhooks/twilio/status",
			StatusCallbackEvent: "initiated ringing answered completed",
			Value:               "+15551234567",
		},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	got := string(out)
	for _, want := range []string{
		`<Dial timeout="20" callerId="+15550001111" action="/webhooks/twilio/transfer-status">`,
		`<Number statusCallback="/webhooks/twilio/status" statusCallbackEvent="initiated ringing answered completed">+15551234567</Number>`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("document missing %q:\n%s", want, got)
		}
	}
}

// TestRender_EscapesText verifies that caller-derived text cannot break the
// document.
func TestRender_EscapesText(t *testing.T) {
	out, err := twiml.Render(twiml.Say{Text: `Tom & Jerry say "<hi>"`})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	got := string(out)
	if strings.Contains(got, "<hi>") {
		t.Errorf("text not escaped: %q", got)
	}
	if !strings.Contains(got, "Tom &amp; Jerry") {
		t.Errorf("ampersand not escaped: %q", got)
	}
}

// TestRender_RemainingVerbs covers Play, Record, Redirect and Hangup.
func TestRender_RemainingVerbs(t *testing.T) {
	out, err := twiml.Render(
		twiml.Play{URL: "https://static.example.com/hold.mp3", Loop: 2},
		twiml.Record{Action: "/webhooks/twilio/recording", MaxLength: 120, PlayBeep: true},
		twiml.Redirect{URL: "/webhooks/twilio/voice"},
		twiml.Hangup{},
	)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	got := string(out)
	for _, want := range []string{
		`<Play loop="2">https://static.example.com/hold.mp3</Play>`,
		`<Record action="/webhooks/twilio/recording" maxLength="120" playBeep="true" transcribe="false">`,
		`<Redirect>/webhooks/twilio/voice</Redirect>`,
		`<Hangup>`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("document missing %q:\n%s", want, got)
		}
	}
}
