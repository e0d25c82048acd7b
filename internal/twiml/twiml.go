// Package twiml renders the dialogue-control XML documents the telephony
// provider consumes.
//
// The vocabulary is a small, fixed set of verbs modeled as structs and
// marshaled with encoding/xml under a <Response> root. Handlers compose
// verbs and call [Render]; there is no templating involved, and all text
// content is escaped by the encoder.
package twiml

import (
	"encoding/xml"
	"fmt"
)

// ContentType is the MIME type webhook responses carry.
const ContentType = "application/xml"

// Verb is one dialogue-control instruction. Implementations are the verb
// structs in this package; the interface exists only to type the Render
// argument list and Gather nesting.
type Verb interface {
	verb()
}

// Say speaks text to the caller using the provider's built-in TTS.
type Say struct {
	XMLName xml.Name `xml:"Say"`

	// Language is a locale tag such as "en-US" or "es-MX".
	Language string `xml:"language,attr,omitempty"`

	// Voice selects the provider voice. Empty uses the provider default.
	Voice string `xml:"voice,attr,omitempty"`

	// Text is the sentence to speak.
	Text string `xml:",chardata"`
}

// Play streams a hosted audio file to the caller.
type Play struct {
	XMLName xml.Name `xml:"Play"`

	// Loop repeats the file n times. Zero means the provider default (once).
	Loop int `xml:"loop,attr,omitempty"`

	// URL locates the audio file.
	URL string `xml:",chardata"`
}

// Gather collects DTMF digits or speech from the caller, speaking the nested
// verbs while it waits. The collected input is posted to Action.
type Gather struct {
	XMLName xml.Name `xml:"Gather"`

	// NumDigits stops gathering after this many digits.
	NumDigits int `xml:"numDigits,attr,omitempty"`

	// Action is the URL the provider posts the result to.
	Action string `xml:"action,attr,omitempty"`

	// Input selects the accepted channels: "dtmf", "speech" or "dtmf speech".
	Input string `xml:"input,attr,omitempty"`

	// Timeout is the seconds of silence before the gather gives up.
	Timeout int `xml:"timeout,attr,omitempty"`

	// SpeechTimeout tunes end-of-speech detection ("auto" or seconds).
	SpeechTimeout string `xml:"speechTimeout,attr,omitempty"`

	// Hints lists phrases the speech recognizer should prefer.
	Hints string `xml:"hints,attr,omitempty"`

	// Language is the locale used for speech recognition.
	Language string `xml:"language,attr,omitempty"`

	// Verbs are spoken/played while waiting for input. Say and Play only.
	Verbs []Verb
}

// Dial bridges the caller to another number. When the dial outcome matters,
// set Action to receive the status callback.
type Dial struct {
	XMLName xml.Name `xml:"Dial"`

	// Timeout is the seconds to wait for the callee to pick up.
	Timeout int `xml:"timeout,attr,omitempty"`

	// CallerID overrides the number presented to the callee.
	CallerID string `xml:"callerId,attr,omitempty"`

	// Record enables call recording ("record-from-answer", ...).
	Record string `xml:"record,attr,omitempty"`

	// Action receives the DialCallStatus post when the dial completes.
	Action string `xml:"action,attr,omitempty"`

	// RingTone selects the ringback tone country.
	RingTone string `xml:"ringTone,attr,omitempty"`

	// Number is the callee. Optional; a bare Dial with no Number is invalid
	// at the provider but this package does not enforce it.
	Number *Number
}

// Number is the callee inside a [Dial], with optional status callbacks.
type Number struct {
	XMLName xml.Name `xml:"Number"`

	// StatusCallback is the URL that receives per-leg status events.
	StatusCallback string `xml:"statusCallback,attr,omitempty"`

	// StatusCallbackEvent lists the events to deliver, space-separated.
	StatusCallbackEvent string `xml:"statusCallbackEvent,attr,omitempty"`

	// Value is the E.164 number to dial.
	Value string `xml:",chardata"`
}

// Record captures the caller's audio and posts the recording to Action.
type Record struct {
	XMLName xml.Name `xml:"Record"`

	// Action receives the recording metadata post.
	Action string `xml:"action,attr,omitempty"`

	// MaxLength caps the recording in seconds.
	MaxLength int `xml:"maxLength,attr,omitempty"`

	// PlayBeep plays a tone before recording starts.
	PlayBeep bool `xml:"playBeep,attr"`

	// Transcribe requests a provider-side transcription.
	Transcribe bool `xml:"transcribe,attr"`
}

// Redirect continues the call flow at another URL.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`

	// URL is where the provider fetches the next document.
	URL string `xml:",chardata"`
}

// Hangup terminates the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

func (Say) verb()      {}
func (Play) verb()     {}
func (Gather) verb()   {}
func (Dial) verb()     {}
func (Record) verb()   {}
func (Redirect) verb() {}
func (Hangup) verb()   {}

// response is the document root.
type response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []Verb
}

// Render marshals the verbs under a <Response> root with the standard XML
// prolog. An empty verb list renders a valid empty response, which is how
// status webhooks acknowledge without instructing the call.
func Render(verbs ...Verb) ([]byte, error) {
	body, err := xml.Marshal(response{Verbs: verbs})
	if err != nil {
		return nil, fmt.Errorf("twiml: render: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
