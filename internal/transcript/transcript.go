// Package transcript holds the conversation record of a call: the JSON
// document persisted on the call row, and a corrector that fixes domain
// terms the speech-to-text layer commonly mishears before the text reaches
// the language model.
//
// The document format is versioned and self-describing so the staff
// dashboard can render transcripts without consulting this code:
//
//	{
//	  "version": "1.0",
//	  "language": "en",
//	  "started_at": "2026-08-25T14:30:00Z",
//	  "turns": [
//	    {"speaker": "caller", "text": "...", "timestamp": "...",
//	     "confidence": 0.97, "duration_ms": 1800},
//	    ...
//	  ],
//	  "metadata": {"total_turns": 2, "total_duration_ms": 1800,
//	               "avg_confidence": 0.97}
//	}
//
// Metadata is recomputed on every append. The serialized document is capped
// at [MaxDocumentBytes]; once exceeded, the oldest turns are evicted first.
package transcript

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrWong99/vocepta/pkg/types"
)

// Version is the document format version written by this package.
const Version = "1.0"

// MaxDocumentBytes caps the serialized document size. Oldest turns are
// evicted once an append pushes the document past the cap.
const MaxDocumentBytes = 100 * 1024

// Speaker identifies who produced a turn.
type Speaker string

const (
	// SpeakerAgent is the synthesized receptionist voice.
	SpeakerAgent Speaker = "agent"

	// SpeakerCaller is transcribed caller speech.
	SpeakerCaller Speaker = "caller"

	// SpeakerSystem is non-spoken events (transfers, timeouts, errors).
	SpeakerSystem Speaker = "system"
)

// Turn is a single utterance or event in the conversation.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	// Confidence is the STT confidence for caller turns. Absent for agent
	// and system turns.
	Confidence *float64 `json:"confidence,omitempty"`

	// DurationMS is the audio duration for spoken turns, in milliseconds.
	DurationMS *int `json:"duration_ms,omitempty"`
}

// Metadata is the aggregate block recomputed on every append.
type Metadata struct {
	TotalTurns      int     `json:"total_turns"`
	TotalDurationMS int     `json:"total_duration_ms"`
	AvgConfidence   float64 `json:"avg_confidence"`
}

// Document is the persisted transcript of one call.
//
// A Document is not safe for concurrent use; the owning session serializes
// access to it.
type Document struct {
	Version   string         `json:"version"`
	Language  types.Language `json:"language"`
	StartedAt time.Time      `json:"started_at"`
	Turns     []Turn         `json:"turns"`
	Metadata  Metadata       `json:"metadata"`
}

// New returns an empty document for a call in the given language. The
// language may be empty until the caller has chosen one; set it later via
// the exported field.
func New(lang types.Language) *Document {
	return &Document{
		Version:   Version,
		Language:  lang,
		StartedAt: time.Now().UTC(),
		Turns:     []Turn{},
	}
}

// Append adds a turn, stamps it if unstamped, recomputes metadata and
// enforces the size cap.
func (d *Document) Append(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	d.Turns = append(d.Turns, t)
	d.recompute()
	d.evict()
}

// AppendCaller records transcribed caller speech with its STT confidence
// and audio duration.
func (d *Document) AppendCaller(text string, confidence float64, duration time.Duration) {
	ms := int(duration.Milliseconds())
	d.Append(Turn{
		Speaker:    SpeakerCaller,
		Text:       text,
		Confidence: &confidence,
		DurationMS: &ms,
	})
}

// AppendAgent records a synthesized receptionist line.
func (d *Document) AppendAgent(text string) {
	d.Append(Turn{Speaker: SpeakerAgent, Text: text})
}

// AppendSystem records a non-spoken event.
func (d *Document) AppendSystem(text string) {
	d.Append(Turn{Speaker: SpeakerSystem, Text: text})
}

// recompute rebuilds the metadata block from the turns.
func (d *Document) recompute() {
	md := Metadata{TotalTurns: len(d.Turns)}
	var confSum float64
	var confN int
	for _, t := range d.Turns {
		if t.DurationMS != nil {
			md.TotalDurationMS += *t.DurationMS
		}
		if t.Confidence != nil {
			confSum += *t.Confidence
			confN++
		}
	}
	if confN > 0 {
		md.AvgConfidence = confSum / float64(confN)
	}
	d.Metadata = md
}

// evict drops the oldest turns until the serialized document fits the cap.
// The most recent turn is always kept.
func (d *Document) evict() {
	for len(d.Turns) > 1 {
		raw, err := json.Marshal(d)
		if err != nil || len(raw) <= MaxDocumentBytes {
			return
		}
		d.Turns = d.Turns[1:]
		d.recompute()
	}
}

// JSON serializes the document for persistence.
func (d *Document) JSON() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("transcript: marshal: %w", err)
	}
	return raw, nil
}

// Parse reads a persisted document. Metadata is recomputed from the turns
// so that serialize/parse/serialize is a fixed point even for documents
// written by other tooling. A missing version defaults to [Version].
func Parse(raw []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("transcript: parse: %w", err)
	}
	if d.Version == "" {
		d.Version = Version
	}
	if d.Turns == nil {
		d.Turns = []Turn{}
	}
	d.recompute()
	return &d, nil
}
