package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of payload a message carries. The set is open:
// unknown types pass structural validation only.
type Type string

const (
	TypeGIF      Type = "gif"
	TypeResponse Type = "response"
	TypeAction   Type = "action"
	TypeSystem   Type = "system"
)

// Level is the severity of a system message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Content is the tagged union over per-type payloads. Consumers switch
// exhaustively on the concrete type.
type Content interface {
	messageType() Type
	validate() error
}

// GIFMetadata describes an encoded clip.
type GIFMetadata struct {
	FrameCount int     `json:"frame_count"`
	Duration   float64 `json:"duration"` // seconds of gameplay covered
	Size       int     `json:"size"`     // encoded bytes
	Timestamp  float64 `json:"timestamp"`
}

// GIFContent carries an encoded clip, or reports that none was available.
type GIFContent struct {
	Data      []byte      `json:"data,omitempty"` // base64 in JSON
	Metadata  GIFMetadata `json:"metadata"`
	Available bool        `json:"available"`
}

func (GIFContent) messageType() Type { return TypeGIF }

func (c GIFContent) validate() error {
	if c.Available && len(c.Data) == 0 {
		return fmt.Errorf("gif marked available but has no data")
	}
	if c.Available && c.Metadata.FrameCount <= 0 {
		return fmt.Errorf("gif metadata frame_count must be positive, got %d", c.Metadata.FrameCount)
	}
	return nil
}

// ResponseContent carries the decision engine's textual output.
type ResponseContent struct {
	Text           string  `json:"text"`
	Reasoning      string  `json:"reasoning,omitempty"`
	ProcessingTime float64 `json:"processing_time,omitempty"` // seconds
	Confidence     float64 `json:"confidence"`
}

func (ResponseContent) messageType() Type { return TypeResponse }

func (c ResponseContent) validate() error {
	if c.Text == "" {
		return fmt.Errorf("response text is empty")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("response confidence %v outside [0,1]", c.Confidence)
	}
	return nil
}

// ActionContent carries a button press sequence. Buttons and Durations are
// parallel slices and must be the same length.
type ActionContent struct {
	Buttons     []string  `json:"buttons"`
	ButtonNames []string  `json:"button_names"`
	Durations   []float64 `json:"durations"` // seconds per press
}

func (ActionContent) messageType() Type { return TypeAction }

func (c ActionContent) validate() error {
	if len(c.Buttons) == 0 {
		return fmt.Errorf("action has no buttons")
	}
	if len(c.Buttons) != len(c.Durations) {
		return fmt.Errorf("action buttons/durations length mismatch: %d vs %d",
			len(c.Buttons), len(c.Durations))
	}
	if len(c.ButtonNames) != len(c.Buttons) {
		return fmt.Errorf("action button_names length mismatch: %d vs %d",
			len(c.ButtonNames), len(c.Buttons))
	}
	for i, d := range c.Durations {
		if d <= 0 {
			return fmt.Errorf("action duration[%d] must be positive, got %v", i, d)
		}
	}
	return nil
}

// SystemContent carries an operational notice.
type SystemContent struct {
	Message string `json:"message"`
	Level   Level  `json:"level"`
}

func (SystemContent) messageType() Type { return TypeSystem }

func (c SystemContent) validate() error {
	if c.Message == "" {
		return fmt.Errorf("system message is empty")
	}
	switch c.Level {
	case LevelInfo, LevelWarning, LevelError:
		return nil
	default:
		return fmt.Errorf("unknown system level %q", c.Level)
	}
}

// RawContent is the payload of a message whose type the core does not
// recognize. It passes structural validation only.
type RawContent map[string]interface{}

func (RawContent) messageType() Type { return "" }
func (RawContent) validate() error   { return nil }

// Message is one unit of bus traffic, immutable after construction.
type Message struct {
	ID        string
	Type      Type
	Timestamp time.Time
	Source    string
	// Sequence is assigned by the last-mile broadcaster (the websocket
	// event bridge), never by the bus. Zero means unassigned.
	Sequence int64
	Content  Content
}

// newID builds ids of the form {type}_{millis}_{random8}: unique even for
// same-millisecond bursts.
func newID(t Type) string {
	return fmt.Sprintf("%s_%d_%s", t, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// NewMessage constructs a message of an arbitrary type. The typed
// constructors below are preferred for the known types.
func NewMessage(t Type, source string, content Content) Message {
	return Message{
		ID:        newID(t),
		Type:      t,
		Timestamp: time.Now(),
		Source:    source,
		Content:   content,
	}
}

// NewGIF constructs a gif message for an available clip.
func NewGIF(source string, data []byte, meta GIFMetadata) Message {
	return NewMessage(TypeGIF, source, GIFContent{Data: data, Metadata: meta, Available: true})
}

// NewGIFUnavailable constructs a gif message reporting that no clip could
// be produced.
func NewGIFUnavailable(source string) Message {
	return NewMessage(TypeGIF, source, GIFContent{Available: false})
}

// NewResponse constructs a response message.
func NewResponse(source, text, reasoning string, processingTime, confidence float64) Message {
	return NewMessage(TypeResponse, source, ResponseContent{
		Text:           text,
		Reasoning:      reasoning,
		ProcessingTime: processingTime,
		Confidence:     confidence,
	})
}

// NewAction constructs an action message. If names is nil the button
// identifiers double as display names.
func NewAction(source string, buttons, names []string, durations []float64) Message {
	if names == nil {
		names = append([]string(nil), buttons...)
	}
	return NewMessage(TypeAction, source, ActionContent{
		Buttons:     buttons,
		ButtonNames: names,
		Durations:   durations,
	})
}

// NewSystem constructs a system message at the given level.
func NewSystem(source, text string, level Level) Message {
	return NewMessage(TypeSystem, source, SystemContent{Message: text, Level: level})
}

// WithSequence returns a copy of the message with the broadcast sequence
// number set. The original is untouched.
func (m Message) WithSequence(seq int64) Message {
	m.Sequence = seq
	return m
}

// Validate fails closed: every required field must be present, and if the
// type is one the core recognizes, the content shape must match it.
func (m Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message id is empty")
	}
	if m.Type == "" {
		return fmt.Errorf("message type is empty")
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("message timestamp is zero")
	}
	if m.Source == "" {
		return fmt.Errorf("message source is empty")
	}
	if m.Content == nil {
		return fmt.Errorf("message content is nil")
	}
	switch m.Type {
	case TypeGIF, TypeResponse, TypeAction, TypeSystem:
		if m.Content.messageType() != m.Type {
			return fmt.Errorf("content shape does not match type %q", m.Type)
		}
		return m.Content.validate()
	default:
		// Unknown type: structural checks only.
		return nil
	}
}

// --- JSON envelope ---
// {id, type, timestamp, source, sequence?, content:{...}} with epoch-second
// timestamps. GIF bytes ride base64 inside content (encoding/json default
// for []byte), so the envelope is safe for any text transport.

type envelope struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Source    string          `json:"source"`
	Sequence  int64           `json:"sequence,omitempty"`
	Content   json.RawMessage `json:"content"`
}

// MarshalJSON renders the wire envelope.
func (m Message) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(m.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal %s content: %w", m.Type, err)
	}
	return json.Marshal(envelope{
		ID:        m.ID,
		Type:      m.Type,
		Timestamp: float64(m.Timestamp.UnixNano()) / float64(time.Second),
		Source:    m.Source,
		Sequence:  m.Sequence,
		Content:   content,
	})
}

// UnmarshalJSON parses the wire envelope, decoding content into the shape
// its type demands. Unknown types land in RawContent.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	var content Content
	switch env.Type {
	case TypeGIF:
		var c GIFContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return fmt.Errorf("decode gif content: %w", err)
		}
		content = c
	case TypeResponse:
		var c ResponseContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return fmt.Errorf("decode response content: %w", err)
		}
		content = c
	case TypeAction:
		var c ActionContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return fmt.Errorf("decode action content: %w", err)
		}
		content = c
	case TypeSystem:
		var c SystemContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return fmt.Errorf("decode system content: %w", err)
		}
		content = c
	default:
		var c RawContent
		if len(env.Content) > 0 {
			if err := json.Unmarshal(env.Content, &c); err != nil {
				return fmt.Errorf("decode %q content: %w", env.Type, err)
			}
		}
		content = c
	}

	sec := int64(env.Timestamp)
	nsec := int64((env.Timestamp - float64(sec)) * float64(time.Second))
	*m = Message{
		ID:        env.ID,
		Type:      env.Type,
		Timestamp: time.Unix(sec, nsec),
		Source:    env.Source,
		Sequence:  env.Sequence,
		Content:   content,
	}
	return nil
}
