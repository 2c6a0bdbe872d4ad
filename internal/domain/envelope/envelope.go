// Package envelope implements AIXP, the versioned packet exchanged between
// agents and between host platforms.
//
// Validation is strict about the envelope and permissive about the payload:
// a packet is valid when its required fields are present, its version is the
// supported one and its type is known. Payload shape is a per-type convention
// that readers access through tolerant accessors.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Version is the only protocol version this build speaks.
const Version = "1.0"

var ErrInvalid = errors.New("invalid envelope")

type Type string

const (
	TypeFriendRequest Type = "friend_request"
	TypeFriendAccept  Type = "friend_accept"
	TypeFriendReject  Type = "friend_reject"
	TypeChatMessage   Type = "chat_message"
	TypeGroupMessage  Type = "group_message"
	TypeTaskDelegate  Type = "task_delegate"
	TypeTaskResult    Type = "task_result"
	TypeResourceShare Type = "resource_share"
	TypePresence      Type = "presence"
	TypeAck           Type = "ack"
)

// Types lists every message type in protocol order.
var Types = []Type{
	TypeFriendRequest, TypeFriendAccept, TypeFriendReject,
	TypeChatMessage, TypeGroupMessage,
	TypeTaskDelegate, TypeTaskResult,
	TypeResourceShare, TypePresence, TypeAck,
}

func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

type ContentType string

const (
	ContentText               ContentType = "text"
	ContentJSON               ContentType = "json"
	ContentFile               ContentType = "file"
	ContentTask               ContentType = "task"
	ContentCapabilityQuery    ContentType = "capability_query"
	ContentCapabilityResponse ContentType = "capability_response"
)

var ContentTypes = []ContentType{
	ContentText, ContentJSON, ContentFile, ContentTask,
	ContentCapabilityQuery, ContentCapabilityResponse,
}

func (c ContentType) Valid() bool {
	for _, known := range ContentTypes {
		if c == known {
			return true
		}
	}
	return false
}

// Payload is an open structured value. Readers must tolerate missing keys.
type Payload map[string]any

// Timestamp is kept as the sender wrote it. Peers stamp zone-less local times
// or epoch milliseconds, neither of which may fail a decode.
type Timestamp string

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*ts = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*ts = Timestamp(s)
		return nil
	}
	*ts = Timestamp(data)
	return nil
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"}

// Time interprets the stamp. Zone-less layouts are read as UTC.
func (ts Timestamp) Time() (time.Time, bool) {
	s := string(ts)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// Packet is immutable once built; builders return values, never pointers.
type Packet struct {
	ProtocolVersion string      `json:"protocolVersion"`
	ID              string      `json:"id"`
	Type            Type        `json:"type"`
	From            string      `json:"from"`
	To              string      `json:"to"`
	Content         string      `json:"content"`
	ContentType     ContentType `json:"contentType"`
	Payload         Payload     `json:"payload"`
	Timestamp       Timestamp   `json:"timestamp"`
}

// Build stamps version, id and timestamp. An empty contentType becomes text and
// a nil payload becomes an empty map.
func Build(t Type, from, to, content string, contentType ContentType, payload Payload) Packet {
	if contentType == "" {
		contentType = ContentText
	}
	if payload == nil {
		payload = Payload{}
	}
	return Packet{
		ProtocolVersion: Version,
		ID:              uuid.NewString(),
		Type:            t,
		From:            from,
		To:              to,
		Content:         content,
		ContentType:     contentType,
		Payload:         payload,
		Timestamp:       Timestamp(time.Now().UTC().Format(time.RFC3339Nano)),
	}
}

// Result reports whether a packet is acceptable and, if not, why.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, r.Reason)
}

func invalid(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks required fields, then version, then type. Nothing else is
// inspected.
func Validate(p Packet) Result {
	switch {
	case p.ProtocolVersion == "":
		return invalid("missing required field: protocolVersion")
	case p.Type == "":
		return invalid("missing required field: type")
	case p.From == "":
		return invalid("missing required field: from")
	case p.To == "":
		return invalid("missing required field: to")
	}
	if p.ProtocolVersion != Version {
		return invalid("unsupported protocol version %q (supported: %s)", p.ProtocolVersion, Version)
	}
	if !p.Type.Valid() {
		return invalid("unknown message type %q", p.Type)
	}
	return Result{Valid: true}
}

// Decode parses a wire packet without validating it.
func Decode(data []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return p, nil
}

// Protocol describes the supported version and enumerations.
type Protocol struct {
	Version      string        `json:"version"`
	Types        []Type        `json:"messageTypes"`
	ContentTypes []ContentType `json:"contentTypes"`
}

func Describe() Protocol {
	return Protocol{Version: Version, Types: Types, ContentTypes: ContentTypes}
}
