// pkg/wire/message.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wire

import "encoding/json"

// Every frame on the wire is one JSON object per WebSocket text message,
// prefixed by a single tag byte that selects the variant:
//
//	%  AircraftUpdate
//	@  ControllerUpdate
//	*  AuthoritativeUpdate
//	$  TextMessage
//	#  ChannelMessage
//	!  KillMessage
//
// A frame with a missing or unknown tag decodes to the base
// NetworkMessage, which receivers accept and drop.

const (
	TagAircraftUpdate      = '%'
	TagControllerUpdate    = '@'
	TagAuthoritativeUpdate = '*'
	TagTextMessage         = '$'
	TagChannelMessage      = '#'
	TagKillMessage         = '!'
)

type Message interface {
	MessageTag() byte
}

// NetworkMessage is the base variant: no payload, no tag. It is what
// unknown frames decode to.
type NetworkMessage struct{}

func (NetworkMessage) MessageTag() byte      { return 0 }
func (AircraftUpdate) MessageTag() byte      { return TagAircraftUpdate }
func (ControllerUpdate) MessageTag() byte    { return TagControllerUpdate }
func (AuthoritativeUpdate) MessageTag() byte { return TagAuthoritativeUpdate }
func (TextMessage) MessageTag() byte         { return TagTextMessage }
func (ChannelMessage) MessageTag() byte      { return TagChannelMessage }
func (KillMessage) MessageTag() byte         { return TagKillMessage }

// TextMessage is a point-to-point chat frame between two identifiers.
type TextMessage struct {
	From    GUID   `json:"from"`
	To      GUID   `json:"to"`
	Message string `json:"message"`
}

// ChannelMessage is a chat frame addressed to everyone monitoring a
// frequency; its recipient identifier is derived from the frequency.
type ChannelMessage struct {
	From      GUID      `json:"from"`
	Frequency Frequency `json:"frequency"`
	Message   string    `json:"message"`
}

// To returns the derived channel identifier.
func (m ChannelMessage) To() GUID {
	return m.Frequency.GUID()
}

// Text converts the channel message to its TextMessage ancestor with the
// derived recipient filled in.
func (m ChannelMessage) Text() TextMessage {
	return TextMessage{From: m.From, To: m.To(), Message: m.Message}
}

// KillMessage asks the victim's owner to remove it from the simulation.
type KillMessage struct {
	Victim GUID `json:"victim"`
}

// AuthoritativeUpdate carries a complete controller and aircraft snapshot
// for one recipient; receivers clear their local store and repopulate.
type AuthoritativeUpdate struct {
	Recipient   GUID               `json:"recipient"`
	Controllers []ControllerUpdate `json:"controllers"`
	Aircraft    []AircraftUpdate   `json:"aircraft"`
}

// Encode serializes a message as its tag byte followed by a single JSON
// object, suitable for one WebSocket text frame.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if tag := m.MessageTag(); tag != 0 {
		return append([]byte{tag}, b...), nil
	}
	return b, nil
}

// Decode parses one frame. Unknown and missing tags yield the base
// NetworkMessage with a nil error; only malformed JSON is an error.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return NetworkMessage{}, nil
	}

	unmarshal := func(m Message) (Message, error) {
		err := json.Unmarshal(b[1:], m)
		return m, err
	}

	switch b[0] {
	case TagAircraftUpdate:
		m, err := unmarshal(&AircraftUpdate{})
		return *m.(*AircraftUpdate), err
	case TagControllerUpdate:
		m, err := unmarshal(&ControllerUpdate{})
		return *m.(*ControllerUpdate), err
	case TagAuthoritativeUpdate:
		m, err := unmarshal(&AuthoritativeUpdate{})
		return *m.(*AuthoritativeUpdate), err
	case TagTextMessage:
		m, err := unmarshal(&TextMessage{})
		return *m.(*TextMessage), err
	case TagChannelMessage:
		m, err := unmarshal(&ChannelMessage{})
		return *m.(*ChannelMessage), err
	case TagKillMessage:
		m, err := unmarshal(&KillMessage{})
		return *m.(*KillMessage), err
	default:
		// Unknown derived type: fall back to the nearest ancestor we
		// know, which is the base message.
		return NetworkMessage{}, nil
	}
}
