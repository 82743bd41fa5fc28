// Package omf builds and sends OSIsoft Message Format messages to the PI Web
// API omf endpoint.
package omf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pideploy/pideploy/internal/piwebapi"
)

// Version is the OMF version sent in the omfversion header.
const Version = "1.1"

// MessageType is the value of the messagetype header.
type MessageType string

const (
	TypeMessage      MessageType = "type"
	ContainerMessage MessageType = "container"
	DataMessage      MessageType = "data"
)

// Action is the value of the action header.
type Action string

const (
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

var (
	// ErrNoOperationID is returned when the endpoint accepts a message
	// without reporting an operation id.
	ErrNoOperationID = errors.New("OperationId not returned in OMF response")
	// ErrUnknownMessageType is returned for a message type with no schema.
	ErrUnknownMessageType = errors.New("unknown OMF message type")
	// ErrInvalidMessage is returned when a message fails schema validation.
	ErrInvalidMessage = errors.New("invalid OMF message")
)

// Headers returns the header set for a message.
func Headers(t MessageType, a Action) map[string]string {
	return map[string]string{
		"messagetype":   string(t),
		"messageformat": "json",
		"omfversion":    Version,
		"action":        string(a),
	}
}

// Property describes one property of a type.
type Property struct {
	Type    string `json:"type"`
	Format  string `json:"format,omitempty"`
	IsIndex bool   `json:"isindex,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Type is an OMF type definition.
type Type struct {
	ID             string              `json:"id"`
	Version        string              `json:"version,omitempty"`
	Type           string              `json:"type"`
	Classification string              `json:"classification"`
	Properties     map[string]Property `json:"properties"`
}

// Container is a stream of values of one type.
type Container struct {
	ID          string   `json:"id"`
	TypeID      string   `json:"typeid"`
	TypeVersion string   `json:"typeVersion,omitempty"`
	Indexes     []string `json:"indexes,omitempty"`
}

// Data carries values for a container.
type Data struct {
	ContainerID string                   `json:"containerid"`
	Values      []map[string]interface{} `json:"values"`
}

// Message is a typed OMF body.
type Message struct {
	Type MessageType
	Body interface{}
}

// Encode marshals the message body.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m.Body)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type, err)
	}
	return data, nil
}

// Sender posts a raw message to the omf endpoint.
type Sender interface {
	OMF(ctx context.Context, headers map[string]string, body []byte) (*piwebapi.OMFResponse, error)
}

// Publisher validates and sends messages.
type Publisher struct {
	sender    Sender
	validator *Validator
}

// NewPublisher creates a Publisher. A nil validator uses the embedded schemas.
func NewPublisher(sender Sender, validator *Validator) *Publisher {
	if validator == nil {
		validator = NewValidator()
	}
	return &Publisher{sender: sender, validator: validator}
}

// Send validates msg and posts it with action, returning the operation id.
func (p *Publisher) Send(ctx context.Context, msg Message, action Action) (string, error) {
	body, err := msg.Encode()
	if err != nil {
		return "", err
	}
	if err := p.validator.ValidateBytes(msg.Type, body); err != nil {
		return "", err
	}

	resp, err := p.sender.OMF(ctx, Headers(msg.Type, action), body)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", action, msg.Type, err)
	}
	if resp.OperationID == "" {
		return "", fmt.Errorf("%s %s: %w", action, msg.Type, ErrNoOperationID)
	}
	return resp.OperationID, nil
}

// TankSample is the tank measurement type, container and value used to
// verify an OMF endpoint.
type TankSample struct {
	TypeID      string
	ContainerID string
	Time        time.Time
	Pressure    float64
	Temperature float64
}

// NewTankSample names the sample with suffix so repeated runs do not collide.
func NewTankSample(suffix string, at time.Time) TankSample {
	return TankSample{
		TypeID:      "TankMeasurement" + suffix,
		ContainerID: "Tank1Measurements" + suffix,
		Time:        at.UTC(),
		Pressure:    11.5,
		Temperature: 101,
	}
}

// Type returns the type message.
func (s TankSample) Type() Message {
	return Message{Type: TypeMessage, Body: []Type{{
		ID:             s.TypeID,
		Version:        "1.0.0.0",
		Type:           "object",
		Classification: "dynamic",
		Properties: map[string]Property{
			"Time":        {Type: "string", Format: "date-time", IsIndex: true},
			"Pressure":    {Type: "number", Name: "Tank Pressure"},
			"Temperature": {Type: "number", Name: "Tank Temperature"},
		},
	}}}
}

// Container returns the container message.
func (s TankSample) Container() Message {
	return Message{Type: ContainerMessage, Body: []Container{{
		ID:          s.ContainerID,
		TypeID:      s.TypeID,
		TypeVersion: "1.0.0.0",
		Indexes:     []string{"Pressure"},
	}}}
}

// Data returns the data message.
func (s TankSample) Data() Message {
	return Message{Type: DataMessage, Body: []Data{{
		ContainerID: s.ContainerID,
		Values: []map[string]interface{}{{
			"Time":        s.Time.Format("2006-01-02T15:04:05.000Z07:00"),
			"Pressure":    s.Pressure,
			"Temperature": s.Temperature,
		}},
	}}}
}

// Create returns the messages in creation order.
func (s TankSample) Create() []Message {
	return []Message{s.Type(), s.Container(), s.Data()}
}

// Delete returns the messages in deletion order.
func (s TankSample) Delete() []Message {
	return []Message{s.Data(), s.Container(), s.Type()}
}

// Points returns the PI point names the container maps to.
func (s TankSample) Points() []string {
	return []string{s.ContainerID + ".Pressure", s.ContainerID + ".Temperature"}
}
