// envelope.go - Portable wire form of a proof plus its public context.
//
// The envelope is the only artifact crossing the system boundary; the
// transport collaborator carries it opaquely as JSON.

package proofbackend

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// ProofBytes serializes as a base64 JSON string.
type ProofBytes []byte

// MarshalJSON implements the json.Marshaler interface.
func (p ProofBytes) MarshalJSON() ([]byte, error) {
	return []byte(`"` + base64.StdEncoding.EncodeToString(p) + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (p *ProofBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string for ProofBytes")
	}
	b, err := base64.StdEncoding.DecodeString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*p = b
	return nil
}

// EnvelopeMeta carries the public context of a proof.
type EnvelopeMeta struct {
	Context   string    `json:"context"`
	Epoch     uint64    `json:"epoch"`
	CreatedAt time.Time `json:"created_at"`
}

// Envelope is the serialized proof wire format.
type Envelope struct {
	CircuitID    string         `json:"circuit_id"`
	Backend      string         `json:"backend"`
	PublicInputs map[string]any `json:"public_inputs"`
	Proof        ProofBytes     `json:"proof"`
	Meta         EnvelopeMeta   `json:"meta"`
}

// NewEnvelope assembles an envelope for a freshly generated proof.
func NewEnvelope(circuitID, backendTag string, publicInputs map[string]any, proof []byte, context string, epoch uint64) *Envelope {
	return &Envelope{
		CircuitID:    circuitID,
		Backend:      backendTag,
		PublicInputs: publicInputs,
		Proof:        proof,
		Meta: EnvelopeMeta{
			Context:   context,
			Epoch:     epoch,
			CreatedAt: time.Now().UTC(),
		},
	}
}

// Encode renders the envelope as JSON.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses an envelope from JSON.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("invalid proof envelope: %w", err)
	}
	return &e, nil
}

// PublicString extracts a string-typed public input by name.
func (e *Envelope) PublicString(name string) (string, error) {
	v, ok := e.PublicInputs[name]
	if !ok {
		return "", fmt.Errorf("envelope missing public input %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("envelope public input %q is not a string", name)
	}
	return s, nil
}

// PublicUint extracts an integer-typed public input by name. JSON numbers
// arrive as float64 after a decode round trip.
func (e *Envelope) PublicUint(name string) (uint64, error) {
	v, ok := e.PublicInputs[name]
	if !ok {
		return 0, fmt.Errorf("envelope missing public input %q", name)
	}
	switch n := v.(type) {
	case float64:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	case uint64:
		return n, nil
	default:
		return 0, fmt.Errorf("envelope public input %q is not numeric", name)
	}
}
