// json.go - Wire encodings for commitments and witnesses (hex, like the
// rest of the public surface).

package accumulator

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"privcore/internal/zkhash"
)

type commitmentJSON struct {
	Version uint64 `json:"version"`
	Root    string `json:"root"`
}

// MarshalJSON hex-encodes the root.
func (c Commitment) MarshalJSON() ([]byte, error) {
	return json.Marshal(commitmentJSON{Version: c.Version, Root: hex.EncodeToString(c.Root[:])})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Commitment) UnmarshalJSON(data []byte) error {
	var aux commitmentJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	root, err := hex.DecodeString(aux.Root)
	if err != nil || len(root) != zkhash.Size {
		return fmt.Errorf("invalid commitment root encoding")
	}
	c.Version = aux.Version
	copy(c.Root[:], root)
	return nil
}

type witnessJSON struct {
	Version uint64   `json:"version"`
	Index   int      `json:"index"`
	Path    []string `json:"path"`
}

// MarshalJSON hex-encodes the sibling path.
func (w Witness) MarshalJSON() ([]byte, error) {
	path := make([]string, Depth)
	for k := 0; k < Depth; k++ {
		path[k] = hex.EncodeToString(w.Path[k][:])
	}
	return json.Marshal(witnessJSON{Version: w.Version, Index: w.Index, Path: path})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (w *Witness) UnmarshalJSON(data []byte) error {
	var aux witnessJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Path) != Depth {
		return fmt.Errorf("invalid witness path length: got %d, want %d", len(aux.Path), Depth)
	}
	w.Version = aux.Version
	w.Index = aux.Index
	for k := 0; k < Depth; k++ {
		b, err := hex.DecodeString(aux.Path[k])
		if err != nil || len(b) != zkhash.Size {
			return fmt.Errorf("invalid witness path encoding at level %d", k)
		}
		copy(w.Path[k][:], b)
	}
	return nil
}
