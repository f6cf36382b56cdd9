package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/caffeineduck/goviz/viz"
)

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

type renderKey struct {
	Text    *string           `json:"text,omitempty"`
	Graph   *viz.Graph        `json:"graph,omitempty"`
	Formats []string          `json:"formats"`
	Options viz.RenderOptions `json:"options"`
}

// Key derives the cache key of a render. Attribute maps are encoded with
// sorted keys, so equal requests map to equal keys.
func Key(in viz.Input, formats []string, opts viz.RenderOptions) (string, error) {
	k := renderKey{Formats: formats, Options: opts}
	switch in := in.(type) {
	case viz.Text:
		s := string(in)
		k.Text = &s
	case *viz.Graph:
		if in == nil {
			return "", viz.ErrInvalidInput
		}
		k.Graph = in
	default:
		return "", viz.ErrInvalidInput
	}

	data, err := json.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("encode render key: %w", err)
	}
	return "render:" + Hash(data), nil
}
