package token

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags a Wire value.
type Kind string

// Wire kinds.
const (
	KindText   Kind = "text"
	KindToken  Kind = "token"
	KindStream Kind = "stream"
)

// ErrMalformedWire is returned when a Wire value does not describe a tree.
var ErrMalformedWire = errors.New("malformed wire tree")

// Wire is the serializable form of a tree, exchanged with workers. Exactly
// one shape is valid per kind:
//
//	text:   {"kind":"text","text":"…"}
//	token:  {"kind":"token","type":"…","children":[content]}
//	stream: {"kind":"stream","children":[…]}
type Wire struct {
	Kind     Kind   `json:"kind"`
	Text     string `json:"text,omitempty"`
	Type     string `json:"type,omitempty"`
	Children []Wire `json:"children,omitempty"`
}

// Encode converts a tree to its wire form.
func Encode(n Node) Wire {
	switch v := n.(type) {
	case Text:
		return Wire{Kind: KindText, Text: string(v)}
	case Stream:
		w := Wire{Kind: KindStream, Children: make([]Wire, len(v))}
		for i, c := range v {
			w.Children[i] = Encode(c)
		}
		return w
	case *Token:
		return Wire{Kind: KindToken, Type: v.Type, Children: []Wire{Encode(v.Content)}}
	default:
		return Wire{Kind: KindStream}
	}
}

// Decode rebuilds a tree from its wire form.
func Decode(w Wire) (Node, error) {
	switch w.Kind {
	case KindText:
		if len(w.Children) > 0 {
			return nil, fmt.Errorf("%w: text with children", ErrMalformedWire)
		}
		return Text(w.Text), nil
	case KindStream:
		s := make(Stream, 0, len(w.Children))
		for i, c := range w.Children {
			n, err := Decode(c)
			if err != nil {
				return nil, fmt.Errorf("stream[%d]: %w", i, err)
			}
			if _, nested := n.(Stream); nested {
				return nil, fmt.Errorf("%w: stream directly inside stream", ErrMalformedWire)
			}
			s = append(s, n)
		}
		return s, nil
	case KindToken:
		if w.Type == "" {
			return nil, fmt.Errorf("%w: token without type", ErrMalformedWire)
		}
		if len(w.Children) != 1 {
			return nil, fmt.Errorf("%w: token %q has %d contents", ErrMalformedWire, w.Type, len(w.Children))
		}
		content, err := Decode(w.Children[0])
		if err != nil {
			return nil, fmt.Errorf("token %q: %w", w.Type, err)
		}
		if _, isTok := content.(*Token); isTok {
			return nil, fmt.Errorf("%w: token %q content must be text or stream", ErrMalformedWire, w.Type)
		}
		return &Token{Type: w.Type, Content: content}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedWire, w.Kind)
	}
}

// DecodeStream decodes w and requires the result to be a stream.
func DecodeStream(w Wire) (Stream, error) {
	n, err := Decode(w)
	if err != nil {
		return nil, err
	}
	s, ok := n.(Stream)
	if !ok {
		return nil, fmt.Errorf("%w: top level is %s, want stream", ErrMalformedWire, w.Kind)
	}
	return s, nil
}

// Marshal serializes a tree to JSON.
func Marshal(n Node) ([]byte, error) {
	return json.Marshal(Encode(n))
}

// Unmarshal parses JSON produced by Marshal.
func Unmarshal(data []byte) (Node, error) {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal tree: %w", err)
	}
	return Decode(w)
}
