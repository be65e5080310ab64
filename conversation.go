package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleUnknown   Role = "unknown"
)

// Source records which extractor produced a conversation.
type Source string

const (
	SourceStructured Source = "structured"
	SourceHeuristic  Source = "heuristic"
)

// MessageNode is one entry of a conversation mapping.
type MessageNode struct {
	ID string
	// HasMessage is false for mapping entries without a message body, such as
	// the root of a structured conversation tree.
	HasMessage bool
	Role       Role
	Parts      []string
	CreateTime float64
	Parent     *string
	Children   []string
}

// Body joins the content parts.
func (n *MessageNode) Body() string {
	return strings.Join(n.Parts, "\n")
}

func (n *MessageNode) renderable() bool {
	if !n.HasMessage {
		return false
	}
	for _, p := range n.Parts {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

// Conversation is the canonical form both extractors normalize into. It is
// built once per invocation and not modified afterwards.
type Conversation struct {
	Title      string
	CreateTime *float64
	UpdateTime *float64
	Mapping    *orderedmap.OrderedMap[string, *MessageNode]
	Source     Source

	// raw is the structured payload exactly as found on the page.
	raw json.RawMessage
}

// Chain returns the renderable messages ordered by creation time. Ties keep
// mapping order.
func (c *Conversation) Chain() []*MessageNode {
	if c.Mapping == nil {
		return nil
	}
	var chain []*MessageNode
	for pair := c.Mapping.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.renderable() {
			chain = append(chain, pair.Value)
		}
	}
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].CreateTime < chain[j].CreateTime
	})
	return chain
}

// NodeCount is the number of mapping entries, renderable or not.
func (c *Conversation) NodeCount() int {
	if c.Mapping == nil {
		return 0
	}
	return c.Mapping.Len()
}

// MarshalJSON writes the structured payload verbatim, or the heuristic
// conversation in the same wire shape.
func (c *Conversation) MarshalJSON() ([]byte, error) {
	if c.raw != nil {
		return c.raw, nil
	}
	return json.Marshal(c.wire())
}

// wire types mirror the page's "conversation" object.

type wireConversation struct {
	Title      *string                                  `json:"title,omitempty"`
	CreateTime *float64                                 `json:"create_time,omitempty"`
	UpdateTime *float64                                 `json:"update_time,omitempty"`
	Mapping    *orderedmap.OrderedMap[string, wireNode] `json:"mapping"`
}

type wireNode struct {
	ID       string       `json:"id"`
	Message  *wireMessage `json:"message"`
	Parent   *string      `json:"parent"`
	Children []string     `json:"children"`
}

type wireMessage struct {
	ID         string       `json:"id"`
	Author     *wireAuthor  `json:"author,omitempty"`
	Content    *wireContent `json:"content,omitempty"`
	CreateTime *float64     `json:"create_time"`
}

type wireAuthor struct {
	Role string `json:"role"`
}

type wireContent struct {
	ContentType string `json:"content_type"`
	Parts       []any  `json:"parts"`
}

func (c *Conversation) wire() wireConversation {
	w := wireConversation{
		CreateTime: c.CreateTime,
		UpdateTime: c.UpdateTime,
		Mapping:    orderedmap.New[string, wireNode](),
	}
	if c.Title != "" {
		title := c.Title
		w.Title = &title
	}
	if c.Mapping == nil {
		return w
	}
	for pair := c.Mapping.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		node := wireNode{ID: n.ID, Parent: n.Parent, Children: n.Children}
		if node.Children == nil {
			node.Children = []string{}
		}
		if n.HasMessage {
			parts := make([]any, len(n.Parts))
			for i, p := range n.Parts {
				parts[i] = p
			}
			created := n.CreateTime
			node.Message = &wireMessage{
				ID:         n.ID,
				Author:     &wireAuthor{Role: string(n.Role)},
				Content:    &wireContent{ContentType: "text", Parts: parts},
				CreateTime: &created,
			}
		}
		w.Mapping.Set(pair.Key, node)
	}
	return w
}

type extractionKind int

const (
	extractedStructured extractionKind = iota + 1
	extractedHeuristic
)

// extraction is what either extractor hands to the normalizer.
type extraction struct {
	kind       extractionKind
	raw        json.RawMessage // structured
	title      string          // heuristic
	candidates []candidate     // heuristic
}

var errEmptyExtraction = errors.New("extraction produced no conversation")

func (e extraction) normalize(now time.Time) (*Conversation, error) {
	switch e.kind {
	case extractedStructured:
		return conversationFromPayload(e.raw)
	case extractedHeuristic:
		if len(e.candidates) == 0 {
			return nil, errEmptyExtraction
		}
		return conversationFromCandidates(e.title, e.candidates, now), nil
	default:
		return nil, errEmptyExtraction
	}
}

// conversationFromPayload decodes a structured payload. The payload itself is
// kept untouched for JSON output.
func conversationFromPayload(raw json.RawMessage) (*Conversation, error) {
	var w wireConversation
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode conversation payload: %w", err)
	}

	conv := &Conversation{
		CreateTime: w.CreateTime,
		UpdateTime: w.UpdateTime,
		Mapping:    orderedmap.New[string, *MessageNode](),
		Source:     SourceStructured,
		raw:        raw,
	}
	if w.Title != nil {
		conv.Title = *w.Title
	}
	if w.Mapping == nil {
		return conv, nil
	}

	for pair := w.Mapping.Oldest(); pair != nil; pair = pair.Next() {
		wn := pair.Value
		node := &MessageNode{
			ID:       pair.Key,
			Role:     RoleUnknown,
			Parent:   wn.Parent,
			Children: wn.Children,
		}
		if m := wn.Message; m != nil && m.Content != nil && m.Content.Parts != nil {
			node.HasMessage = true
			if m.Author != nil && m.Author.Role != "" {
				node.Role = Role(m.Author.Role)
			}
			if m.CreateTime != nil {
				node.CreateTime = *m.CreateTime
			}
			for _, p := range m.Content.Parts {
				// non-text parts (images, attachments) carry no transcript text
				if s, ok := p.(string); ok {
					node.Parts = append(node.Parts, s)
				}
			}
		}
		conv.Mapping.Set(pair.Key, node)
	}
	dropDanglingLinks(conv.Mapping)
	return conv, nil
}

// dropDanglingLinks clears parent and child references to ids that are not
// in the mapping.
func dropDanglingLinks(m *orderedmap.OrderedMap[string, *MessageNode]) {
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		if n.Parent != nil {
			if _, ok := m.Get(*n.Parent); !ok {
				n.Parent = nil
			}
		}
		if len(n.Children) == 0 {
			continue
		}
		kept := n.Children[:0:0]
		for _, id := range n.Children {
			if _, ok := m.Get(id); ok {
				kept = append(kept, id)
			}
		}
		n.Children = kept
	}
}

// conversationFromCandidates links heuristic candidates into a single chain
// msg_0 -> msg_1 -> ... with creation times base, base+1, ...
func conversationFromCandidates(title string, cands []candidate, now time.Time) *Conversation {
	base := float64(now.Unix())
	conv := &Conversation{
		Title:      title,
		CreateTime: &base,
		UpdateTime: &base,
		Mapping:    orderedmap.New[string, *MessageNode](),
		Source:     SourceHeuristic,
	}
	for i, c := range cands {
		node := &MessageNode{
			ID:         heuristicNodeID(i),
			HasMessage: true,
			Role:       c.Role,
			Parts:      []string{c.Content},
			CreateTime: base + float64(i),
			Children:   []string{},
		}
		if i > 0 {
			parent := heuristicNodeID(i - 1)
			node.Parent = &parent
		}
		if i < len(cands)-1 {
			node.Children = []string{heuristicNodeID(i + 1)}
		}
		conv.Mapping.Set(node.ID, node)
	}
	return conv
}

func heuristicNodeID(i int) string {
	return fmt.Sprintf("msg_%d", i)
}
