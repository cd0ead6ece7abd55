package domain

import "strings"

// PromptContentKind tags the shape of a prompt message's content.
type PromptContentKind int

const (
	// ContentText is a bare string.
	ContentText PromptContentKind = iota
	// ContentSingle is one text-bearing item.
	ContentSingle
	// ContentMany is an ordered sequence of text-bearing items.
	ContentMany
)

// PromptContent models the three content shapes a prompt message may
// carry on the wire: a plain string, a single text-bearing object, or a
// sequence of such objects.
type PromptContent struct {
	Kind  PromptContentKind
	Value string
	Item  ContentFragment
	Items []ContentFragment
}

// TextPromptContent wraps a plain string.
func TextPromptContent(s string) PromptContent {
	return PromptContent{Kind: ContentText, Value: s}
}

// SinglePromptContent wraps one text-bearing item.
func SinglePromptContent(item ContentFragment) PromptContent {
	return PromptContent{Kind: ContentSingle, Item: item}
}

// ManyPromptContent wraps an ordered sequence of text-bearing items.
func ManyPromptContent(items []ContentFragment) PromptContent {
	return PromptContent{Kind: ContentMany, Items: items}
}

// Text extracts the textual content. Sequences are joined with single
// spaces in order.
func (c PromptContent) Text() string {
	switch c.Kind {
	case ContentText:
		return c.Value
	case ContentSingle:
		return c.Item.Text
	case ContentMany:
		parts := make([]string, 0, len(c.Items))
		for _, item := range c.Items {
			parts = append(parts, item.Text)
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
