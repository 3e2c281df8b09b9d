package granola

// In this file: the recursive walk over structured rich-text note trees.
// The editor stores notes as a ProseMirror-style document: container nodes
// with a "content" array, text leaves with a "text" string.

import "strings"

// treeText flattens a rich-text document node into plain text.  Top-level
// blocks are joined with newlines; leaf text within a block is
// concatenated in document order.
func treeText(node any) string {
	doc, ok := node.(map[string]any)
	if !ok {
		return ""
	}
	content, ok := doc["content"].([]any)
	if !ok {
		return leafText(doc)
	}
	var blocks []string
	for _, child := range content {
		if txt := leafText(child); txt != "" {
			blocks = append(blocks, txt)
		}
	}
	return strings.Join(blocks, "\n")
}

// leafText concatenates the text of node and all its descendants.
func leafText(node any) string {
	m, ok := node.(map[string]any)
	if !ok {
		return ""
	}
	if txt, ok := m["text"].(string); ok {
		return txt
	}
	content, ok := m["content"].([]any)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, child := range content {
		sb.WriteString(leafText(child))
	}
	return sb.String()
}
