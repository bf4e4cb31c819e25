// Package chunker splits long scripts into prompt-sized segments without
// breaking sentences.
package chunker

import (
	"strings"
	"unicode"
)

// DefaultMaxChunkChars keeps one chunk comfortably inside a single
// text-generation prompt.
const DefaultMaxChunkChars = 3000

// Chunk splits script into ordered segments of at most maxChunkChars bytes.
// Sentences are never split: segments are filled greedily sentence by
// sentence, and a single sentence longer than the limit becomes its own
// oversized segment. An input already within the limit is returned as one
// segment equal to the trimmed input. Empty input yields no segments.
func Chunk(script string, maxChunkChars int) []string {
	trimmed := strings.TrimSpace(script)
	if trimmed == "" {
		return nil
	}
	if maxChunkChars <= 0 {
		maxChunkChars = DefaultMaxChunkChars
	}
	if len(trimmed) <= maxChunkChars {
		return []string{trimmed}
	}

	var chunks []string
	var cur strings.Builder
	for _, sentence := range Sentences(trimmed) {
		if cur.Len() == 0 {
			cur.WriteString(sentence)
			continue
		}
		if cur.Len()+1+len(sentence) > maxChunkChars {
			chunks = append(chunks, cur.String())
			cur.Reset()
			cur.WriteString(sentence)
			continue
		}
		cur.WriteByte(' ')
		cur.WriteString(sentence)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// Sentences splits text on sentence-terminal punctuation followed by
// whitespace. Runs of terminal punctuation ("?!", "...") stay attached to
// their sentence; trailing text without terminal punctuation is returned as
// a final sentence.
func Sentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var sentences []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i
		for end+1 < len(runes) && isTerminal(runes[end+1]) {
			end++
		}
		if end+1 < len(runes) && !unicode.IsSpace(runes[end+1]) {
			// Terminal punctuation mid-token (e.g. "3.14"): not a boundary.
			i = end
			continue
		}
		if s := strings.TrimSpace(string(runes[start : end+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = end + 1
		i = end
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}
