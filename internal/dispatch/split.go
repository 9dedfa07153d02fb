// ABOUTME: Splits long replies into transport-sized chunks
// ABOUTME: Chunks concatenate back to the original text exactly

package dispatch

import "unicode"

const (
	// DefaultHardLimit is the transport's maximum message length in runes.
	DefaultHardLimit = 2000
	// DefaultSoftLimit is the chunk size used once a reply exceeds the hard limit.
	DefaultSoftLimit = 1900
)

// Split returns text unchanged as one chunk if it fits in hard runes.
// Otherwise it cuts chunks of at most soft runes, preferring to end a chunk
// just after a newline, then after whitespace, when one exists in the second
// half of the window. No characters are dropped or added.
func Split(text string, soft, hard int) []string {
	if soft <= 0 {
		soft = DefaultSoftLimit
	}
	if hard < soft {
		hard = soft
	}

	runes := []rune(text)
	if len(runes) <= hard {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= soft {
			chunks = append(chunks, string(runes))
			break
		}
		cut := boundary(runes[:soft])
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}

// boundary picks the cut position within window. The cut always leaves at
// least half the window in the chunk so progress is guaranteed.
func boundary(window []rune) int {
	floor := len(window) / 2
	for i := len(window) - 1; i >= floor; i-- {
		if window[i] == '\n' {
			return i + 1
		}
	}
	for i := len(window) - 1; i >= floor; i-- {
		if unicode.IsSpace(window[i]) {
			return i + 1
		}
	}
	return len(window)
}
