package extract

import "strings"

// Chunk is a contiguous slice of the narrative, cut on sentence boundaries
type Chunk struct {
	Index int    `json:"index"`
	Words int    `json:"words"`
	Text  string `json:"text"`
}

// WordCount counts whitespace-separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ChunkText groups whole sentences into chunks of at most size words.
// A sentence longer than size is split on word boundaries.
func ChunkText(text string, size int) []Chunk {
	if size <= 0 {
		size = 2000
	}

	var chunks []Chunk
	var words []string

	emit := func(n int) {
		if n == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Words: n,
			Text:  strings.Join(words[:n], " "),
		})
		words = words[n:]
	}

	for _, sentence := range SplitSentences(text) {
		fields := strings.Fields(sentence)
		if len(words) > 0 && len(words)+len(fields) > size {
			emit(len(words))
		}
		words = append(words, fields...)
		for len(words) >= size {
			emit(size)
		}
	}
	emit(len(words))

	return chunks
}
