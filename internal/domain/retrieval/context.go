// Package retrieval holds the ephemeral per-query retrieval outcome.
package retrieval

// Hit is one retrieved chunk with its similarity score.
type Hit struct {
	chunkID      string
	documentID   string
	documentName string
	text         string
	score        float64
}

// NewHit creates a retrieval hit.
func NewHit(chunkID, documentID, documentName, text string, score float64) Hit {
	return Hit{
		chunkID:      chunkID,
		documentID:   documentID,
		documentName: documentName,
		text:         text,
		score:        score,
	}
}

// ChunkID returns the retrieved chunk identifier.
func (h Hit) ChunkID() string { return h.chunkID }

// DocumentID returns the parent document identifier.
func (h Hit) DocumentID() string { return h.documentID }

// DocumentName returns the parent document display name.
func (h Hit) DocumentName() string { return h.documentName }

// Text returns the chunk text.
func (h Hit) Text() string { return h.text }

// Score returns the cosine similarity score.
func (h Hit) Score() float64 { return h.score }

// Context is the assembled retrieval outcome for one query. Refused means no
// chunk cleared the relevance threshold; the orchestrator must answer with the
// fixed refusal instead of calling the generation backend. A refused Context is
// a normal outcome, not an error.
type Context struct {
	Hits    []Hit
	Text    string
	Refused bool
}

// Refusal returns the refused Context.
func Refusal() Context { return Context{Refused: true} }
