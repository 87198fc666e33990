package catalog

import (
	"strconv"
	"time"

	dbredis "github.com/nexa-labs/ragd/internal/db/redis"
	"github.com/nexa-labs/ragd/internal/domain/document"
	"github.com/nexa-labs/ragd/internal/index"
)

// buildDocFields converts a domain Document into a flat map for HSET.
func buildDocFields(doc *document.Document) map[string]string {
	deleted := "0"
	if doc.Deleted() {
		deleted = "1"
	}
	return map[string]string{
		"id":          doc.ID(),
		"name":        doc.Name(),
		"source_path": doc.SourcePath(),
		"version":     doc.Version(),
		"checksum":    doc.Checksum(),
		"ingested_at": doc.IngestedAt().UTC().Format(time.RFC3339Nano),
		"deleted":     deleted,
	}
}

// parseDocFields converts a flat hash map back into a domain Document.
func parseDocFields(m map[string]string) document.Document {
	ingestedAt, _ := time.Parse(time.RFC3339Nano, m["ingested_at"])
	return document.Reconstruct(
		m["id"], m["name"], m["source_path"], m["version"], m["checksum"],
		ingestedAt, m["deleted"] == "1",
	)
}

// buildEntryFields converts an index entry into a flat map for HSET.
func buildEntryFields(e *index.Entry) map[string]string {
	return map[string]string{
		"chunk_id": e.ChunkID,
		"doc_id":   e.DocumentID,
		"doc_name": e.DocumentName,
		"ordinal":  strconv.Itoa(e.Ordinal),
		"text":     e.Text,
		"norm":     strconv.FormatFloat(e.Norm, 'g', -1, 64),
		"vector":   dbredis.VectorToBytes(e.Vector),
	}
}

// parseEntryFields converts a flat hash map back into an index entry.
func parseEntryFields(m map[string]string) (index.Entry, error) {
	ordinal, _ := strconv.Atoi(m["ordinal"])
	norm, _ := strconv.ParseFloat(m["norm"], 64)
	vector, err := dbredis.BytesToVector([]byte(m["vector"]))
	if err != nil {
		return index.Entry{}, err
	}
	return index.Entry{
		ChunkID:      m["chunk_id"],
		DocumentID:   m["doc_id"],
		DocumentName: m["doc_name"],
		Ordinal:      ordinal,
		Text:         m["text"],
		Vector:       vector,
		Norm:         norm,
	}, nil
}
