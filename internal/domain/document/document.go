// Package document holds the ingested document aggregate.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MaxContentSize is the maximum raw document size in bytes.
const MaxContentSize = 1 << 22 // 4MB

// Document is an ingested source file (immutable value object).
// Once stored it never changes except for the deleted flag.
type Document struct {
	id         string
	name       string
	sourcePath string
	version    string
	checksum   string
	ingestedAt time.Time
	deleted    bool
}

// New validates and creates a Document from raw content.
// The checksum is SHA-256 over the raw bytes; chunking is deterministic,
// so path+checksum identity makes re-ingestion idempotent.
func New(id, sourcePath, version, content string, ingestedAt time.Time) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if sourcePath == "" {
		return Document{}, fmt.Errorf("source path is required")
	}
	if content == "" {
		return Document{}, fmt.Errorf("content is required")
	}
	if len(content) > MaxContentSize {
		return Document{}, fmt.Errorf("content too large (max %d bytes)", MaxContentSize)
	}

	return Document{
		id:         id,
		name:       baseName(sourcePath),
		sourcePath: sourcePath,
		version:    version,
		checksum:   Checksum(content),
		ingestedAt: ingestedAt.UTC(),
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(
	id, name, sourcePath, version, checksum string, ingestedAt time.Time, deleted bool,
) Document {
	return Document{
		id: id, name: name, sourcePath: sourcePath, version: version,
		checksum: checksum, ingestedAt: ingestedAt, deleted: deleted,
	}
}

// Checksum returns the hex SHA-256 of the content.
func Checksum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Name returns the display name (base of the source path).
func (d *Document) Name() string { return d.name }

// SourcePath returns the path the document was loaded from.
func (d *Document) SourcePath() string { return d.sourcePath }

// Version returns the ingestion version tag.
func (d *Document) Version() string { return d.version }

// Checksum returns the raw content checksum.
func (d *Document) Checksum() string { return d.checksum }

// IngestedAt returns the ingestion timestamp (UTC).
func (d *Document) IngestedAt() time.Time { return d.ingestedAt }

// Deleted reports whether the document has been logically removed.
func (d *Document) Deleted() bool { return d.deleted }

// WithDeleted returns a copy with the deleted flag set.
func (d *Document) WithDeleted() Document {
	c := *d
	c.deleted = true
	return c
}

func baseName(path string) string {
	return filepath.Base(strings.ReplaceAll(path, "\\", "/"))
}
