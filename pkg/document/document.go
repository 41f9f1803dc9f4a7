package document

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
)

// Document kinds, stored in the "type" metadata field.
const (
	KindText  = "text"
	KindImage = "image"
)

// Metadata keys shared by ingestion, storage and the UIs.
const (
	MetaID           = "id"
	MetaType         = "type"
	MetaSource       = "source"
	MetaTitle        = "title"
	MetaDescription  = "description"
	MetaSummary      = "summary"
	MetaSourceFile   = "source_file"
	MetaEncodedImage = "encoded_image"
)

// Document is a unit of indexed content: an article's text or an image
// caption, with string metadata stored alongside the embedding.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// Scored pairs a document with its similarity to a query.
type Scored struct {
	Document
	Similarity float32
}

// Kind returns the document type from metadata, defaulting to text.
func (d Document) Kind() string {
	if d.Metadata == nil {
		return KindText
	}
	if kind := strings.ToLower(d.Metadata[MetaType]); kind != "" {
		return kind
	}
	return KindText
}

// Meta returns the metadata value for key, or "" when absent.
func (d Document) Meta(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// TextID derives the storage identity of an article document from its
// source URL and title, so re-ingesting the same article is a no-op.
func TextID(source, title string) string {
	sum := md5.Sum([]byte(source + title))
	return hex.EncodeToString(sum[:])
}

// ImageID derives the storage identity of an image document from its
// hex-encoded bytes. The same image scraped from two pages dedupes.
func ImageID(encodedImage string) string {
	sum := md5.Sum([]byte(encodedImage))
	return hex.EncodeToString(sum[:])
}

// NormalizeURL makes raw absolute: protocol-relative URLs get https,
// root-relative paths are joined onto base, bare hosts get a scheme.
func NormalizeURL(raw, base string) string {
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	switch {
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		if base != "" {
			return joinURL(base, raw)
		}
		return "https:" + raw
	default:
		return "https://" + raw
	}
}

func joinURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
