package source

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Kind identifies the provenance of an item.
type Kind string

const (
	KindPaper      Kind = "paper"
	KindRepository Kind = "repository"
)

// Item is the normalized record shared by every collector.
// Paper-only and repository-only fields are left zero for the other kind.
type Item struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	CollectedAt time.Time `json:"collected_at"`

	// Paper fields.
	Authors     []string  `json:"authors,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	PDFURL      string    `json:"pdf_url,omitempty"`
	PublishedAt time.Time `json:"published,omitzero"`

	// Repository fields.
	FullName  string    `json:"full_name,omitempty"`
	Stars     int       `json:"stars,omitempty"`
	Forks     int       `json:"forks,omitempty"`
	Language  string    `json:"language,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Source is the interface every collector must implement.
// Collect may return partial items together with a non-nil error.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]Item, error)
}

// StableID hashes identifying fields into a short hex identity.
func StableID(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "_")))
	return hex.EncodeToString(sum[:])[:16]
}

// AllKinds returns the known item kinds in report order.
func AllKinds() []Kind {
	return []Kind{KindPaper, KindRepository}
}

// DisplayName is the heading used for a kind in reports.
func (k Kind) DisplayName() string {
	switch k {
	case KindPaper:
		return "arXiv Papers"
	case KindRepository:
		return "GitHub Repositories"
	}
	return string(k)
}
