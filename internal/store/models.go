package store

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies a content item's media.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// ParseKind validates a media kind coming off the wire or the database.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindImage, KindVideo:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// Target is a tracked external account. Handle is unique; CaseID is the
// external-facing dossier identifier minted at registration.
type Target struct {
	ID        string
	Handle    string
	CaseID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentItem is one unit of captured media owned by a target. Summary and
// FullAnalysis are set together, exactly once, by the investigator.
type ContentItem struct {
	ID           int64
	TargetID     string
	NativeID     string
	Kind         Kind
	CapturedAt   time.Time
	Locator      string
	Caption      string
	Summary      string
	FullAnalysis string
}

// Analyzed reports whether the item has reached its terminal state.
func (c ContentItem) Analyzed() bool {
	return c.Summary != "" && c.FullAnalysis != ""
}

// NormalizeHandle canonicalizes an operator-supplied handle: trimmed,
// lower-cased, leading platform marker stripped.
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(handle)), "@")
}
