package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/helixir/research-feed-service/internal/domain"
)

// MalformedSnapshotError is returned when a snapshot is not JSON at all. No
// invariant checks run in that case.
type MalformedSnapshotError struct {
	Subject string
	Cause   error
}

func (e *MalformedSnapshotError) Error() string {
	return fmt.Sprintf("%s is not valid JSON: %v", e.Subject, e.Cause)
}

func (e *MalformedSnapshotError) Unwrap() error {
	return e.Cause
}

// ValidateFile reads path and validates its contents. The file's base name is
// used as the subject of any reported failure.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	return Validate(filepath.Base(path), data)
}

// Validate checks a serialized snapshot against every structural invariant
// and reports all violations together as a *domain.ValidationFailure.
//
// The document is inspected as generic JSON so that wrongly typed fields are
// reported instead of silently decoded to zero values.
func Validate(subject string, data []byte) error {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return &MalformedSnapshotError{Subject: subject, Cause: err}
	}
	return domain.NewValidationFailure(subject, Issues(payload))
}

// Issues lists every invariant violation in a decoded snapshot, in document order.
func Issues(payload any) []string {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	root, ok := payload.(map[string]any)
	if !ok {
		add("Payload must be an object.")
	}
	categories, ok := root["categories"].([]any)
	if !ok {
		add("Payload must include a categories array.")
		return issues
	}

	seen := make(map[string]bool, len(categories))
	for i, raw := range categories {
		category, ok := raw.(map[string]any)
		if !ok {
			add("Category %d must be an object.", i)
		}

		id, hasID := nonEmptyString(category["id"])
		if !hasID {
			add("Category %d must include an id.", i)
		}
		label := any(i)
		if hasID {
			label = id
		}
		if _, ok := nonEmptyString(category["title"]); !ok {
			add("Category %v needs a title.", label)
		}
		articles, isList := category["articles"].([]any)
		if !isList {
			add("Category %v must have an articles array.", label)
		}
		if hasID {
			if seen[id] {
				add("Category id %q is duplicated.", id)
			}
			seen[id] = true
		}

		for j, rawArticle := range articles {
			article, ok := rawArticle.(map[string]any)
			if !ok {
				add("Article %v#%d must be an object.", label, j)
			}
			articleID, hasArticleID := nonEmptyString(article["id"])
			if !hasArticleID {
				add("Article %v#%d missing id.", label, j)
			}
			articleLabel := fmt.Sprintf("%v#%d", label, j)
			if hasArticleID {
				articleLabel = articleID
			}
			if _, ok := nonEmptyString(article["title"]); !ok {
				add("Article %s missing title.", articleLabel)
			}
			if _, ok := nonEmptyString(article["url"]); !ok {
				add("Article %s missing url.", articleLabel)
			}
		}
	}

	return issues
}

// nonEmptyString reports whether v is a string with non-whitespace content.
func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
