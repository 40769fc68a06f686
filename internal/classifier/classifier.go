// Package classifier maps raw probe bodies onto the plate status vocabulary.
package classifier

import (
	"strings"
	"unicode/utf8"

	"github.com/alymdu/shortest-plates/internal/plates"
)

// Default phrases recognized in probe bodies.
const (
	DefaultBlockedPhrase    = "You have reached the maximum plate preview attempts"
	DefaultIssuedPhrase     = "Plate is issued"
	DefaultAvailableKeyword = "available"

	// ErrorSentinel prefixes bodies produced by fetchers that report failures inline.
	ErrorSentinel = "__ERROR__"
	// BlockedNote is attached to blocked observations.
	BlockedNote = "rate-limited"
	// SnippetRunes bounds the note kept for unknown bodies.
	SnippetRunes = 200
	// ErrorNoteRunes bounds the note kept for error observations.
	ErrorNoteRunes = 1000
)

// Result is the classified outcome of one probe.
type Result struct {
	Status plates.Status
	Note   string
}

// Classifier applies ordered substring rules to probe bodies. The first rule
// that matches wins. HTTP status codes are never consulted.
type Classifier struct {
	blockedPhrase    string
	issuedPhrase     string
	availableKeyword string
}

// Config overrides the phrases a Classifier looks for. Empty fields keep the defaults.
type Config struct {
	BlockedPhrase    string `mapstructure:"blocked_phrase"`
	IssuedPhrase     string `mapstructure:"issued_phrase"`
	AvailableKeyword string `mapstructure:"available_keyword"`
}

// New constructs a Classifier with the configured phrases.
func New(cfg Config) *Classifier {
	c := Default()
	if p := strings.TrimSpace(cfg.BlockedPhrase); p != "" {
		c.blockedPhrase = p
	}
	if p := strings.TrimSpace(cfg.IssuedPhrase); p != "" {
		c.issuedPhrase = p
	}
	if p := strings.TrimSpace(cfg.AvailableKeyword); p != "" {
		c.availableKeyword = strings.ToLower(p)
	}
	return c
}

// Default returns a Classifier with the stock phrases.
func Default() *Classifier {
	return &Classifier{
		blockedPhrase:    DefaultBlockedPhrase,
		issuedPhrase:     DefaultIssuedPhrase,
		availableKeyword: DefaultAvailableKeyword,
	}
}

// Classify maps a body, or the error returned while fetching it, to a status and note.
func (c *Classifier) Classify(body string, fetchErr error) Result {
	if c == nil {
		c = Default()
	}
	switch {
	case fetchErr != nil:
		return Result{Status: plates.StatusError, Note: truncateRunes(fetchErr.Error(), ErrorNoteRunes)}
	case strings.HasPrefix(body, ErrorSentinel):
		return Result{Status: plates.StatusError, Note: truncateRunes(body, ErrorNoteRunes)}
	case strings.Contains(body, c.blockedPhrase):
		return Result{Status: plates.StatusBlocked, Note: BlockedNote}
	case strings.Contains(body, c.issuedPhrase):
		return Result{Status: plates.StatusIssued}
	case strings.Contains(strings.ToLower(body), c.availableKeyword):
		return Result{Status: plates.StatusAvailable}
	default:
		return Result{Status: plates.StatusUnknown, Note: truncateRunes(body, SnippetRunes)}
	}
}

// Classify runs the default Classifier.
func Classify(body string, fetchErr error) Result {
	return Default().Classify(body, fetchErr)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
