package enrich

import (
	"context"
	"errors"
)

// Kind identifies which source produced an enrichment
type Kind string

const (
	KindNone       Kind = ""
	KindRepository Kind = "repository"
	KindWebpage    Kind = "webpage"
	KindSearch     Kind = "search"
)

// ErrNoMatch is returned when no source recognises the message
var ErrNoMatch = errors.New("enrich: no match")

// Source classifies a message and fetches supplementary context for it
type Source interface {
	// Kind names the source; it also labels the block sent to the model
	Kind() Kind
	// Match reports whether the text is for this source and returns the
	// normalized query Fetch will receive
	Match(text string) (query string, ok bool)
	// Fetch retrieves the context as plain text
	Fetch(ctx context.Context, query string) (string, error)
}

// Result fetched context ready to append to a user turn
type Result struct {
	Kind  Kind
	Query string
	Text  string
}

// headers label each kind of block for the model
var headers = map[Kind]string{
	KindRepository: "[GitHub repository context]",
	KindWebpage:    "[Web page content]",
	KindSearch:     "[Web search results]",
}

// Header returns the label placed above the block
func (r Result) Header() string {
	if h, ok := headers[r.Kind]; ok {
		return h
	}
	return "[Additional context]"
}

// Block renders the result as "\n\n<header>\n<text>", or "" when empty
func (r Result) Block() string {
	if r.Text == "" {
		return ""
	}
	return "\n\n" + r.Header() + "\n" + r.Text
}
