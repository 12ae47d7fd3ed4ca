// Package mention finds @username references in message text and renders them as
// markup for known users.
package mention

import (
	"context"
	"html"
	"regexp"
	"strings"
)

// token is letters, digits and underscore in any script.
var mentionRe = regexp.MustCompile(`@([\p{L}\p{N}_]+)`)

// UserLookup reports which of the given usernames exist, in one batch.
type UserLookup interface {
	FindUsernames(ctx context.Context, names []string) ([]string, error)
}

type Result struct {
	// Decorated is HTML-escaped text with each known mention wrapped in a span.
	Decorated string `json:"decorated_content"`
	// Mentions lists known usernames in order of first appearance.
	Mentions []string `json:"mentions"`
}

type Resolver struct {
	users UserLookup
}

func NewResolver(users UserLookup) *Resolver {
	return &Resolver{users: users}
}

// Candidates returns the distinct @tokens in text, in order of first appearance.
func Candidates(text string) []string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

func (r *Resolver) Resolve(ctx context.Context, text string) (Result, error) {
	candidates := Candidates(text)
	if len(candidates) == 0 {
		return Result{Decorated: html.EscapeString(text), Mentions: []string{}}, nil
	}
	found, err := r.users.FindUsernames(ctx, candidates)
	if err != nil {
		return Result{}, err
	}
	known := make(map[string]struct{}, len(found))
	for _, name := range found {
		known[name] = struct{}{}
	}
	return Decorate(text, known), nil
}

// ResolveMany resolves several texts with a single lookup. Results are index-aligned
// with texts.
func (r *Resolver) ResolveMany(ctx context.Context, texts []string) ([]Result, error) {
	var all []string
	seen := make(map[string]struct{})
	for _, t := range texts {
		for _, c := range Candidates(t) {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				all = append(all, c)
			}
		}
	}
	known := make(map[string]struct{})
	if len(all) > 0 {
		found, err := r.users.FindUsernames(ctx, all)
		if err != nil {
			return nil, err
		}
		for _, name := range found {
			known[name] = struct{}{}
		}
	}
	out := make([]Result, len(texts))
	for i, t := range texts {
		out[i] = Decorate(t, known)
	}
	return out, nil
}

// Decorate is the pure half of Resolve: given the set of known usernames it escapes
// text and marks up mentions of those users.
func Decorate(text string, known map[string]struct{}) Result {
	var b strings.Builder
	mentions := []string{}
	seen := make(map[string]struct{})
	last := 0
	for _, loc := range mentionRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[loc[2]:loc[3]]
		if _, ok := known[name]; !ok {
			continue
		}
		b.WriteString(html.EscapeString(text[last:loc[0]]))
		b.WriteString(`<span class="mention">@`)
		b.WriteString(html.EscapeString(name))
		b.WriteString(`</span>`)
		last = loc[1]
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			mentions = append(mentions, name)
		}
	}
	b.WriteString(html.EscapeString(text[last:]))
	return Result{Decorated: b.String(), Mentions: mentions}
}
