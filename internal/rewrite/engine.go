// Package rewrite implements the streaming HTML rewrite pipeline: a
// single-pass tokenizer-driven transform that rewrites URL attributes and
// injects tooling markup without buffering the document.
package rewrite

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
)

// Stats counts the work performed by one engine run.
type Stats struct {
	TagsRewritten       int
	AttributesRewritten int
	Degraded            bool
}

// Engine transforms a single HTML document as it streams through. It owns
// the per-document injection state and must not be reused across documents
// or shared between requests.
type Engine struct {
	attrs  *AttributeRewriter
	policy *Policy
	logger *slog.Logger

	headInjected bool
	bodyInjected bool
	stats        Stats
}

// NewEngine creates an Engine for one document.
func NewEngine(attrs *AttributeRewriter, policy *Policy, logger *slog.Logger) *Engine {
	return &Engine{
		attrs:  attrs,
		policy: policy,
		logger: logger.With("component", "rewrite_engine"),
	}
}

// Stats reports what the last Run did.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Run consumes the upstream body from r and writes the transformed document
// to w. Memory stays bounded to the current token, and w's backpressure
// gates reads from r. Tokens outside the rewritable set are emitted
// byte-for-byte from the tokenizer's raw buffer, so untouched content -
// including multi-byte sequences in any ASCII-compatible encoding - passes
// through unmodified.
//
// A tokenizer desync degrades gracefully: the remaining input is emitted
// unrewritten, since a partially rewritten page beats a dropped connection.
// Only write failures and context cancellation abort the run.
func (e *Engine) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	z := html.NewTokenizer(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				e.stats.Degraded = true
				e.logger.Warn("tokenizer desynchronized, emitting remainder unrewritten", "err", err)
				if _, werr := w.Write(z.Raw()); werr != nil {
					return werr
				}
				if _, werr := w.Write(z.Buffered()); werr != nil {
					return werr
				}
				// The reader already failed once; salvage whatever it
				// still yields.
				if _, werr := io.Copy(w, r); werr != nil {
					e.logger.Debug("remainder copy stopped", "err", werr)
				}
				return nil
			}
			return e.flushPending(w)

		case html.StartTagToken, html.SelfClosingTagToken:
			raw := z.Raw()
			name := tagName(raw)
			if err := e.emitStartTag(w, z, raw, name); err != nil {
				return err
			}
			// A document without </head> still needs the bootstrap: hoist
			// the head payload to the top of the body.
			if name == "body" && !e.headInjected {
				if err := e.injectHead(w); err != nil {
					return err
				}
			}

		case html.EndTagToken:
			raw := z.Raw()
			switch tagName(raw) {
			case "head":
				if err := e.injectHead(w); err != nil {
					return err
				}
			case "body":
				if err := e.injectHead(w); err != nil {
					return err
				}
				if err := e.injectBody(w); err != nil {
					return err
				}
			}
			if _, err := w.Write(raw); err != nil {
				return err
			}

		default:
			if _, err := w.Write(z.Raw()); err != nil {
				return err
			}
		}
	}
}

// emitStartTag writes a start tag, rewriting its attributes when the element
// is in the rewritable set. Tags that end up unchanged are emitted from the
// raw buffer to keep their original formatting.
func (e *Engine) emitStartTag(w io.Writer, z *html.Tokenizer, raw []byte, name string) error {
	if !e.attrs.Rewritable(name) {
		_, err := w.Write(raw)
		return err
	}

	tok := z.Token()
	n := e.attrs.Rewrite(&tok)
	if n == 0 {
		_, err := w.Write(raw)
		return err
	}

	e.stats.TagsRewritten++
	e.stats.AttributesRewritten += n
	_, err := io.WriteString(w, tok.String())
	return err
}

func (e *Engine) injectHead(w io.Writer) error {
	if e.headInjected {
		return nil
	}
	e.headInjected = true
	_, err := io.WriteString(w, e.policy.HeadMarkup())
	return err
}

func (e *Engine) injectBody(w io.Writer) error {
	if e.bodyInjected {
		return nil
	}
	e.bodyInjected = true
	if m := e.policy.BodyMarkup(); m != "" {
		_, err := io.WriteString(w, m)
		return err
	}
	return nil
}

// flushPending emits injections whose structural event never fired, so each
// injection still occurs exactly once per document.
func (e *Engine) flushPending(w io.Writer) error {
	if err := e.injectHead(w); err != nil {
		return err
	}
	return e.injectBody(w)
}

// tagName extracts the lowercased element name from a raw tag token without
// touching the tokenizer's attribute cursor.
func tagName(raw []byte) string {
	i := 1
	if i < len(raw) && raw[i] == '/' {
		i++
	}
	j := i
	for j < len(raw) {
		switch raw[j] {
		case ' ', '\t', '\n', '\r', '\f', '/', '>':
			return strings.ToLower(string(raw[i:j]))
		}
		j++
	}
	return strings.ToLower(string(raw[i:j]))
}
