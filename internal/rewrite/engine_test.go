package rewrite

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"github.com/Apex-dev01/Comet/internal/features"
	"github.com/Apex-dev01/Comet/internal/proxyurl"
)

func newTestEngine(t *testing.T, target string, snap features.Snapshot) *Engine {
	t.Helper()
	base, err := url.Parse(target)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(NewAttributeRewriter(proxyurl.NewCodec(base)), NewPolicy(snap), logger)
}

func runEngine(t *testing.T, e *Engine, input string) string {
	t.Helper()
	var out bytes.Buffer
	if err := e.Run(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return out.String()
}

func TestRun_RewritesAndInjects(t *testing.T) {
	e := newTestEngine(t, "https://example.com/", features.Defaults())

	in := `<html><head></head><body><a href="https://example.com/x">x</a></body></html>`
	out := runEngine(t, e, in)

	for _, want := range []string{
		`<script src="/cep.js"></script>`,
		DebugToolScriptURL,
		`href="/proxy/https%3A%2F%2Fexample.com%2Fx"`,
		`comet-debug-btn`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\noutput: %s", want, out)
		}
	}

	// Injections land inside their elements.
	if head := out[:strings.Index(out, "</head>")]; !strings.Contains(head, "/cep.js") {
		t.Error("head injection not inside <head>")
	}
	if idx := strings.Index(out, "comet-debug-btn"); idx > strings.Index(out, "</body>") {
		t.Error("body injection not inside <body>")
	}

	st := e.Stats()
	if st.AttributesRewritten != 1 || st.TagsRewritten != 1 {
		t.Errorf("Stats() = %+v, want 1 tag / 1 attribute", st)
	}
	if st.Degraded {
		t.Error("Stats().Degraded = true for well-formed input")
	}
}

func TestRun_DebugToolDisabledSuppressesToolingOnly(t *testing.T) {
	off := false
	e := newTestEngine(t, "https://example.com/", features.NewSnapshot(&off, false, nil))

	out := runEngine(t, e, `<html><head></head><body></body></html>`)

	if !strings.Contains(out, `<script src="/cep.js"></script>`) {
		t.Error("bootstrap reference must appear even with the debug tool disabled")
	}
	if strings.Contains(out, DebugToolScriptURL) {
		t.Error("debug tool script injected despite explicit false flag")
	}
	if strings.Contains(out, "comet-debug-btn") {
		t.Error("body control injected despite explicit false flag")
	}
}

func TestRun_InjectionsAtMostOnce(t *testing.T) {
	e := newTestEngine(t, "https://example.com/", features.Defaults())

	// Two head and two body boundaries; each injection must fire once.
	in := `<html><head></head><head></head><body></body><body></body></html>`
	out := runEngine(t, e, in)

	if got := strings.Count(out, `src="/cep.js"`); got != 1 {
		t.Errorf("bootstrap injected %d times, want 1", got)
	}
	if got := strings.Count(out, "comet-debug-btn"); got != 1 {
		t.Errorf("body control injected %d times, want 1", got)
	}
}

func TestRun_InjectsWithoutStructuralEvents(t *testing.T) {
	e := newTestEngine(t, "https://example.com/", features.Defaults())

	// Fragment with neither <head> nor <body>: injections fire at EOF.
	out := runEngine(t, e, `<p>bare fragment</p>`)

	if got := strings.Count(out, `src="/cep.js"`); got != 1 {
		t.Errorf("bootstrap injected %d times, want 1", got)
	}
	if got := strings.Count(out, "comet-debug-btn"); got != 1 {
		t.Errorf("body control injected %d times, want 1", got)
	}
	if !strings.HasPrefix(out, "<p>bare fragment</p>") {
		t.Errorf("original content not preserved first: %q", out)
	}
}

func TestRun_HeadPayloadHoistedWhenHeadMissing(t *testing.T) {
	e := newTestEngine(t, "https://example.com/", features.Defaults())

	out := runEngine(t, e, `<html><body><p>x</p></body></html>`)

	bootstrapAt := strings.Index(out, "/cep.js")
	bodyOpenAt := strings.Index(out, "<body>")
	bodyCloseAt := strings.Index(out, "</body>")
	if bootstrapAt < bodyOpenAt || bootstrapAt > bodyCloseAt {
		t.Errorf("bootstrap not hoisted into body: %q", out)
	}
	if got := strings.Count(out, `src="/cep.js"`); got != 1 {
		t.Errorf("bootstrap injected %d times, want 1", got)
	}
}

func TestRun_UntouchedContentByteIdentical(t *testing.T) {
	e := newTestEngine(t, "https://example.com/", features.Defaults())

	// Odd formatting, single quotes, unquoted values, comments, multi-byte
	// text. Nothing here is rewritable, so everything before the injected
	// tail must round-trip exactly.
	in := "<!DOCTYPE html>\n<!-- héllo wörld -->\n<div   class='x'  data-q=1>日本語テキスト</div>\n"
	out := runEngine(t, e, in)

	if !strings.HasPrefix(out, in) {
		t.Errorf("untouched content altered:\n in: %q\nout: %q", in, out)
	}
}

func TestRun_UnrewrittenTagsKeepFormatting(t *testing.T) {
	e := newTestEngine(t, "https://example.com/", features.Defaults())

	// Rewritable element, but no URL attribute to rewrite: the raw bytes
	// (single quotes, spacing) must survive.
	in := `<body><a  class='fancy'>plain</a></body>`
	out := runEngine(t, e, in)

	if !strings.Contains(out, `<a  class='fancy'>`) {
		t.Errorf("unchanged tag reformatted: %q", out)
	}
}

func TestRun_RelativeURLsResolvedAgainstTarget(t *testing.T) {
	e := newTestEngine(t, "https://example.com/news/today.html", features.Defaults())

	out := runEngine(t, e, `<body><img src="/img/a.png"><a href="next.html">n</a></body>`)

	if !strings.Contains(out, `src="/proxy/https%3A%2F%2Fexample.com%2Fimg%2Fa.png"`) {
		t.Errorf("root-relative src not rewritten: %q", out)
	}
	if !strings.Contains(out, `href="/proxy/https%3A%2F%2Fexample.com%2Fnews%2Fnext.html"`) {
		t.Errorf("document-relative href not rewritten: %q", out)
	}
}

func TestRun_ScriptBodyNotRewritten(t *testing.T) {
	e := newTestEngine(t, "https://example.com/", features.Defaults())

	in := `<body><script>var s = "<a href='https://example.com/x'>";</script></body>`
	out := runEngine(t, e, in)

	if !strings.Contains(out, `var s = "<a href='https://example.com/x'>";`) {
		t.Errorf("script text content altered: %q", out)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	e := newTestEngine(t, "https://example.com/", features.Defaults())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := e.Run(ctx, strings.NewReader("<html></html>"), &out)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

// failAfterReader yields its payload, then a non-EOF error.
type failAfterReader struct {
	r    io.Reader
	err  error
	done bool
}

func (f *failAfterReader) Read(p []byte) (int, error) {
	if !f.done {
		n, err := f.r.Read(p)
		if err == io.EOF {
			f.done = true
			return n, nil
		}
		return n, err
	}
	return 0, f.err
}

func TestRun_DegradesOnReaderFailure(t *testing.T) {
	e := newTestEngine(t, "https://example.com/", features.Defaults())

	payload := `<html><body><p>partial content`
	r := &failAfterReader{r: strings.NewReader(payload), err: errors.New("stream torn")}

	var out bytes.Buffer
	if err := e.Run(context.Background(), r, &out); err != nil {
		t.Fatalf("Run() error = %v, want graceful degradation", err)
	}

	if !strings.Contains(out.String(), "partial content") {
		t.Errorf("remaining content dropped: %q", out.String())
	}
	if !e.Stats().Degraded {
		t.Error("Stats().Degraded = false, want true")
	}
}
