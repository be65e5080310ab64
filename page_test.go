package main

import (
	"strings"
	"testing"
)

func TestParsePage(t *testing.T) {
	src := `<!DOCTYPE html>
<html>
<head>
<title>
  ChatGPT -   Barcode   camera
</title>
<script id="__NEXT_DATA__" type="application/json">{"a":"<b>&amp;</b>"}</script>
</head>
<body>
<script>window.x = "1 < 2 && 3 > 2";</script>
<script src="/app.js"></script>
</body>
</html>`

	p, err := parsePage(src)
	if err != nil {
		t.Fatalf("parsePage returned error: %v", err)
	}

	if got, want := p.title(), "ChatGPT - Barcode camera"; got != want {
		t.Errorf("title = %q, want %q", got, want)
	}

	next, ok := p.scriptText("script#__NEXT_DATA__")
	if !ok {
		t.Fatal("expected __NEXT_DATA__ script")
	}
	if next != `{"a":"<b>&amp;</b>"}` {
		t.Errorf("script text was altered: %q", next)
	}

	scripts := p.scripts()
	if len(scripts) != 2 {
		t.Fatalf("expected 2 inline scripts, got %d: %q", len(scripts), scripts)
	}
	if !strings.Contains(scripts[1], "1 < 2 && 3 > 2") {
		t.Errorf("unexpected script text: %q", scripts[1])
	}
}

func TestPageScriptTextMissing(t *testing.T) {
	p, err := parsePage(`<html><body><div id="__NEXT_DATA__">{}</div></body></html>`)
	if err != nil {
		t.Fatalf("parsePage returned error: %v", err)
	}
	if _, ok := p.scriptText("#__NEXT_DATA__"); ok {
		t.Error("non-script element should not be reported as a script")
	}
	if p.title() != "" {
		t.Errorf("expected empty title, got %q", p.title())
	}
}

func TestPageTextDecoding(t *testing.T) {
	p, err := parsePage(`<html><head><title>ChatGPT - Q&amp;A &lt;draft&gt;</title></head>` +
		`<body><script>var s = "&lt;raw&gt;";</script></body></html>`)
	if err != nil {
		t.Fatalf("parsePage returned error: %v", err)
	}
	if got, want := p.title(), "ChatGPT - Q&A <draft>"; got != want {
		t.Errorf("title = %q, want %q", got, want)
	}
	scripts := p.scripts()
	if len(scripts) != 1 || scripts[0] != `var s = "&lt;raw&gt;";` {
		t.Errorf("script text should stay raw, got %q", scripts)
	}
}
