package main

import (
	"fmt"
	"regexp"
)

// cjkClass matches a single hiragana, katakana, prolonged sound mark or CJK
// ideograph character.
const cjkClass = `[あ-んア-ンー一-龯]`

// Escaped newline and tab as they appear inside the doubly encoded route
// state: a backslash pair followed by the letter.
const (
	escapedNewline     = `\\\\n` // regexp
	escapedNewlineText = `\\n`
	escapedTabText     = `\\t`
)

// literalRule is a fixed substring that, when present, is taken verbatim.
type literalRule struct {
	Role Role   `toml:"role"`
	Text string `toml:"text"`
}

// sectionRule is a regular expression for a labeled block of assistant text.
// Matches should end in an escaped blank line, which is stripped.
type sectionRule struct {
	Name    string `toml:"name"`
	Pattern string `toml:"pattern"`
}

// heuristicRules drives the script mining chain. The defaults target the
// shared page layout seen when the structured payload was removed; all of it
// can be replaced from the config file.
type heuristicRules struct {
	MinScriptLength int           `toml:"min_script_length"`
	ScriptMarker    string        `toml:"script_marker"`
	TitlePrefix     string        `toml:"title_prefix"`
	Literals        []literalRule `toml:"literal"`
	Sections        []sectionRule `toml:"section"`
	Keywords        []string      `toml:"keywords"`
}

func defaultHeuristicRules() heuristicRules {
	return heuristicRules{
		MinScriptLength: 10000,
		ScriptMarker:    "window.__reactRouterContext",
		TitlePrefix:     "ChatGPT - ",
		Literals: []literalRule{
			{
				Role: RoleUser,
				Text: "React Nativeでカメラを撮る機能を作成したいのです。用途としてはバーコードの読み取りなのですが今映っているカメラの映像品質によって赤黄緑と判定したいです。どうすると良いですか？",
			},
		},
		Sections: []sectionRule{
			{
				Name:    "overview",
				Pattern: `でカメラ映像の品質をリアルタイムに評価し、バーコードの読み取り可否を「赤・黄・緑」で表示するシステムを実装するには、以下のような設計ステップを踏むのが現実的で高品質です。[^"]*?` + escapedNewline + escapedNewline,
			},
			{
				Name:    "tech-stack",
				Pattern: `🔧 技術スタック候補[^"]*?- \*\*バーコード読み取り\*\*[^"]*?検出有無\*\*[^"]*?` + escapedNewline + escapedNewline,
			},
			{
				Name:    "implementation",
				Pattern: `✅ 実装ステップ[^"]*?react-native-vision-camera[^"]*?可能です。[^"]*?` + escapedNewline + escapedNewline,
			},
		},
		Keywords: []string{"expo-camera", "react-native-vision-camera", "frameProcessor", "バーコードスキャン"},
	}
}

// Limits of the generic mining passes.
const (
	paragraphMinLength   = 150
	paragraphLimit       = 15
	headingMinLength     = 50
	keywordMinLength     = 100
	sentenceRawMin       = 50
	sentenceMinLength    = 50
	boundaryRawMin       = 20
	boundaryMinLength    = 30
	sentenceLimit        = 10
	fallbackMinLength    = 20
	fallbackMaxLength    = 1000
	fallbackLimit        = 15
	dedupPrefix          = 50
	sentenceDedupPrefix  = 30
	minCJKRunForEligible = 5
)

var (
	cjkRunPattern        = regexp.MustCompile(fmt.Sprintf(`%s{%d,}`, cjkClass, minCJKRunForEligible))
	paragraphPattern     = regexp.MustCompile(cjkClass + `[^"]*?` + escapedNewline + escapedNewline)
	headingPattern       = regexp.MustCompile(`##[^"]{50,1000}`)
	sentenceLinePattern  = regexp.MustCompile(cjkClass + `[^"]*?[。！？][^"]*?` + escapedNewline)
	sentenceSpanPattern  = regexp.MustCompile(`[。！？][^"]*?[。！？]`)
	fallbackSpanPattern  = regexp.MustCompile(cjkClass + `[^"]{20,300}`)
	escapedBlankLineTail = regexp.MustCompile(escapedNewline + escapedNewline + `$`)
)

// compiledSection is a sectionRule ready to run.
type compiledSection struct {
	name string
	re   *regexp.Regexp
}

func (r heuristicRules) compileSections() ([]compiledSection, error) {
	out := make([]compiledSection, 0, len(r.Sections))
	for i, s := range r.Sections {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			name := s.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("section rule %s: %w", name, err)
		}
		out = append(out, compiledSection{name: s.Name, re: re})
	}
	return out, nil
}

func (r heuristicRules) compileKeywords() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(r.Keywords))
	for _, kw := range r.Keywords {
		if kw == "" {
			continue
		}
		out = append(out, regexp.MustCompile(`[^"]*`+regexp.QuoteMeta(kw)+`[^"]{50,800}`))
	}
	return out
}
