package main

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// candidate is a message mined from script text.
type candidate struct {
	Role    Role
	Content string
}

// transcriptBuilder accumulates candidates in discovery order. Later steps
// see what earlier steps accepted, so the step order decides the outcome.
type transcriptBuilder struct {
	messages []candidate
}

func (b *transcriptBuilder) add(role Role, content string) {
	b.messages = append(b.messages, candidate{Role: role, Content: content})
}

// duplicate reports whether content contains the first prefixLen characters
// of an accepted message longer than prefixLen. The check is one way: an
// earlier message suppresses a later superset, never the reverse.
func (b *transcriptBuilder) duplicate(content string, prefixLen int) bool {
	for _, m := range b.messages {
		if utf8.RuneCountInString(m.Content) <= prefixLen {
			continue
		}
		if strings.Contains(content, runePrefix(m.Content, prefixLen)) {
			return true
		}
	}
	return false
}

// addUnique appends content unless it is a duplicate.
func (b *transcriptBuilder) addUnique(role Role, content string, prefixLen int) bool {
	if b.duplicate(content, prefixLen) {
		return false
	}
	b.add(role, content)
	return true
}

// heuristicExtractor mines route-state scripts when a page has no structured
// payload. Results are best effort.
type heuristicExtractor struct {
	rules    heuristicRules
	sections []compiledSection
	keywords []*regexp.Regexp
}

func newHeuristicExtractor(rules heuristicRules) (*heuristicExtractor, error) {
	sections, err := rules.compileSections()
	if err != nil {
		return nil, err
	}
	return &heuristicExtractor{
		rules:    rules,
		sections: sections,
		keywords: rules.compileKeywords(),
	}, nil
}

// extract mines the first eligible script that yields any candidates.
func (e *heuristicExtractor) extract(p *page, log *zerolog.Logger) (extraction, bool) {
	for i, script := range p.scripts() {
		if !e.eligible(script) {
			continue
		}
		log.Debug().Int("script_index", i).Int("script_bytes", len(script)).Msg("mining route state script")

		cands := e.mine(script, log)
		if len(cands) == 0 {
			log.Debug().Int("script_index", i).Msg("no candidates in script")
			continue
		}
		return extraction{
			kind:       extractedHeuristic,
			title:      strings.TrimPrefix(p.title(), e.rules.TitlePrefix),
			candidates: cands,
		}, true
	}
	return extraction{}, false
}

// eligible reports whether a script is large, carries the route state marker
// and contains a run of conversational CJK text.
func (e *heuristicExtractor) eligible(script string) bool {
	if len(script) <= e.rules.MinScriptLength || utf8.RuneCountInString(script) <= e.rules.MinScriptLength {
		return false
	}
	if e.rules.ScriptMarker != "" && !strings.Contains(script, e.rules.ScriptMarker) {
		return false
	}
	return cjkRunPattern.MatchString(script)
}

type mineStep struct {
	name string
	run  func(script string, acc *transcriptBuilder)
}

// mine runs the strategy chain over one accumulator.
func (e *heuristicExtractor) mine(script string, log *zerolog.Logger) []candidate {
	acc := &transcriptBuilder{}
	steps := []mineStep{
		{"literal", e.mineLiterals},
		{"section", e.mineSections},
		{"paragraph", mineParagraphs},
		{"heading", mineHeadings},
		{"keyword", e.mineKeywords},
		{"sentence-line", mineSentenceLines},
		{"sentence-span", mineSentenceSpans},
	}
	for _, s := range steps {
		runMineStep(s, script, acc, log)
	}
	if len(acc.messages) == 0 {
		runMineStep(mineStep{"fallback", mineFallback}, script, acc, log)
	}
	return acc.messages
}

// runMineStep isolates a failing step: whatever it added is discarded and the
// chain carries on.
func runMineStep(s mineStep, script string, acc *transcriptBuilder, log *zerolog.Logger) {
	mark := len(acc.messages)
	defer func() {
		if r := recover(); r != nil {
			acc.messages = acc.messages[:mark]
			log.Warn().Str("step", s.name).Interface("panic", r).Msg("heuristic step failed")
		}
	}()
	s.run(script, acc)
	log.Debug().Str("step", s.name).Int("added", len(acc.messages)-mark).Msg("heuristic step done")
}

func (e *heuristicExtractor) mineLiterals(script string, acc *transcriptBuilder) {
	for _, l := range e.rules.Literals {
		if l.Text == "" || !strings.Contains(script, l.Text) {
			continue
		}
		role := l.Role
		if role == "" {
			role = RoleUser
		}
		acc.add(role, l.Text)
	}
}

func (e *heuristicExtractor) mineSections(script string, acc *transcriptBuilder) {
	for _, s := range e.sections {
		m := s.re.FindString(script)
		if m == "" {
			continue
		}
		if text := cleanBlock(m); text != "" {
			acc.add(RoleAssistant, text)
		}
	}
}

func mineParagraphs(script string, acc *transcriptBuilder) {
	kept := 0
	for _, m := range paragraphPattern.FindAllString(script, -1) {
		text := cleanBlock(m)
		if runeLen(text) <= paragraphMinLength {
			continue
		}
		if kept == paragraphLimit {
			break
		}
		kept++
		acc.addUnique(classifyParagraph(text), text, dedupPrefix)
	}
}

func mineHeadings(script string, acc *transcriptBuilder) {
	for _, m := range headingPattern.FindAllString(script, -1) {
		if text := cleanFragment(m); runeLen(text) > headingMinLength {
			acc.add(RoleAssistant, text)
		}
	}
}

func (e *heuristicExtractor) mineKeywords(script string, acc *transcriptBuilder) {
	for _, re := range e.keywords {
		for _, m := range re.FindAllString(script, -1) {
			text := cleanFragment(m)
			if runeLen(text) > keywordMinLength {
				acc.addUnique(RoleAssistant, text, dedupPrefix)
			}
		}
	}
}

// mineSentenceLines takes CJK sentences that run up to an escaped newline.
func mineSentenceLines(script string, acc *transcriptBuilder) {
	mineSentences(sentenceLinePattern, sentenceRawMin, sentenceMinLength, script, acc)
}

// mineSentenceSpans takes text between two terminal punctuation marks.
func mineSentenceSpans(script string, acc *transcriptBuilder) {
	mineSentences(sentenceSpanPattern, boundaryRawMin, boundaryMinLength, script, acc)
}

func mineSentences(re *regexp.Regexp, rawMin, minLen int, script string, acc *transcriptBuilder) {
	kept := 0
	for _, m := range re.FindAllString(script, -1) {
		if runeLen(m) <= rawMin {
			continue
		}
		if kept == sentenceLimit {
			break
		}
		kept++
		text := cleanFragment(m)
		if runeLen(text) > minLen {
			acc.addUnique(classifySentence(text), text, sentenceDedupPrefix)
		}
	}
}

// mineFallback takes any CJK spans and alternates roles, starting with the
// user. It only runs when every other step came up empty.
func mineFallback(script string, acc *transcriptBuilder) {
	seen := make(map[string]struct{})
	kept := 0
	for _, m := range fallbackSpanPattern.FindAllString(script, -1) {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		n := runeLen(m)
		if n <= fallbackMinLength || n >= fallbackMaxLength {
			continue
		}
		role := RoleUser
		if kept%2 == 1 {
			role = RoleAssistant
		}
		acc.add(role, strings.TrimSpace(m))
		kept++
		if kept == fallbackLimit {
			return
		}
	}
}

// classifyParagraph treats a polite question as the user speaking.
func classifyParagraph(text string) Role {
	if strings.Contains(text, "？") && (strings.Contains(text, "です") || strings.Contains(text, "ます")) {
		return RoleUser
	}
	return RoleAssistant
}

// classifySentence treats questions and requests as the user speaking.
func classifySentence(text string) Role {
	if strings.Contains(text, "ですか？") || strings.Contains(text, "お願い") {
		return RoleUser
	}
	return RoleAssistant
}

var unescaper = strings.NewReplacer(escapedNewlineText, "\n", escapedTabText, "\t")

// cleanFragment decodes escaped newlines and tabs and trims the result.
func cleanFragment(s string) string {
	return strings.TrimSpace(unescaper.Replace(s))
}

// cleanBlock is cleanFragment for blocks terminated by an escaped blank line.
func cleanBlock(s string) string {
	return cleanFragment(escapedBlankLineTail.ReplaceAllString(s, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func runePrefix(s string, n int) string {
	i := 0
	for j := range s {
		if i == n {
			return s[:j]
		}
		i++
	}
	return s
}
