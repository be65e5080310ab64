package main

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog"
)

const nextDataSelector = "script#__NEXT_DATA__"

// nextData is the path to the conversation inside the initial state blob.
type nextData struct {
	Props struct {
		PageProps struct {
			Conversation json.RawMessage `json:"conversation"`
		} `json:"pageProps"`
	} `json:"props"`
}

// extractStructured returns the conversation object embedded in the page's
// initial state, untouched. Absence, bad JSON and a missing path are all
// reported as not found so the caller can fall back to script mining.
func extractStructured(p *page, log *zerolog.Logger) (extraction, bool) {
	text, ok := p.scriptText(nextDataSelector)
	if !ok || len(bytes.TrimSpace([]byte(text))) == 0 {
		log.Debug().Msg("no __NEXT_DATA__ script")
		return extraction{}, false
	}

	var nd nextData
	if err := json.Unmarshal([]byte(text), &nd); err != nil {
		log.Warn().Err(err).Msg("__NEXT_DATA__ is not valid JSON")
		return extraction{}, false
	}

	conv := bytes.TrimSpace(nd.Props.PageProps.Conversation)
	if len(conv) == 0 || conv[0] != '{' {
		log.Debug().Msg("__NEXT_DATA__ has no conversation")
		return extraction{}, false
	}

	log.Debug().Int("payload_bytes", len(conv)).Msg("using __NEXT_DATA__ conversation")
	return extraction{kind: extractedStructured, raw: conv}, true
}
