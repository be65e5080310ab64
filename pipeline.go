package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var errNoConversation = errors.New("No conversation data found in either __NEXT_DATA__ or React Router format")

// FetchRequest carries the arguments of a fetch-chatgpt-conversation call.
type FetchRequest struct {
	URL             string `json:"url"`
	Format          string `json:"format,omitempty"`
	IncludeMetadata *bool  `json:"include_metadata,omitempty"`
	MaxMessages     *int   `json:"max_messages,omitempty"`
	SkipMessages    *int   `json:"skip_messages,omitempty"`
	StartIndex      *int   `json:"start_index,omitempty"`
	EndIndex        *int   `json:"end_index,omitempty"`
}

func (r FetchRequest) window() WindowSpec {
	return WindowSpec{
		MaxMessages:  r.MaxMessages,
		SkipMessages: r.SkipMessages,
		StartIndex:   r.StartIndex,
		EndIndex:     r.EndIndex,
	}
}

func (r FetchRequest) includeMetadata() bool {
	return r.IncludeMetadata == nil || *r.IncludeMetadata
}

// Fetcher turns shared conversation pages into transcripts. It holds no
// per-request state and can serve any number of invocations.
type Fetcher struct {
	pages      pageSource
	heuristics *heuristicExtractor
	archive    transcriptArchive
	logger     zerolog.Logger
	now        func() time.Time
}

func NewFetcher(pages pageSource, rules heuristicRules, logger zerolog.Logger) (*Fetcher, error) {
	h, err := newHeuristicExtractor(rules)
	if err != nil {
		return nil, err
	}
	return &Fetcher{
		pages:      pages,
		heuristics: h,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// WithArchive stores every successful rendering in archive.
func (f *Fetcher) WithArchive(archive transcriptArchive) *Fetcher {
	f.archive = archive
	return f
}

// Handle runs a request and always returns a payload: failures become
// "Error: <message>".
func (f *Fetcher) Handle(ctx context.Context, req FetchRequest) string {
	log := invocationLogger(ctx, f.logger).With().Str("url", req.URL).Logger()
	ctx = log.WithContext(ctx)

	out, err := f.Fetch(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("error fetching conversation")
		return "Error: " + err.Error()
	}
	return out
}

// Fetch validates the request, fetches and extracts the conversation and
// renders it.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (string, error) {
	log := zerolog.Ctx(ctx)

	if err := validateConversationURL(req.URL); err != nil {
		return "", err
	}
	format, err := parseFormat(req.Format)
	if err != nil {
		return "", err
	}
	spec := req.window()
	if err := spec.validate(); err != nil {
		return "", err
	}

	log.Info().Str("format", string(format)).Msg("fetching conversation")
	conv, err := f.fetchConversation(ctx, req.URL)
	if err != nil {
		return "", fmt.Errorf("Failed to fetch conversation: %w", err)
	}

	out, err := render(conv, format, req.includeMetadata(), spec)
	if err != nil {
		return "", err
	}
	log.Info().
		Str("source", string(conv.Source)).
		Int("nodes", conv.NodeCount()).
		Int("output_bytes", len(out)).
		Msg("conversation rendered")

	if f.archive != nil {
		key, err := f.archive.Store(ctx, extractConversationID(req.URL), format, out)
		if err != nil {
			log.Warn().Err(err).Msg("archiving transcript failed")
		} else {
			log.Debug().Str("key", key).Msg("transcript archived")
		}
	}
	return out, nil
}

func (f *Fetcher) fetchConversation(ctx context.Context, rawURL string) (*Conversation, error) {
	htmlSrc, err := f.pages.FetchPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return f.ConversationFromHTML(ctx, htmlSrc)
}

// ConversationFromHTML extracts a conversation from a page already in hand.
// The structured payload wins; script mining is the fallback.
func (f *Fetcher) ConversationFromHTML(ctx context.Context, htmlSrc string) (*Conversation, error) {
	log := zerolog.Ctx(ctx)

	p, err := parsePage(htmlSrc)
	if err != nil {
		log.Warn().Err(err).Msg("page could not be parsed")
		return nil, errNoConversation
	}

	if ex, ok := extractStructured(p, log); ok {
		conv, err := ex.normalize(f.now())
		if err == nil {
			return conv, nil
		}
		log.Warn().Err(err).Msg("structured payload unusable, trying route state")
	}

	if ex, ok := f.heuristics.extract(p, log); ok {
		log.Info().Int("candidates", len(ex.candidates)).Msg("conversation recovered from route state")
		return ex.normalize(f.now())
	}
	return nil, errNoConversation
}
