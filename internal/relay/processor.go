package relay

import (
	"context"
	"time"

	"cdnapi/internal/model"
	"cdnapi/internal/service"
)

// FileEvent is the boundary contract with the chat-relay dispatch layer: one
// shared-file notification carrying the remote file URLs and the credential
// to present when downloading them.
type FileEvent struct {
	EventID   string    `json:"event_id"`
	OwnerID   string    `json:"owner_id"`
	FileURLs  []string  `json:"file_urls"`
	BotToken  string    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// FileResult reports the outcome per file so the dispatch layer can format
// its reply message.
type FileResult struct {
	URL      string `json:"url"`
	FileURL  string `json:"file_url"`
	Err      string `json:"error,omitempty"`
	Rejected bool   `json:"rejected,omitempty"`
}

// Processor ingests relayed file events at most once per event id.
type Processor struct {
	svc   service.IngestService
	dedup *Dedup
}

// NewProcessor constructs a relay processor over the ingestion service.
func NewProcessor(svc service.IngestService, dedup *Dedup) *Processor {
	return &Processor{svc: svc, dedup: dedup}
}

// Handle processes one file event. Duplicate or stale events return nil
// results and no error; per-file failures are reported individually so one
// bad file does not lose the rest of the message.
func (p *Processor) Handle(ctx context.Context, ev FileEvent) ([]FileResult, error) {
	if ev.EventID == "" || len(ev.FileURLs) == 0 {
		return nil, service.ErrInvalidInput
	}
	if p.dedup.TooOld(ev.Timestamp) || p.dedup.Seen(ev.EventID) {
		return nil, nil
	}
	p.dedup.Mark(ev.EventID)

	results := make([]FileResult, 0, len(ev.FileURLs))
	for _, fileURL := range ev.FileURLs {
		up, err := p.svc.UploadFromURL(ctx, ev.OwnerID, fileURL, ev.BotToken, model.ProvenanceBot)
		if err != nil {
			results = append(results, FileResult{FileURL: fileURL, Err: err.Error()})
			continue
		}
		results = append(results, FileResult{FileURL: fileURL, URL: p.svc.FileURL(up)})
	}
	return results, nil
}
