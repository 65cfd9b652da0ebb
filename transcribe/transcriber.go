package transcribe

import (
	"context"
	"fmt"
	"log"

	"videodocs/core"
)

// Result carries a full transcript plus its timed segments and the name
// of the provider that produced it.
type Result struct {
	Provider string
	Text     string
	Segments []core.TranscriptSegment
}

// Provider converts an audio file into a transcript. Implementations
// report availability so the chain can skip providers that are not
// configured on this host.
type Provider interface {
	Name() string
	Available() bool
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
}

// Chain tries providers in preference order and returns the first
// non-empty transcript. A provider error moves on to the next; only
// exhausting the chain is reported, and even that is non-fatal to
// callers by convention.
type Chain struct {
	providers []Provider
}

func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Pick returns the chain filtered to a single named provider, or the
// chain itself for "auto".
func (c *Chain) Pick(name string) *Chain {
	if name == "" || name == "auto" {
		return c
	}
	for _, p := range c.providers {
		if p.Name() == name {
			return &Chain{providers: []Provider{p}}
		}
	}
	log.Printf("transcribe: unknown provider %q, using auto order", name)
	return c
}

func (c *Chain) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		res, err := p.Transcribe(ctx, audioPath)
		if err != nil {
			log.Printf("transcribe: provider %s failed: %v", p.Name(), err)
			lastErr = err
			continue
		}
		if res == nil || res.Text == "" {
			log.Printf("transcribe: provider %s returned empty transcript", p.Name())
			continue
		}
		res.Provider = p.Name()
		return res, nil
	}
	if lastErr != nil {
		return nil, &core.TranscriptionError{Provider: "chain", Err: lastErr}
	}
	return nil, &core.TranscriptionError{Provider: "chain", Err: fmt.Errorf("no transcription provider available")}
}
