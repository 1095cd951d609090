package board

import (
	"strings"
	"sync"
	"time"
)

// SearchPipeline separates what the user is typing from the search that
// is applied to the board. Input updates the raw text at once; the trimmed
// text is committed after the input has been quiet for the delay.
type SearchPipeline struct {
	debouncer *Debouncer
	commit    func(string)

	mu        sync.Mutex
	raw       string
	committed string
}

func NewSearchPipeline(delay time.Duration, commit func(query string)) *SearchPipeline {
	return &SearchPipeline{debouncer: NewDebouncer(delay), commit: commit}
}

func (p *SearchPipeline) Input(text string) {
	p.mu.Lock()
	p.raw = text
	p.mu.Unlock()

	query := strings.TrimSpace(text)
	p.debouncer.Trigger(func() {
		p.mu.Lock()
		if query == p.committed {
			p.mu.Unlock()
			return
		}
		p.committed = query
		p.mu.Unlock()
		p.commit(query)
	})
}

// Raw is the latest typed text.
func (p *SearchPipeline) Raw() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.raw
}

// Committed is the last query handed to the board.
func (p *SearchPipeline) Committed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.committed
}

// Flush commits pending input without waiting.
func (p *SearchPipeline) Flush() {
	p.debouncer.Flush()
}

func (p *SearchPipeline) Close() {
	p.debouncer.Stop()
}
