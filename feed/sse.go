package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const maxBackoff = 5 * time.Second

// SSE reads changes from a remote text/event-stream endpoint, one JSON
// change per data line, reconnecting with backoff when the stream ends.
type SSE struct {
	url    string
	bearer string
	table  string
	client *http.Client
	logger log.FieldLogger
}

func NewSSE(url, bearer, table string, client *http.Client, logger log.FieldLogger) *SSE {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &SSE{url: url, bearer: bearer, table: table, client: client, logger: logger}
}

func (s *SSE) Subscribe(ctx context.Context, h Handler) (Unsubscribe, error) {
	stop := run(ctx, func(ctx context.Context) {
		backoff := time.Second
		for {
			err := s.stream(ctx, h, func() { backoff = time.Second })
			if ctx.Err() != nil {
				return
			}
			s.logger.WithError(err).WithField("url", s.url).Error("change stream ended, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}
	})
	return stop, nil
}

func (s *SSE) stream(ctx context.Context, h Handler, connected func()) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+s.bearer)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("change stream returned %d", resp.StatusCode)
	}
	connected()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		ev, err := Decode([]byte(data), s.table)
		if err != nil {
			if !errors.Is(err, ErrOtherTable) {
				s.logger.WithError(err).Error("unable to parse change")
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h(ev)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("stream closed by server")
}
