package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const keepAliveInterval = 30 * time.Second

// stream pushes a snapshot whenever the board changes and an error event for
// every session notice. A session serves one stream at a time; a second
// reader would split the change signal with the first.
func (h *handlers) stream(c echo.Context) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().WriteHeader(http.StatusOK)
	// Write an initial comment to ensure headers are flushed to the client.
	if _, err := c.Response().Write([]byte(":ok\n\n")); err != nil {
		return nil
	}
	flusher.Flush()

	detach := h.sessions.Attach(s.ID)
	defer detach()

	write := func(event string, v any) bool {
		data, err := sonic.Marshal(v)
		if err != nil {
			h.logger.WithError(err).Error("encode stream event")
			return true
		}
		frame := make([]byte, 0, len(data)+len(event)+16)
		frame = append(frame, "event: "...)
		frame = append(frame, event...)
		frame = append(frame, "\ndata: "...)
		frame = append(frame, data...)
		frame = append(frame, "\n\n"...)
		if _, err := c.Response().Write(frame); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !write("snapshot", s.Store.Snapshot()) {
		return nil
	}
	ctx := c.Request().Context()
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.Store.Changes():
			if !write("snapshot", s.Store.Snapshot()) {
				return nil
			}
		case n := <-s.Notices():
			if !write("error", n) {
				return nil
			}
		case <-ticker.C:
			// Send a comment as a heartbeat to keep the connection alive.
			if _, err := c.Response().Write([]byte(":keepalive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case <-s.Context().Done():
			write("closed", struct{}{})
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
