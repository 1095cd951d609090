package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/board"
	"taskboard/domain"
	"taskboard/gateway"
)

const (
	maxBodySize         = 64 << 10
	DefaultDiscardLimit = 1000
)

// Options tunes the HTTP surface.
type Options struct {
	DiscardLimit int
}

type handlers struct {
	svc      gateway.Service
	sessions *Registry
	auth     Authenticator
	opts     Options
	logger   *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc gateway.Service, sessions *Registry, auth Authenticator, opts Options, logger *log.Logger) {
	if opts.DiscardLimit <= 0 {
		opts.DiscardLimit = DefaultDiscardLimit
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handlers{svc: svc, sessions: sessions, auth: auth, opts: opts, logger: logger}

	e.GET("/healthz", h.healthz)

	g := e.Group("/api", requireUser(auth))
	g.GET("/me", h.me)
	g.POST("/logout", h.logout)
	g.GET("/lookups", h.lookups)
	g.GET("/discarded", h.discarded)
	g.GET("/tasks/:id", h.taskDetails)
	g.GET("/tasks/:id/comments", h.comments)
	g.POST("/tasks/:id/comments", h.addComment)

	g.POST("/boards", h.openBoard)
	g.GET("/boards/:id", h.snapshot)
	g.DELETE("/boards/:id", h.closeBoard)
	g.PUT("/boards/:id/filters", h.replaceFilters)
	g.DELETE("/boards/:id/filters", h.clearFilters)
	g.POST("/boards/:id/search", h.search)
	g.POST("/boards/:id/load-more", h.loadMore)
	g.POST("/boards/:id/moves", h.move)
	g.GET("/boards/:id/stream", h.stream)
}

// decodeBody reads a JSON body. An empty body leaves v untouched.
func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *handlers) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handlers) me(c echo.Context) error {
	return c.JSON(http.StatusOK, currentUser(c))
}

func (h *handlers) logout(c echo.Context) error {
	if err := h.auth.SignOut(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	closed := h.sessions.CloseOwner(currentUser(c).ID)
	h.logger.WithFields(log.Fields{"user": currentUser(c).ID, "sessions": closed}).Info("signed out")
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) lookups(c echo.Context) error {
	lk, err := gateway.LoadLookups(c.Request().Context(), h.svc)
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, lk)
}

func (h *handlers) discarded(c echo.Context) error {
	limit := h.opts.DiscardLimit
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.String(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	tasks, err := h.svc.Discarded(c.Request().Context(), limit)
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

func (h *handlers) taskDetails(c echo.Context) error {
	task, err := h.svc.TaskDetails(c.Request().Context(), c.Param("id"))
	if errors.Is(err, gateway.ErrNotFound) {
		return c.String(http.StatusNotFound, "task not found")
	}
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) comments(c echo.Context) error {
	list, err := h.svc.Comments(c.Request().Context(), c.Param("id"))
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if list == nil {
		list = []domain.Comment{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *handlers) addComment(c echo.Context) error {
	var req commentRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	comment, err := h.svc.AddComment(c.Request().Context(), c.Param("id"), req.Content, currentUser(c).Email)
	if errors.Is(err, gateway.ErrEmptyComment) {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, comment)
}

func (h *handlers) session(c echo.Context) (*board.Session, error) {
	s, err := h.sessions.Get(c.Param("id"), currentUser(c).ID)
	if err != nil {
		return nil, c.String(http.StatusNotFound, err.Error())
	}
	return s, nil
}

func (h *handlers) openBoard(c echo.Context) error {
	var req openBoardRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if req.Filters != nil {
		if err := req.Filters.Validate(); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
	}
	s, err := h.sessions.Open(currentUser(c).ID, req.Filters)
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, openBoardResponse{ID: s.ID, Snapshot: s.Store.Snapshot()})
}

func (h *handlers) snapshot(c echo.Context) (err error) {
	metrics, ctx := newBoardRequestMetrics(c.Request().Context(), h.logger, "/api/boards/:id")
	c.SetRequest(c.Request().WithContext(ctx))
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()
	metrics.ObserveAuth(authDuration(c))

	s, getErr := h.sessions.Get(c.Param("id"), currentUser(c).ID)
	if getErr != nil {
		metrics.SetErrorStage("session")
		return c.String(http.StatusNotFound, getErr.Error())
	}
	loadStart := time.Now()
	snap := s.Store.Snapshot()
	metrics.ObserveLoad(time.Since(loadStart))

	tasks, hasMore := 0, false
	for _, k := range domain.StatusKeys {
		tasks += len(snap.Columns[k])
		hasMore = hasMore || snap.HasMore[k]
	}
	metrics.SetSnapshot(tasks, hasMore, snap.Generation)

	encodeStart := time.Now()
	err = c.JSON(http.StatusOK, snap)
	metrics.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		metrics.SetErrorStage("encode_response")
	}
	return err
}

func (h *handlers) closeBoard(c echo.Context) error {
	if err := h.sessions.Close(c.Param("id"), currentUser(c).ID); err != nil {
		return c.String(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// replaceFilters swaps every predicate except the search text, which the
// search box owns.
func (h *handlers) replaceFilters(c echo.Context) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	var next domain.FilterSet
	if err := decodeBody(c, &next); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if _, err := s.Filters.Apply(board.ReplaceKeepingSearch(next)); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, s.Store.Snapshot())
}

func (h *handlers) clearFilters(c echo.Context) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	s.Search.Input("")
	s.Search.Flush()
	if _, err := s.Filters.Apply(board.ClearFilters()); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, s.Store.Snapshot())
}

func (h *handlers) search(c echo.Context) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	var req searchRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	s.Search.Input(req.Query)
	return c.JSON(http.StatusAccepted, searchResponse{Raw: s.Search.Raw(), Committed: s.Search.Committed()})
}

func (h *handlers) loadMore(c echo.Context) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	var req loadMoreRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	keys := make([]domain.StatusKey, 0, len(req.Columns))
	for _, raw := range req.Columns {
		k, err := domain.ParseStatusKey(raw)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		keys = append(keys, k)
	}
	// Loads run on the session context so a dropped request cannot mark a
	// column exhausted.
	s.Store.LoadMore(s.Context(), keys...)
	return c.JSON(http.StatusOK, s.Store.Snapshot())
}

func (h *handlers) move(c echo.Context) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	var req moveRequest
	if err := decodeBody(c, &req); err != nil || req.TaskID == "" {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if err := s.Drag.Begin(req.TaskID); err != nil {
		switch {
		case errors.Is(err, board.ErrUnknownTask):
			return c.String(http.StatusNotFound, err.Error())
		case errors.Is(err, board.ErrAlreadyDragging):
			return c.String(http.StatusConflict, err.Error())
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}
	res, err := s.Drag.Drop(s.Context(), req.OverID)
	if err != nil {
		return c.String(http.StatusConflict, err.Error())
	}
	resp := moveResponse{Moved: res.Moved, Column: string(res.Column), Index: res.Index}
	if res.Moved {
		resp.Task = &res.Task
	}
	if res.PersistErr != nil {
		resp.PersistError = res.PersistErr.Error()
	}
	return c.JSON(http.StatusOK, resp)
}
