// Package api is the HTTP surface of the board service.
package api

import (
	"context"
	"errors"

	"taskboard/domain"
)

var ErrSessionNotFound = errors.New("board session not found")

// Authenticator is implemented by types able to resolve users from headers.
type Authenticator interface {
	UserFromAuthHeader(ctx context.Context, h string) (domain.User, error)
	SignOut(ctx context.Context, h string) error
}

type openBoardRequest struct {
	Filters *domain.FilterSet `json:"filters,omitempty"`
}

type openBoardResponse struct {
	ID       string `json:"id"`
	Snapshot any    `json:"snapshot"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Raw       string `json:"raw"`
	Committed string `json:"committed"`
}

type loadMoreRequest struct {
	Columns []string `json:"columns,omitempty"`
}

type moveRequest struct {
	TaskID string `json:"taskId"`
	OverID string `json:"overId"`
}

type moveResponse struct {
	Moved        bool         `json:"moved"`
	Task         *domain.Task `json:"task,omitempty"`
	Column       string       `json:"column,omitempty"`
	Index        int          `json:"index"`
	PersistError string       `json:"persistError,omitempty"`
}

type commentRequest struct {
	Content string `json:"content"`
}
