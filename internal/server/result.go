package server

import (
	"net/http"
	"strings"

	"github.com/devghori1264/quads/internal/models"
)

// Result is the outcome of one handler operation, independent of the
// transport. Status is an HTTP status code.
type Result struct {
	Status   int
	Messages []string
	Docs     []models.Document

	list bool
	bare bool
}

// Payload is the JSON body for the result: the document array for list
// operations, {"result": [...]} otherwise.
func (r Result) Payload() any {
	switch {
	case r.list:
		if r.Docs == nil {
			return []models.Document{}
		}
		return r.Docs
	case r.bare && len(r.Messages) == 1:
		return map[string]any{"result": r.Messages[0]}
	default:
		msgs := r.Messages
		if msgs == nil {
			msgs = []string{}
		}
		return map[string]any{"result": msgs}
	}
}

// OK reports a 2xx status.
func (r Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

func listed(docs []models.Document) Result {
	return Result{Status: http.StatusOK, Docs: docs, list: true}
}

func message(status int, msg string) Result {
	return Result{Status: status, Messages: []string{msg}}
}

func invalid(problems []string) Result {
	return message(http.StatusBadRequest, "Data validation failed: "+strings.Join(problems, ", "))
}

func failed(err error) Result {
	return message(http.StatusInternalServerError, "Error: "+err.Error())
}
