// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON entry bodies, path identifiers and history query filters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/splvrdge/savr/internal/core"
)

const maxBodyBytes = 64 << 10

var errAmountRequired = fmt.Errorf("%w: amount is required", core.ErrValidation)

// entryRequest is the body of income and expense writes. Amount accepts a
// JSON string ("12.34") or a JSON number.
type entryRequest struct {
	Amount      *core.Money `json:"amount"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
}

// DecodeEntry reads an entry from a JSON request body.
func DecodeEntry(w http.ResponseWriter, r *http.Request) (core.Entry, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req entryRequest
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return core.Entry{}, fmt.Errorf("%w: request body too large", core.ErrValidation)
		case errors.Is(err, io.EOF):
			return core.Entry{}, fmt.Errorf("%w: request body is empty", core.ErrValidation)
		case errors.Is(err, core.ErrValidation):
			return core.Entry{}, err
		default:
			return core.Entry{}, fmt.Errorf("%w: malformed JSON body", core.ErrValidation)
		}
	}
	if dec.More() {
		return core.Entry{}, fmt.Errorf("%w: body must contain a single JSON object", core.ErrValidation)
	}
	if req.Amount == nil {
		return core.Entry{}, errAmountRequired
	}

	return core.Entry{
		Amount:      *req.Amount,
		Description: sanitizeInput(req.Description),
		Category:    sanitizeInput(req.Category),
	}, nil
}

// PathID parses a positive integer path value such as {incomeID}.
func PathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid %s %q", core.ErrValidation, name, raw)
	}
	return id, nil
}

// ParseHistoryFilter reads start_date, end_date, type, category, limit and
// offset. Limit defaults and caps are applied by the reporting service.
func ParseHistoryFilter(query url.Values) (core.HistoryFilter, error) {
	var f core.HistoryFilter
	var err error

	if v := strings.TrimSpace(query.Get("start_date")); v != "" {
		if f.Start, err = core.ParseDate(v); err != nil {
			return f, fmt.Errorf("start_date: %w", err)
		}
	}
	if v := strings.TrimSpace(query.Get("end_date")); v != "" {
		if f.End, err = core.ParseDate(v); err != nil {
			return f, fmt.Errorf("end_date: %w", err)
		}
	}
	if f.Type, err = core.ParseTransactionType(query.Get("type")); err != nil {
		return f, err
	}
	f.Category = sanitizeInput(query.Get("category"))

	if f.Limit, err = queryInt(query, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(query, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func queryInt(query url.Values, key string) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", core.ErrValidation, key)
	}
	return n, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
