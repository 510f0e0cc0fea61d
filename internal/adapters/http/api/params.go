package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/scope"
)

// scopeFrom reads context, group_id and segment from the query.
func scopeFrom(q url.Values) (model.Scope, error) {
	return scope.Parse(q.Get("context"), q.Get("group_id"), q.Get("segment"))
}

// csv splits a comma separated value, dropping blanks.
func csv(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// intParam returns 0 for an absent parameter.
func intParam(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer: %w", name, ErrInvalidQuery)
	}
	return n, nil
}

// floatParam returns 0 for an absent parameter.
func floatParam(q url.Values, name string) (float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%s must be a positive number: %w", name, ErrInvalidQuery)
	}
	return f, nil
}
