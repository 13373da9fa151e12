package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
)

// queryParam parses an optional query value. Blank values yield fallback and
// parse failures become validation errors naming the field.
func queryParam[T any](r *http.Request, key string, fallback T, parse func(string) (T, error), kind string) (T, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "query parameter must be "+kind).
			WithDetails(map[string]any{"field": key})
	}
	return v, nil
}

// ParseQueryInt reads an integer query parameter bounded by [lo, hi].
func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	v, err := queryParam(r, key, fallback, strconv.Atoi, "numeric")
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi})
	}
	return v, nil
}

// ParseQueryBool reads a flag such as unreadOnly=true.
func ParseQueryBool(r *http.Request, key string, fallback bool) (bool, error) {
	return queryParam(r, key, fallback, strconv.ParseBool, "a boolean")
}

// ParseQueryUUID reads an optional id filter; absent values return uuid.Nil.
func ParseQueryUUID(r *http.Request, key string) (uuid.UUID, error) {
	return queryParam(r, key, uuid.Nil, uuid.Parse, "a uuid")
}
