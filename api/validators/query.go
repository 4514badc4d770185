package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
)

type intRange struct {
	fallback, lo, hi int
}

func queryInt(r *http.Request, key string, bounds intRange) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return bounds.fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid query parameter").
			WithDetails(map[string]string{key: "must be an integer"})
	}
	if n < bounds.lo || n > bounds.hi {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid query parameter").
			WithDetails(map[string]string{key: "must be between " + strconv.Itoa(bounds.lo) + " and " + strconv.Itoa(bounds.hi)})
	}
	return n, nil
}

// ParsePagination reads ?limit and ?cursor. The cursor is opaque here and is
// decoded by the repository that issued it.
func ParsePagination(r *http.Request) (pagination.Params, error) {
	limit, err := queryInt(r, "limit", intRange{fallback: pagination.DefaultLimit, lo: 1, hi: pagination.MaxLimit})
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
