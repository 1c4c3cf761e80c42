package read

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/schema"
)

// reservedParams are the query parameters with a fixed meaning; every other
// parameter name is a per-column filter, per spec.md §4.4.
var reservedParams = map[string]bool{
	"depth": true, "selector": true, "sort": true,
	"offset": true, "limit": true, "keys": true,
}

// SortKey is one element of a sort= query parameter.
type SortKey struct {
	Column string
	Desc   bool
}

// Params is the parsed, validated set of query parameters for one request.
type Params struct {
	Depth    int
	Selector schema.Category // "" means all three buckets
	Sort     []SortKey
	Offset   *int
	Limit    *int
	Keys     []string
	Filters  map[string]string // raw string values, coerced per-column by the Engine
}

// ParseParams validates values against the rules in spec.md §4.4 and §4.8
// step 5: collection-only parameters are rejected on instance URIs and
// whenever depth==0, and selector must be one of the three buckets.
func ParseParams(values url.Values, isCollection bool) (*Params, error) {
	p := &Params{Filters: make(map[string]string)}

	depth := 0
	if raw := values.Get("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 || d > 10 {
			return nil, apierr.New(apierr.ParameterNotAllowed, "depth must be an integer in [0,10]")
		}
		depth = d
	}
	p.Depth = depth

	if raw := values.Get("selector"); raw != "" {
		switch schema.Category(raw) {
		case schema.Configuration, schema.Status, schema.Statistics:
			p.Selector = schema.Category(raw)
		default:
			return nil, apierr.New(apierr.ParameterNotAllowed, "selector must be one of configuration, status, statistics")
		}
	}

	collectionParamsUsed := values.Get("sort") != "" || values.Get("offset") != "" ||
		values.Get("limit") != "" || values.Get("keys") != ""
	for key := range values {
		if !reservedParams[key] {
			collectionParamsUsed = true
		}
	}

	if collectionParamsUsed {
		if !isCollection {
			return nil, apierr.New(apierr.ParameterNotAllowed, "sort/offset/limit/keys/filters are only valid on collection URIs")
		}
		if depth == 0 {
			return nil, apierr.New(apierr.ParameterNotAllowed, "sort/offset/limit/keys/filters require depth>0")
		}
	}

	if raw := values.Get("sort"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key := SortKey{Column: part}
			if strings.HasPrefix(part, "-") {
				key.Desc = true
				key.Column = part[1:]
			}
			p.Sort = append(p.Sort, key)
		}
	}

	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, apierr.New(apierr.ParameterNotAllowed, "offset must be a non-negative integer")
		}
		p.Offset = &n
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, apierr.New(apierr.ParameterNotAllowed, "limit must be a non-negative integer")
		}
		p.Limit = &n
	}
	if raw := values.Get("keys"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				p.Keys = append(p.Keys, k)
			}
		}
	}

	for key, vals := range values {
		if reservedParams[key] || len(vals) == 0 {
			continue
		}
		p.Filters[key] = vals[0]
	}

	return p, nil
}
