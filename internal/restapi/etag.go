package restapi

import (
	"crypto/sha1"
	"fmt"
	"net/http"
	"strings"
)

// bytesToEtag hashes a canonical JSON body into a weak-free quoted ETag,
// ported verbatim from core/backend/backend.go's bytesToEtag.
func bytesToEtag(b []byte) string {
	return fmt.Sprintf("\"%x\"", sha1.Sum(b))
}

// matchesAny reports whether etag matches any entry of a comma-separated
// If-Match/If-None-Match header value, or the header is "*".
func matchesAny(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimSpace(candidate) == etag {
			return true
		}
	}
	return false
}

// checkIfMatch implements spec.md §4.8 step 6: when If-Match is present,
// a GET is performed internally against the same resource, its SHA-1 etag
// computed, and compared against the request's comma-separated etag list.
// currentBody is the canonical JSON of that internal GET; it is nil when
// the resource does not support one (e.g. a fresh POST target).
//
// Returns (etag, matched). When If-Match is absent, matched is always true
// (the precondition doesn't apply) and etag is still returned so callers
// can set the response ETag header.
func checkIfMatch(r *http.Request, currentBody []byte) (etag string, matched bool) {
	etag = bytesToEtag(currentBody)
	ifMatch := r.Header.Get("If-Match")
	if ifMatch == "" {
		return etag, true
	}
	return etag, matchesAny(ifMatch, etag)
}

// checkIfNoneMatch implements the GET-side counterpart: If-None-Match
// matching means "already have this, respond 304".
func checkIfNoneMatch(r *http.Request, etag string) bool {
	return matchesAny(r.Header.Get("If-None-Match"), etag)
}
