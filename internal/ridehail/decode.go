package ridehail

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrMalformed is returned when a response body is not the JSON we expect.
var ErrMalformed = errors.New("malformed response body")

// The service wraps entities ({"ride": {...}}, {"drivers": [...]}) while
// older deployments answer with flat bodies ({"ride_id": ...}, [...]).
// Both are accepted.

func decodeObject(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, ErrMalformed
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return gjson.Result{}, ErrMalformed
	}
	return root, nil
}

// firstString returns the first of paths that holds a non-empty value.
func firstString(root gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() && v.Type != gjson.Null && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// decodeRideID extracts the id of a newly requested ride, or "" if the
// body has none.
func decodeRideID(body []byte) (string, error) {
	root, err := decodeObject(body)
	if err != nil {
		return "", err
	}
	return firstString(root, "ride_id", "ride.id"), nil
}

// decodeStatus extracts a ride status, or "" if the body has none.
func decodeStatus(body []byte) (string, error) {
	root, err := decodeObject(body)
	if err != nil {
		return "", err
	}
	return firstString(root, "status", "ride.status"), nil
}

// decodeFirstID returns the id of the first element of a list response.
// The list is either the body itself or the array under key. An empty or
// absent list yields "".
func decodeFirstID(body []byte, key string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", ErrMalformed
	}

	list := gjson.ParseBytes(body)
	if list.IsObject() {
		list = list.Get(key)
	}
	if !list.Exists() || list.Type == gjson.Null {
		return "", nil
	}
	if !list.IsArray() {
		return "", ErrMalformed
	}

	first := list.Get("0")
	if !first.Exists() {
		return "", nil
	}
	id := firstString(first, "id")
	if id == "" {
		return "", ErrMalformed
	}
	return id, nil
}
