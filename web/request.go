package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/adamwoolhether/reposearch/web/errs"
)

// maxBodySize caps JSON and form bodies.
const maxBodySize = 64 << 10 // 64KB

// QueryBool parses the query parameter key as a bool. A missing parameter
// yields def.
func QueryBool(r *http.Request, key string, def bool) (bool, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return def, nil
	}

	v, err := strconv.ParseBool(val)
	if err != nil {
		return false, errs.NewFieldsError(key, fmt.Errorf("must be boolean"))
	}

	return v, nil
}

// FormString returns the trimmed form value for key. The form is parsed
// on first use.
func FormString(w http.ResponseWriter, r *http.Request, key string) (string, error) {
	if err := parseForm(w, r); err != nil {
		return "", err
	}

	return strings.TrimSpace(r.PostForm.Get(key)), nil
}

// FormInt parses the form value for key as an int. ok is false when the
// value is absent.
func FormInt(w http.ResponseWriter, r *http.Request, key string) (v int, ok bool, err error) {
	raw, err := FormString(w, r, key)
	if err != nil || raw == "" {
		return 0, false, err
	}

	v, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, errs.NewFieldsError(key, fmt.Errorf("must be an integer"))
	}

	return v, true, nil
}

func parseForm(w http.ResponseWriter, r *http.Request) error {
	if r.PostForm != nil {
		return nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseForm(); err != nil {
		return errs.New(http.StatusBadRequest, fmt.Errorf("parsing form: %w", err))
	}

	return nil
}

// Decode reads the body of an HTTP request looking for a JSON document. The
// body is decoded into the provided value and checked for validation tags.
// Unknown fields are rejected.
func Decode[T any](w http.ResponseWriter, r *http.Request, val *T) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		return errs.New(http.StatusBadRequest, fmt.Errorf("decode: %w", err))
	}

	if err := Validate(val); err != nil {
		return err
	}

	return nil
}
