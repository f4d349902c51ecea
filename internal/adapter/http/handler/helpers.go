package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	t "github.com/Temutjin2k/hust-run/internal/domain/types"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, data envelope, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return errors.New("failed to encode json")
	}

	js = append(js, '\n')

	maps.Copy(w.Header(), headers)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)

	return nil
}

func errorResponse(w http.ResponseWriter, status int, message any) {
	env := envelope{"error": message}

	if err := writeJSON(w, status, env, nil); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// failedValidationResponse returns 422 UnprocessableEntity status.
func failedValidationResponse(w http.ResponseWriter, errors map[string]string) {
	errorResponse(w, http.StatusUnprocessableEntity, errors)
}

// errResponse maps err to a status. Server-side failures hide the error text.
func errResponse(w http.ResponseWriter, err error) {
	code := GetCode(err)
	if code == http.StatusInternalServerError {
		errorResponse(w, code, "the server encountered a problem and could not process your request")
		return
	}
	errorResponse(w, code, err.Error())
}

func GetCode(err error) int {
	switch {
	case IsOneOf(err, t.ErrSessionNotFound, t.ErrNotFound):
		return http.StatusNotFound
	case IsOneOf(err, t.ErrInvalidTransition, t.ErrDuplicateFinalize, t.ErrDeviceBusy):
		return http.StatusConflict
	case IsOneOf(err, t.ErrInvalidRoute):
		return http.StatusBadRequest
	case IsOneOf(err, t.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func IsOneOf(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// parseFilter reads route_id, status, since, until and limit from the query.
func parseFilter(r *http.Request) (models.HistoryFilter, map[string]string) {
	q := r.URL.Query()
	problems := make(map[string]string)

	f := models.HistoryFilter{
		RouteID: q.Get("route_id"),
		Status:  t.SessionState(q.Get("status")),
	}

	for key, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			problems[key] = "must be an RFC3339 timestamp"
			continue
		}
		*dst = ts
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			problems["limit"] = "must be an integer"
		} else {
			f.Limit = n
		}
	}

	if len(problems) == 0 {
		if err := f.Validate(); err != nil {
			problems["filter"] = err.Error()
		}
	}
	if len(problems) > 0 {
		return f, problems
	}
	return f, nil
}

func pathID(r *http.Request, name string) (string, error) {
	id := r.PathValue(name)
	if id == "" {
		return "", fmt.Errorf("missing %s", name)
	}
	return id, nil
}
