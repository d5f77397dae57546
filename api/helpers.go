package api

import (
	"encoding/json"
	"net/http"

	"github.com/algorank/algorank-node/log"
)

// httpWriteJSON writes data as a JSON response with status 200.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(jdata, '\n')); err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
}

// httpWriteOK writes an empty response with status 200.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}
