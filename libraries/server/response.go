package server

import (
	"net/http"

	"github.com/greymass/ramindex/libraries/encoding"
)

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := encoding.JSONiter.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

// WriteError writes {"error":{"kind":...,"message":...}}.
func WriteError(w http.ResponseWriter, status int, kind, message string) {
	WriteJSON(w, status, errorEnvelope{Error: ErrorBody{Kind: kind, Message: message}})
}
