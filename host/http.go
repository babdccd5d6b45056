package host

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aponysus/hostcall/classify"
)

// maxBody bounds the argument payload accepted over HTTP.
const maxBody = 1 << 20

type commandLister interface {
	Commands() []string
}

// NewHandler exposes h over HTTP:
//
//	POST /invoke/{command}  body: JSON object of args, reply: wire-encoded result
//	GET  /commands          JSON array of command names, when h can list them
//
// Transport failures are answered with a non-2xx status and an error envelope body.
func NewHandler(h Host) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke/{command}", func(w http.ResponseWriter, r *http.Request) {
		command := r.PathValue("command")

		var args map[string]any
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			writeFault(w, http.StatusBadRequest, err)
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &args); err != nil {
				writeFault(w, http.StatusBadRequest, err)
				return
			}
		}

		raw, err := h.Invoke(r.Context(), command, args)
		if err != nil {
			status := http.StatusBadGateway
			var unknown *UnknownCommandError
			if errors.As(err, &unknown) {
				status = http.StatusNotFound
			}
			writeFault(w, status, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	})

	mux.HandleFunc("GET /commands", func(w http.ResponseWriter, r *http.Request) {
		lister, ok := h.(commandLister)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(lister.Commands())
	})
	return mux
}

func writeFault(w http.ResponseWriter, status int, err error) {
	env := classify.Normalize(err)
	env.StatusCode = status
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
