package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/etnz/fiscal/renderer"
	"github.com/etnz/fiscal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/subcommands"
)

type serveCmd struct {
	addr string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the stored runs over HTTP" }
func (*serveCmd) Usage() string {
	return `fsc serve [-addr <host:port>]

  Serves the stored runs as read only JSON.

  See 'fsc topic serve'.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "localhost:8080", "Address to listen on")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := OpenStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	srv := &http.Server{
		Addr:              c.addr,
		Handler:           newRouter(s),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	fmt.Fprintf(os.Stderr, "Serving %s on http://%s\n", DBPath(), c.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// runHandler serves the runs of a store.
type runHandler struct {
	store *store.Store
}

func newRouter(s *store.Store) http.Handler {
	h := &runHandler{store: s}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Get("/runs", h.listRuns)
	r.Route("/runs/{id}", func(r chi.Router) {
		r.Get("/", h.getReport)
		r.Get("/events", h.getEvents)
		r.Get("/ledger", h.getLedger)
	})
	return r
}

func sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("could not write response: %v", err)
	}
}

func sendJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// run loads the run named by the id path parameter, or writes the error.
func (h *runHandler) run(w http.ResponseWriter, r *http.Request) (store.Run, bool) {
	run, err := loadRun(r.Context(), h.store, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendJSONError(w, err.Error(), http.StatusNotFound)
		return run, false
	case err != nil:
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return run, false
	}
	return run, true
}

func (h *runHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.Runs(r.Context())
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for i := range runs {
		runs[i].Ledger = nil
	}
	if runs == nil {
		runs = []store.Run{}
	}
	sendJSON(w, runs)
}

func (h *runHandler) getReport(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	report, err := runReport(r.Context(), h.store, run, r.URL.Query().Get("fy"))
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSON(w, report)
}

func (h *runHandler) getEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	fy := r.URL.Query().Get("fy")
	events, err := h.store.Events(r.Context(), run.ID, fy)
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSON(w, &renderer.Events{FiscalYear: fy, Events: events})
}

func (h *runHandler) getLedger(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	sendJSON(w, renderer.NewLedger(run.Ledger, r.URL.Query().Get("all") == "true"))
}
