// Package api serves stored analysis runs over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/msod/internal/db"
	"github.com/banshee-data/msod/internal/httputil"
	"github.com/banshee-data/msod/internal/report"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const maxListLimit = 1000

type Server struct {
	store *db.RunStore
}

func NewServer(store *db.RunStore) *Server {
	return &Server{store: store}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.deleteRun)
	mux.HandleFunc("GET /api/runs/{id}/loci", s.listLoci)
	mux.HandleFunc("GET /api/runs/{id}/spectrum", s.getSpectrum)
	mux.HandleFunc("GET /api/runs/{id}/chart", s.chart)
	return mux
}

// writeStoreError maps store errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			httputil.BadRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
			return
		}
		limit = n
	}
	runs, err := s.store.List(limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if runs == nil {
		runs = []*db.Run{}
	}
	httputil.WriteJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listLoci(w http.ResponseWriter, r *http.Request) {
	loci, err := s.store.Loci(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if r.URL.Query().Get("outliers") == "true" {
		kept := loci[:0]
		for _, l := range loci {
			if l.MSODOutlier || l.MSROutlier {
				kept = append(kept, l)
			}
		}
		loci = kept
	}
	httputil.WriteJSON(w, http.StatusOK, loci)
}

func (s *Server) getSpectrum(w http.ResponseWriter, r *http.Request) {
	sp, err := s.store.Spectrum(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sp)
}

func (s *Server) chart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.store.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	loci, err := s.store.Loci(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	sp, err := s.store.Spectrum(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	page, err := report.HTML(report.ChartData{
		Title:        fmt.Sprintf("%s (%s)", run.Dataset, run.RunID),
		Habitat:      run.Habitat,
		Loci:         loci,
		MeanPower:    sp.MeanPower,
		HabitatPower: sp.HabitatPower,
		MoranI:       sp.MoranI,
	})
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteHTML(w, page)
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	log.Printf("HTTP server stopped")
	return nil
}
