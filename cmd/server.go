package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"ecg"
	"ecg/Population"
	"ecg/Store"

	"github.com/gorilla/mux"
)

// analyzeRequest POST /api/analyze 的请求体
type analyzeRequest struct {
	ID         string            `json:"id"`
	SampleRate float64           `json:"sample_rate"`
	Header     map[string]string `json:"header"`
	Samples    []float64         `json:"samples"`
}

// server HTTP 接口。没有 Store 时结果只保存在内存里
type server struct {
	analyzer *ecg.Analyzer
	store    *Store.Store
	runID    string

	mu      sync.Mutex
	records []ecg.AnalysisRecord
}

func newServer(analyzer *ecg.Analyzer, st *Store.Store) *server {
	return &server{analyzer: analyzer, store: st}
}

func (s *server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(logMiddleware)
	router.Use(corsMiddleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/analyze", s.handleAnalyze).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/records", s.handleRecords).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/records/{id}", s.handleRecord).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/population", s.handlePopulation).Methods("GET", "OPTIONS")
	return router
}

func serve(ctx context.Context, addr string, s *server) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[HTTP] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := s.analyzer.Analyze(req.ID, ecg.Header(req.Header), ecg.SampleSeries{
		Samples: req.Samples,
		Rate:    req.SampleRate,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ecg.ErrMalformedInput) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	if err := s.save(r.Context(), rec); err != nil {
		log.Printf("[HTTP] save %s failed: %v", rec.ID, err)
		http.Error(w, "failed to save record", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *server) save(ctx context.Context, rec *ecg.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		// 同一 ID 覆盖旧结果，与 Store 的语义一致
		for i := range s.records {
			if s.records[i].ID == rec.ID {
				s.records[i] = *rec
				return nil
			}
		}
		s.records = append(s.records, *rec)
		return nil
	}

	if s.runID == "" {
		id, err := s.store.BeginRun(ctx, "serve")
		if err != nil {
			return err
		}
		s.runID = id
	}
	return s.store.SaveRecord(ctx, s.runID, rec)
}

func (s *server) corpus(ctx context.Context) ([]ecg.AnalysisRecord, error) {
	if s.store != nil {
		return s.store.LoadCorpus(ctx, false)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ecg.AnalysisRecord(nil), s.records...), nil
}

func (s *server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.corpus(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, Population.SortByDate(records))
}

func (s *server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if s.store != nil {
		rec, err := s.store.LoadRecord(r.Context(), id)
		if errors.Is(err, Store.ErrNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, rec)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			respondJSON(w, http.StatusOK, s.records[i])
			return
		}
	}
	http.Error(w, "record not found", http.StatusNotFound)
}

func (s *server) handlePopulation(w http.ResponseWriter, r *http.Request) {
	records, err := s.corpus(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	cfg := s.analyzer.Config()
	respondJSON(w, http.StatusOK, Population.Analyze(records, cfg.Population))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] encode response failed: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder 记录响应码用于日志
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[HTTP] %s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
