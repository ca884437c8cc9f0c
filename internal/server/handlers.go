package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/cache"
	"github.com/Jyllands-Posten/solrprocessors/internal/document"
	"github.com/Jyllands-Posten/solrprocessors/internal/pipeline"
	"github.com/Jyllands-Posten/solrprocessors/internal/store"
	"github.com/Jyllands-Posten/solrprocessors/internal/websocket"
)

// documentResponse is the processed form of one submitted document
type documentResponse struct {
	Document document.Document `json:"document"`
	Modified []string          `json:"modified"`
	Cached   bool              `json:"cached"`
}

type batchResponse struct {
	Documents []*documentResponse `json:"documents"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	p := s.Pipeline()
	info := map[string]any{
		"name":              "solrproc",
		"version":           Version,
		"uptime":            time.Since(s.started).Round(time.Second).String(),
		"pipeline":          p.Name(),
		"stages":            p.Stages(),
		"fingerprint":       p.Fingerprint(),
		"cache_enabled":     s.cache != nil,
		"store_enabled":     s.store != nil,
		"rate_limit":        s.limiter != nil,
		"websocket_enabled": s.wsHub != nil,
	}
	if s.wsHub != nil {
		info["websocket"] = s.wsHub.GetStats()
	}
	writeJSON(w, http.StatusOK, info)
}

// handleDocuments runs the submitted documents through the whole pipeline
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	s.serveDocuments(w, r, s.Pipeline())
}

// handleProcessorDocuments runs the submitted documents through one processor
func (s *Server) handleProcessorDocuments(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	p, ok := s.Pipeline().Stage(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown processor %q", name))
		return
	}
	s.serveDocuments(w, r, p)
}

// handleStoredDocument returns the latest stored version of a document
func (s *Server) handleStoredDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.store.GetLatest(r.Context(), id)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to load document", zap.String("doc_id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "document store unavailable")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("document %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) serveDocuments(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline) {
	docs, batch, err := decodeDocuments(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	responses := make([]*documentResponse, 0, len(docs))
	records := make([]*store.ProcessedDocument, 0, len(docs))

	for _, doc := range docs {
		resp, err := s.processDocument(ctx, p, doc)
		if err != nil {
			s.logger.WithRequestID(getRequestID(ctx)).Error("Document processing failed", zap.Error(err))
			status := http.StatusInternalServerError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusServiceUnavailable
			}
			writeError(w, status, err.Error())
			return
		}
		responses = append(responses, resp)

		if s.store != nil && !resp.Cached {
			rec, err := store.NewRecord(s.docID(doc), p.Name(), p.Fingerprint(), resp.Document, resp.Modified)
			if err == nil {
				records = append(records, rec)
			}
		}
	}

	s.persist(ctx, records)

	if !batch {
		writeJSON(w, http.StatusOK, responses[0])
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Documents: responses})
}

// processDocument serves doc from the cache when possible, otherwise runs it
// through p and caches the result. Cache failures never fail the request.
func (s *Server) processDocument(ctx context.Context, p *pipeline.Pipeline, doc document.Document) (*documentResponse, error) {
	ctx = context.WithValue(ctx, docIDKey, s.docID(doc))
	log := s.logger.WithRequestID(getRequestID(ctx))

	if s.cache != nil {
		start := time.Now()
		cached, ok, err := s.cache.Get(ctx, p.Fingerprint(), doc)
		if err != nil {
			log.Warn("Result cache lookup failed", zap.Error(err))
		}
		if ok {
			modified := cached.Modified
			if modified == nil {
				modified = []string{}
			}
			s.broadcastDocument(ctx, pipeline.Event{Pipeline: p.Name(), Modified: modified, Duration: time.Since(start)}, true)
			return &documentResponse{Document: cached.Document, Modified: modified, Cached: true}, nil
		}
	}

	res, err := p.Process(ctx, doc)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		entry := &cache.CachedResult{Fingerprint: p.Fingerprint(), Document: res.Document, Modified: res.Modified}
		if err := s.cache.Set(ctx, doc, entry); err != nil {
			log.Warn("Failed to cache result", zap.Error(err))
		}
	}

	return &documentResponse{Document: res.Document, Modified: res.Modified}, nil
}

// persist stores processed documents. Failures are logged only.
func (s *Server) persist(ctx context.Context, records []*store.ProcessedDocument) {
	if s.store == nil || len(records) == 0 {
		return
	}
	var err error
	if len(records) == 1 {
		err = s.store.Insert(ctx, records[0])
	} else {
		_, err = s.store.BatchInsert(ctx, records)
	}
	if err != nil {
		s.logger.WithRequestID(getRequestID(ctx)).Warn("Failed to store processed documents",
			zap.Int("documents", len(records)),
			zap.Error(err))
	}
}

// broadcastProcessed publishes a pipeline event to WebSocket clients
func (s *Server) broadcastProcessed(ctx context.Context, ev pipeline.Event) {
	s.broadcastDocument(ctx, ev, false)
}

func (s *Server) broadcastDocument(ctx context.Context, ev pipeline.Event, cached bool) {
	if s.wsHub == nil {
		return
	}
	data := websocket.DocumentProcessedEvent{
		Pipeline:     ev.Pipeline,
		DocID:        getDocID(ctx),
		Modified:     ev.Modified,
		Cached:       cached,
		ProcessingMS: float64(ev.Duration.Microseconds()) / 1000,
	}
	if ev.Err != nil {
		data.Error = ev.Err.Error()
	}
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeDocumentProcessed,
		RequestID: getRequestID(ctx),
		Data:      data,
	})
}

func (s *Server) docID(doc document.Document) string {
	if id, ok := doc[s.config.ETL.IDField]; ok {
		return fmt.Sprint(id)
	}
	return ""
}

// decodeDocuments reads either a single JSON object or an array of objects.
// Numbers are kept as json.Number so they round-trip unchanged.
func decodeDocuments(body io.Reader) ([]document.Document, bool, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, false, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false, errors.New("empty request body")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '[' {
		var docs []document.Document
		if err := dec.Decode(&docs); err != nil {
			return nil, false, fmt.Errorf("invalid document array: %w", err)
		}
		for i, doc := range docs {
			if doc == nil {
				return nil, false, fmt.Errorf("document %d is not an object", i)
			}
		}
		return docs, true, nil
	}

	var doc document.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("invalid document: %w", err)
	}
	if doc == nil {
		return nil, false, errors.New("document must be a JSON object")
	}
	return []document.Document{doc}, false, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
