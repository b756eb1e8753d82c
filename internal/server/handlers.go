package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/skycast-ai/skycast/internal/agent"
	"github.com/skycast-ai/skycast/internal/cache"
	"github.com/skycast-ai/skycast/internal/semcache"
	"github.com/skycast-ai/skycast/internal/weather"
)

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// handleChat runs one message through the assistant pipeline. The shared
// response cache answers exact repeats before the pipeline runs at all.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	log := s.logger.WithRequestID(requestID)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	var responseKey string
	if s.deps.ResponseCache != nil {
		responseKey = s.deps.ResponseCache.ResponseKey("", req.Message)
		if cached, ok := s.deps.ResponseCache.Get(r.Context(), responseKey); ok {
			log.Info("Serving response from shared cache",
				zap.String("type", cached.Type))
			writeJSON(w, http.StatusOK, agent.Response{
				Type:    cached.Type,
				Message: cached.Message,
				Timings: []agent.OperationTiming{},
			})
			return
		}
	}

	resp, err := s.deps.Agent.HandleMessage(r.Context(), req.Message)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, agent.ErrCityUndetermined):
			status = http.StatusBadRequest
		case errors.Is(err, weather.ErrCityNotFound):
			status = http.StatusNotFound
		}
		log.Error("Chat request failed", zap.Int("status", status), zap.Error(err))
		writeError(w, status, err.Error())
		return
	}

	if s.deps.ResponseCache != nil {
		city := ""
		if resp.Data != nil {
			city = resp.Data.NormalizedCity
		}
		if err := s.deps.ResponseCache.Set(r.Context(), responseKey, &cache.CachedResponse{
			Type:    resp.Type,
			Message: resp.Message,
			City:    city,
		}); err != nil {
			log.Warn("Failed to store response in shared cache", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo reports build and cache configuration
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":               "skycast",
		"version":            "0.1.0",
		"llm_model":          s.config.Upstream.LLM.Model,
		"embedding_model":    s.config.Upstream.Embedding.Model,
		"analysis_threshold": s.config.Cache.Semantic.AnalysisThreshold,
		"chat_threshold":     s.config.Cache.Semantic.ChatThreshold,
		"cache_ttl":          s.config.Cache.Semantic.TTL.String(),
	})
}

type statsResponse struct {
	AnalysisCache semcache.Stats `json:"analysis_cache"`
	ChatCache     semcache.Stats `json:"chat_cache"`
	ResponseCache *cache.Stats   `json:"response_cache,omitempty"`
	Events        interface{}    `json:"events"`
}

// handleStats reports cache and event hub counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		AnalysisCache: s.deps.AnalysisCache.Stats(),
		ChatCache:     s.deps.ChatCache.Stats(),
		Events:        s.deps.Hub.GetStats(),
	}

	if s.deps.ResponseCache != nil {
		if redisStats, err := s.deps.ResponseCache.GetStats(r.Context()); err == nil {
			resp.ResponseCache = redisStats
		} else {
			s.logger.Warn("Failed to read response cache stats", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleExport writes a Parquet snapshot of both semantic caches
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot export is not configured")
		return
	}

	path, rows, err := s.deps.Exporter.Export(map[string][]semcache.Entry{
		"analysis": s.deps.AnalysisCache.Snapshot(),
		"chat":     s.deps.ChatCache.Snapshot(),
	})
	if err != nil {
		s.logger.Error("Snapshot export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "snapshot export failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path": path,
		"rows": rows,
	})
}

// handleCacheClear empties the semantic caches and the shared response cache
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	analysisDropped := s.deps.AnalysisCache.Clear()
	chatDropped := s.deps.ChatCache.Clear()

	if s.deps.ResponseCache != nil {
		if err := s.deps.ResponseCache.Clear(r.Context()); err != nil {
			s.logger.Error("Failed to clear response cache", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to clear response cache")
			return
		}
	}

	s.logger.Info("Caches cleared",
		zap.Int("analysis_dropped", analysisDropped),
		zap.Int("chat_dropped", chatDropped))
	writeJSON(w, http.StatusOK, map[string]int{
		"analysis_dropped": analysisDropped,
		"chat_dropped":     chatDropped,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
