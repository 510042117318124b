package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vgrishin/docingest/internal/core/ports"
	"github.com/vgrishin/docingest/internal/core/usecase"
	"github.com/vgrishin/docingest/internal/observability/metrics"
)

// Stages maps each externally-invoked pipeline stage to its endpoint name.
type Stages struct {
	Split     ports.PipelineStage
	Aggregate ports.PipelineStage
	Embed     ports.PipelineStage
	Enrich    ports.PipelineStage
	Reconcile ports.PipelineStage
	Jobs      ports.PipelineStage
}

type Router struct {
	ingestUC *usecase.IngestDocumentUseCase
	queryUC  *usecase.DocumentQueryUseCase
	stages   Stages
	metrics  *metrics.HTTPServerMetrics
	service  string
}

func NewRouter(
	ingestUC *usecase.IngestDocumentUseCase,
	queryUC *usecase.DocumentQueryUseCase,
	stages Stages,
	m *metrics.HTTPServerMetrics,
	service string,
) *Router {
	return &Router{
		ingestUC: ingestUC,
		queryUC:  queryUC,
		stages:   stages,
		metrics:  m,
		service:  service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocument)
	mux.HandleFunc("/v1/pipeline/split", rt.stageHandler(rt.stages.Split))
	mux.HandleFunc("/v1/pipeline/aggregate", rt.stageHandler(rt.stages.Aggregate))
	mux.HandleFunc("/v1/pipeline/embed", rt.stageHandler(rt.stages.Embed))
	mux.HandleFunc("/v1/pipeline/enrich", rt.stageHandler(rt.stages.Enrich))
	mux.HandleFunc("/v1/pipeline/reconcile", rt.stageHandler(rt.stages.Reconcile))
	mux.HandleFunc("/v1/pipeline/jobs", rt.stageHandler(rt.stages.Jobs))

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestUC.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		r.FormValue("category"),
		file,
	)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordIngest(rt.service, doc.MimeType, fileHeader.Size)
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	switch sub {
	case "":
		doc, err := rt.queryUC.Get(r.Context(), id)
		if err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case "progress":
		progress, err := rt.queryUC.Progress(r.Context(), id)
		if err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, progress)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource"})
	}
}

// stageHandler wraps one pipeline stage into the uniform POST contract. The
// report is returned with 200 even when items failed; only stage-level errors
// map to error statuses.
func (rt *Router) stageHandler(stage ports.PipelineStage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		var req ports.StageRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
				return
			}
		}

		report, err := stage.Run(r.Context(), req)
		if err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
