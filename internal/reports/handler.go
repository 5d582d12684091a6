package reports

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymhrv/internal/hrv/dataset"
	"github.com/2beens/gymhrv/internal/middleware"
	"github.com/2beens/gymhrv/internal/notify"
	"github.com/2beens/gymhrv/internal/report/analysis"
	"github.com/2beens/gymhrv/internal/report/layout"
	"github.com/2beens/gymhrv/internal/report/render"
	"github.com/2beens/gymhrv/internal/sessions"
	"github.com/2beens/gymhrv/internal/store"
	"github.com/2beens/gymhrv/internal/telemetry/metrics"
	"github.com/2beens/gymhrv/internal/telemetry/tracing"
	"github.com/2beens/gymhrv/pkg"
)

const maxUploadBytes = 8 << 20

type Handler struct {
	service *Service
	notices *notify.Recorder
	hub     *notify.Hub
}

func NewHandler(service *Service, notices *notify.Recorder, hub *notify.Hub) *Handler {
	return &Handler{
		service: service,
		notices: notices,
		hub:     hub,
	}
}

func (h *Handler) SetupRoutes(
	r *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	metricsManager *metrics.Manager,
	uploadsPerMin int,
) {
	uploadLimit := middleware.RateLimit(rateLimiter, metricsManager, "dataset-upload", uploadsPerMin)
	r.Handle("/dataset", uploadLimit(http.HandlerFunc(h.HandleLoadDataset))).Methods("POST", "OPTIONS").Name("load-dataset")

	r.HandleFunc("/dataset", h.HandleDatasetInfo).Methods("GET", "OPTIONS").Name("dataset-info")
	r.HandleFunc("/dataset/filtered", h.HandleFilteredIntervals).Methods("GET", "OPTIONS").Name("dataset-filtered")
	r.HandleFunc("/dataset/exclusions/{index}", h.HandleToggleExclusion).Methods("POST", "OPTIONS").Name("toggle-exclusion")
	r.HandleFunc("/dataset/exclusions", h.HandleResetExclusions).Methods("DELETE", "OPTIONS").Name("reset-exclusions")

	r.HandleFunc("/sessions", h.HandleListSessions).Methods("GET", "OPTIONS").Name("list-sessions")
	r.HandleFunc("/sessions/{collection}", h.HandleSaveSession).Methods("POST", "OPTIONS").Name("save-session")
	r.HandleFunc("/sessions/{collection}/{id}/load", h.HandleLoadSession).Methods("POST", "OPTIONS").Name("load-session")
	r.HandleFunc("/sessions/{collection}/{id}", h.HandleDeleteSession).Methods("DELETE", "OPTIONS").Name("delete-session")

	r.HandleFunc("/analyses", h.HandleCatalog).Methods("GET", "OPTIONS").Name("analyses-catalog")

	r.HandleFunc("/report", h.HandleGetReport).Methods("GET", "OPTIONS").Name("get-report")
	r.HandleFunc("/report", h.HandleClearReport).Methods("DELETE", "OPTIONS").Name("clear-report")
	r.HandleFunc("/report/analyses", h.HandleAddAnalysis).Methods("POST", "OPTIONS").Name("add-analysis")
	r.HandleFunc("/report/analyses/{uid}", h.HandleRemoveAnalysis).Methods("DELETE", "OPTIONS").Name("remove-analysis")
	r.HandleFunc("/report/analyses/{uid}/mode", h.HandleSetRenderMode).Methods("PUT", "OPTIONS").Name("set-render-mode")
	r.HandleFunc("/report/analyses/{uid}/page", h.HandleMoveAnalysis).Methods("PUT", "OPTIONS").Name("move-analysis")
	r.HandleFunc("/report/analyses/{uid}/render", h.HandleRenderInstance).Methods("GET", "OPTIONS").Name("render-analysis")
	r.HandleFunc("/report/analyses/{uid}/svg", h.HandleInstanceSVG).Methods("GET", "OPTIONS").Name("analysis-svg")
	r.HandleFunc("/report/pages", h.HandleAddPage).Methods("POST", "OPTIONS").Name("add-page")
	r.HandleFunc("/report/pages/{page}", h.HandleRemovePage).Methods("DELETE", "OPTIONS").Name("remove-page")
	r.HandleFunc("/report/pages/{page}/order", h.HandleReorder).Methods("PUT", "OPTIONS").Name("reorder-page")
	r.HandleFunc("/report/pages/{page}/render", h.HandleRenderPage).Methods("GET", "OPTIONS").Name("render-page")
	r.HandleFunc("/report/navigate", h.HandleNavigate).Methods("POST", "OPTIONS").Name("navigate")

	r.HandleFunc("/notices", h.HandleNotices).Methods("GET", "OPTIONS").Name("notices")
	if h.hub != nil {
		r.HandleFunc("/ws/notices", h.hub.ServeWS).Methods("GET").Name("notices-ws")
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var addErr *layout.AddError
	switch {
	case errors.As(err, &addErr),
		errors.Is(err, layout.ErrLastPage),
		errors.Is(err, dataset.ErrLoadSuperseded):
		return http.StatusConflict
	case errors.Is(err, layout.ErrInstanceNotFound),
		errors.Is(err, layout.ErrPageOutOfRange),
		errors.Is(err, sessions.ErrSessionNotFound),
		errors.Is(err, render.ErrNoArtifact),
		errors.Is(err, dataset.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, dataset.ErrEmptyDataset),
		errors.Is(err, dataset.ErrNoIntervalData),
		errors.Is(err, dataset.ErrParseFailure),
		errors.Is(err, layout.ErrInvalidOrder),
		errors.Is(err, layout.ErrUnknownKind),
		errors.Is(err, analysis.ErrUnknownMode),
		errors.Is(err, sessions.ErrUnknownCollection),
		errors.Is(err, store.ErrInvalidCollection):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("%s: %s", op, err)
		http.Error(w, op+" failed", status)
		return
	}
	log.Debugf("%s: %s", op, err)
	http.Error(w, err.Error(), status)
}

func decodeBody(r *http.Request, v any) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), pkg.ContentType.JSON) {
		return errors.New("invalid content type")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func intVar(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}

func (h *Handler) HandleLoadDataset(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.dataset.load")
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		log.Errorf("load dataset, read body: %s", err)
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	n, err := h.service.LoadDataset(ctx, pkg.BytesToString(body))
	if err != nil {
		writeError(w, "load dataset", err)
		return
	}
	pkg.WriteJSON(w, map[string]int{"loaded": n}, http.StatusCreated)
}

func (h *Handler) HandleDatasetInfo(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.dataset.info")
	defer span.End()

	pkg.WriteJSONResponseOK(w, h.service.DatasetInfo())
}

func (h *Handler) HandleFilteredIntervals(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.dataset.filtered")
	defer span.End()

	pkg.WriteJSONResponseOK(w, h.service.FilteredIntervals())
}

func (h *Handler) HandleToggleExclusion(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.dataset.exclusion.toggle")
	defer span.End()

	index, err := intVar(r, "index")
	if err != nil {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}

	excluded, err := h.service.ToggleExclusion(ctx, index)
	if err != nil {
		writeError(w, "toggle exclusion", err)
		return
	}
	pkg.WriteJSONResponseOK(w, map[string]any{"index": index, "excluded": excluded})
}

func (h *Handler) HandleResetExclusions(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.dataset.exclusion.reset")
	defer span.End()

	h.service.ResetExclusions(ctx)
	pkg.WriteJSONResponseOK(w, h.service.DatasetInfo())
}

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.sessions.list")
	defer span.End()

	list, err := h.service.Sessions(ctx)
	if err != nil {
		writeError(w, "list sessions", err)
		return
	}
	pkg.WriteJSONResponseOK(w, list)
}

func (h *Handler) HandleSaveSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.sessions.save")
	defer span.End()

	var record sessions.SessionRecord
	if err := decodeBody(r, &record); err != nil {
		log.Errorf("save session, unmarshal json params: %s", err)
		http.Error(w, "invalid session", http.StatusBadRequest)
		return
	}

	id, err := h.service.SaveSession(ctx, mux.Vars(r)["collection"], record)
	if err != nil {
		writeError(w, "save session", err)
		return
	}
	pkg.WriteJSON(w, map[string]string{"id": id}, http.StatusCreated)
}

func (h *Handler) HandleLoadSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.sessions.load")
	defer span.End()

	vars := mux.Vars(r)
	n, err := h.service.LoadSession(ctx, vars["collection"], vars["id"])
	if err != nil {
		writeError(w, "load session", err)
		return
	}
	pkg.WriteJSONResponseOK(w, map[string]int{"loaded": n})
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.sessions.delete")
	defer span.End()

	vars := mux.Vars(r)
	if err := h.service.DeleteSession(ctx, vars["collection"], vars["id"]); err != nil {
		writeError(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.catalog")
	defer span.End()

	pkg.WriteJSONResponseOK(w, h.service.Catalog())
}

func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.report.get")
	defer span.End()

	pkg.WriteJSONResponseOK(w, h.service.Report())
}

func (h *Handler) HandleClearReport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.report.clear")
	defer span.End()

	if err := h.service.ClearReport(ctx); err != nil {
		writeError(w, "clear report", err)
		return
	}
	pkg.WriteJSONResponseOK(w, h.service.Report())
}

func (h *Handler) HandleAddAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.analysis.add")
	defer span.End()

	var req struct {
		KindID analysis.KindID `json:"kindId"`
	}
	if err := decodeBody(r, &req); err != nil {
		log.Errorf("add analysis, unmarshal json params: %s", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	id, err := h.service.Composer().AddAnalysis(ctx, req.KindID)
	if err != nil {
		writeError(w, "add analysis", err)
		return
	}
	inst, page, err := h.service.Composer().Instance(id)
	if err != nil {
		writeError(w, "add analysis", err)
		return
	}
	pkg.WriteJSON(w, map[string]any{"instance": inst, "page": page}, http.StatusCreated)
}

func (h *Handler) HandleRemoveAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.analysis.remove")
	defer span.End()

	if err := h.service.Composer().RemoveAnalysis(ctx, mux.Vars(r)["uid"]); err != nil {
		writeError(w, "remove analysis", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetRenderMode(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.analysis.mode")
	defer span.End()

	var req struct {
		Mode analysis.Mode `json:"mode"`
	}
	if err := decodeBody(r, &req); err != nil {
		log.Errorf("set render mode, unmarshal json params: %s", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	artifact, err := h.service.SetRenderMode(ctx, mux.Vars(r)["uid"], req.Mode)
	if err != nil {
		writeError(w, "set render mode", err)
		return
	}
	pkg.WriteJSONResponseOK(w, artifact)
}

func (h *Handler) HandleMoveAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.analysis.move")
	defer span.End()

	var req struct {
		Page     int `json:"page"`
		Position int `json:"position"`
	}
	if err := decodeBody(r, &req); err != nil {
		log.Errorf("move analysis, unmarshal json params: %s", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if err := h.service.Composer().MoveAnalysis(ctx, mux.Vars(r)["uid"], req.Page, req.Position); err != nil {
		writeError(w, "move analysis", err)
		return
	}
	pkg.WriteJSONResponseOK(w, h.service.Report())
}

func (h *Handler) HandleRenderInstance(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.analysis.render")
	defer span.End()

	artifact, err := h.service.RenderInstance(ctx, mux.Vars(r)["uid"])
	if err != nil {
		writeError(w, "render analysis", err)
		return
	}
	pkg.WriteJSONResponseOK(w, artifact)
}

func (h *Handler) HandleInstanceSVG(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.analysis.svg")
	defer span.End()

	artifact, err := h.service.RenderInstance(ctx, mux.Vars(r)["uid"])
	if err != nil {
		writeError(w, "render analysis", err)
		return
	}
	if artifact.SVG == "" {
		http.Error(w, "no graph for this analysis", http.StatusNotFound)
		return
	}
	pkg.WriteResponse(w, pkg.ContentType.SVG, artifact.SVG, http.StatusOK)
}

func (h *Handler) HandleAddPage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.page.add")
	defer span.End()

	page, err := h.service.Composer().AddPage(ctx)
	if err != nil {
		writeError(w, "add page", err)
		return
	}
	pkg.WriteJSON(w, map[string]int{"page": page}, http.StatusCreated)
}

func (h *Handler) HandleRemovePage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.page.remove")
	defer span.End()

	page, err := intVar(r, "page")
	if err != nil {
		http.Error(w, "invalid page", http.StatusBadRequest)
		return
	}
	if err := h.service.Composer().RemovePage(ctx, page); err != nil {
		writeError(w, "remove page", err)
		return
	}
	pkg.WriteJSONResponseOK(w, h.service.Report())
}

func (h *Handler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.page.reorder")
	defer span.End()

	page, err := intVar(r, "page")
	if err != nil {
		http.Error(w, "invalid page", http.StatusBadRequest)
		return
	}
	var req struct {
		Order []string `json:"order"`
	}
	if err := decodeBody(r, &req); err != nil {
		log.Errorf("reorder page, unmarshal json params: %s", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if err := h.service.Composer().ReorderWithinPage(ctx, page, req.Order); err != nil {
		writeError(w, "reorder page", err)
		return
	}
	pkg.WriteJSONResponseOK(w, h.service.Report())
}

func (h *Handler) HandleRenderPage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.page.render")
	defer span.End()

	page, err := intVar(r, "page")
	if err != nil {
		http.Error(w, "invalid page", http.StatusBadRequest)
		return
	}
	rendered, err := h.service.RenderPage(ctx, page)
	if err != nil {
		writeError(w, "render page", err)
		return
	}
	pkg.WriteJSONResponseOK(w, rendered)
}

func (h *Handler) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.navigate")
	defer span.End()

	var req struct {
		Delta int `json:"delta"`
	}
	if err := decodeBody(r, &req); err != nil {
		log.Errorf("navigate, unmarshal json params: %s", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	page, err := h.service.Composer().Navigate(ctx, req.Delta)
	if err != nil {
		writeError(w, "navigate", err)
		return
	}
	pkg.WriteJSONResponseOK(w, map[string]int{"page": page})
}

func (h *Handler) HandleNotices(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.reports.notices")
	defer span.End()

	if h.notices == nil {
		pkg.WriteJSONResponseOK(w, []notify.Notice{})
		return
	}
	pkg.WriteJSONResponseOK(w, h.notices.Recent())
}
