package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"taskhub/api/internal/logging"
	"taskhub/api/internal/metrics"
	"taskhub/api/internal/projection"
	"taskhub/api/internal/ratelimit"
	"taskhub/api/internal/search"
	"taskhub/api/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
	limiter    ratelimit.Limiter
	rateLimit  int
}

// ServerOptions configures the optional parts of the HTTP boundary. A nil
// Limiter disables rate limiting; nil Metrics disables /metrics.
type ServerOptions struct {
	Logger             logrus.FieldLogger
	Metrics            *metrics.Metrics
	Limiter            ratelimit.Limiter
	RateLimitPerMinute int
}

func NewHTTPServer(service *Service, corsOrigin string, opts ServerOptions) *HTTPServer {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		log:        log.WithField("component", "http"),
		metrics:    opts.Metrics,
		limiter:    opts.Limiter,
		rateLimit:  opts.RateLimitPerMinute,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	if s.metrics != nil {
		router.Use(s.metrics.Middleware)
		router.Handle("/metrics", s.metrics.Handler())
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth)
	api.HandleFunc("/ready", s.handleReady)
	api.HandleFunc("/signup", s.handleSignup)
	api.HandleFunc("/appinit", s.handleAppInit)
	api.HandleFunc("/default-categorys", s.handleDefaultCategories)

	api.HandleFunc("/user", s.handleUsers)
	api.HandleFunc("/user/{identity}", s.handleUser)
	api.HandleFunc("/setting", s.handleSetting)

	// "category" is the client's name for a project.
	for _, base := range []string{"/project", "/category"} {
		api.HandleFunc(base, s.handleProjects)
		api.HandleFunc(base+"/{id}", s.handleProject)
		api.HandleFunc(base+"/{id}/export", s.handleProjectExport)
	}

	api.HandleFunc("/section", s.handleSections)
	api.HandleFunc("/section/{id}", s.handleSection)
	api.HandleFunc("/task", s.handleTasks)
	api.HandleFunc("/task/search", s.handleTaskSearch)
	api.HandleFunc("/task/{id}", s.handleTask)
	api.HandleFunc("/label", s.handleLabels)
	api.HandleFunc("/label/{id}", s.handleLabel)
	api.HandleFunc("/karma", s.handleKarmas)
	api.HandleFunc("/karma/{id}", s.handleKarma)

	var handler http.Handler = trimTrailingSlash(router)
	if s.limiter != nil {
		handler = ratelimit.Middleware(s.limiter, s.rateLimit, s.log)(handler)
	}
	return s.withMiddleware(handler)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.methodNotAllowed(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}
	var in SignupInput
	if !s.decode(w, r, &in) {
		return
	}
	rec, err := s.service.Signup(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleAppInit reports failures as {result:false} alongside the usual code
// so the client can branch on either.
func (s *HTTPServer) handleAppInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	payload, err := s.service.AppInit(r.Context(), identityParam(r))
	if err != nil {
		status, code, message, _ := mapError(err)
		s.logFailure(r, status, err)
		writeJSON(w, status, map[string]any{"result": false, "code": code, "error": message})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDefaultCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	payload, err := s.service.DefaultCategories(r.Context(), identityParam(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		recs, err := s.service.ListUsers(r.Context(), identityParam(r))
		s.writeRecords(w, r, recs, err)
	case http.MethodPost:
		// Users are created through signup only.
		s.fail(w, r, errMethodNotAllowed("Use /api/signup to create users"))
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleUser(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	switch r.Method {
	case http.MethodGet:
		rec, err := s.service.GetUser(r.Context(), identity)
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodPut, http.MethodPatch:
		var in UserUpdateInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.service.UpdateUser(r.Context(), identity, in)
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodDelete:
		s.writeDeleted(w, r, s.service.DeleteUser(r.Context(), identity))
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleSetting(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rec, err := s.service.GetSetting(r.Context(), identityParam(r))
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodPut, http.MethodPatch:
		var in SettingUpdateInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.service.UpdateSetting(r.Context(), in)
		s.writeRecord(w, r, http.StatusOK, rec, err)
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		recs, err := s.service.ListProjects(r.Context(), identityParam(r))
		s.writeRecords(w, r, recs, err)
	case http.MethodPost:
		var in ProjectCreateInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.service.CreateProject(r.Context(), in)
		s.writeRecord(w, r, http.StatusCreated, rec, err)
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleProject(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	switch r.Method {
	case http.MethodGet:
		rec, err := s.service.GetProject(r.Context(), projectID, identityParam(r))
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodPut, http.MethodPatch:
		var in ProjectUpdateInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.service.UpdateProject(r.Context(), projectID, in)
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodDelete:
		s.writeDeleted(w, r, s.service.DeleteProject(r.Context(), projectID, identityParam(r)))
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleProjectExport(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	switch r.Method {
	case http.MethodGet:
		result, err := s.service.ExportProject(r.Context(), projectID, identityParam(r), r.URL.Query().Get("format"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
	case http.MethodPost:
		var body struct {
			Identity string `json:"identity"`
			Format   string `json:"format"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		url, result, err := s.service.PublishProjectExport(r.Context(), projectID, body.Identity, body.Format)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"url":      url,
			"filename": result.Filename,
			"mimeType": result.MimeType,
		})
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleSections(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		recs, err := s.service.ListSections(r.Context(), identityParam(r), r.URL.Query().Get("project"))
		s.writeRecords(w, r, recs, err)
	case http.MethodPost:
		var in SectionCreateInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.service.CreateSection(r.Context(), in)
		s.writeRecord(w, r, http.StatusCreated, rec, err)
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleSection(w http.ResponseWriter, r *http.Request) {
	sectionID := mux.Vars(r)["id"]
	switch r.Method {
	case http.MethodGet:
		rec, err := s.service.GetSection(r.Context(), sectionID, identityParam(r))
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodPut, http.MethodPatch:
		var in SectionUpdateInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.service.UpdateSection(r.Context(), sectionID, in)
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodDelete:
		s.writeDeleted(w, r, s.service.DeleteSection(r.Context(), sectionID, identityParam(r)))
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		recs, err := s.service.ListTasks(r.Context(), identityParam(r), r.URL.Query().Get("project"))
		s.writeRecords(w, r, recs, err)
	case http.MethodPost:
		var in TaskCreateInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.service.CreateTask(r.Context(), in)
		s.writeRecord(w, r, http.StatusCreated, rec, err)
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleTaskSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	response, err := s.service.SearchTasks(r.Context(), identityParam(r), search.Query{
		Text:      strings.TrimSpace(query.Get("q")),
		ProjectID: query.Get("project"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	switch r.Method {
	case http.MethodGet:
		rec, err := s.service.GetTask(r.Context(), taskID, identityParam(r))
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodPut, http.MethodPatch:
		var in TaskUpdateInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.service.UpdateTask(r.Context(), taskID, in)
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodDelete:
		s.writeDeleted(w, r, s.service.DeleteTask(r.Context(), taskID, identityParam(r)))
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleLabels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		recs, err := s.service.ListLabels(r.Context(), identityParam(r))
		s.writeRecords(w, r, recs, err)
	case http.MethodPost:
		var in LabelInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.service.CreateLabel(r.Context(), in)
		s.writeRecord(w, r, http.StatusCreated, rec, err)
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleLabel(w http.ResponseWriter, r *http.Request) {
	labelID := mux.Vars(r)["id"]
	switch r.Method {
	case http.MethodGet:
		rec, err := s.service.GetLabel(r.Context(), labelID, identityParam(r))
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodPut, http.MethodPatch:
		var in LabelInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.service.UpdateLabel(r.Context(), labelID, in)
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodDelete:
		s.writeDeleted(w, r, s.service.DeleteLabel(r.Context(), labelID, identityParam(r)))
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleKarmas(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		recs, err := s.service.ListKarma(r.Context(), identityParam(r))
		s.writeRecords(w, r, recs, err)
	case http.MethodPost:
		var in KarmaInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.service.CreateKarma(r.Context(), in)
		s.writeRecord(w, r, http.StatusCreated, rec, err)
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleKarma(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rec, err := s.service.GetKarma(r.Context(), mux.Vars(r)["id"], identityParam(r))
		s.writeRecord(w, r, http.StatusOK, rec, err)
	case http.MethodPut, http.MethodPatch, http.MethodDelete:
		s.fail(w, r, errMethodNotAllowed("Karma entries are append-only"))
	default:
		s.methodNotAllowed(w)
	}
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func (s *HTTPServer) writeRecord(w http.ResponseWriter, r *http.Request, status int, rec projection.Record, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, projection.Apply(rec, fieldsParam(r)))
}

func (s *HTTPServer) writeRecords(w http.ResponseWriter, r *http.Request, recs []projection.Record, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projection.ApplyAll(recs, fieldsParam(r)))
}

func (s *HTTPServer) writeDeleted(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	s.logFailure(r, status, err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) logFailure(r *http.Request, status int, err error) {
	if status < http.StatusInternalServerError {
		return
	}
	s.log.WithError(err).WithFields(logrus.Fields{
		"request_id": requestIDFrom(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	}).Error("request failed")
}

func (s *HTTPServer) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// trimTrailingSlash lets /api/task/ and /api/task reach the same route.
func trimTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.Path) > 1 && strings.HasSuffix(r.URL.Path, "/") {
			r.URL.Path = strings.TrimRight(r.URL.Path, "/")
		}
		next.ServeHTTP(w, r)
	})
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func identityParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("identity"))
}

func fieldsParam(r *http.Request) []string {
	return projection.ParseFields(r.URL.Query().Get("fields"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindOwnerNotFound, KindNotFound:
		return http.StatusNotFound
	case KindDuplicateIdentity:
		return http.StatusConflict
	case KindMalformedTimestamp, KindValidation:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return statusForKind(domainErr.Kind), domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
