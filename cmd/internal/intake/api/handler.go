package intakeapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/intake"
)

// Handler wires the public intake endpoints and the staff administration endpoints to the
// intake service.
type Handler struct {
	log     *slog.Logger
	cfg     Config
	svc     *intake.Service
	staff   StaffAuthenticator
	limiter *IPRateLimiter
	audit   intake.AuditLog
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithStaffAuthenticator overrides the staff authenticator built from Config.StaffTokens.
func WithStaffAuthenticator(a StaffAuthenticator) HandlerOption {
	return func(h *Handler) {
		if h == nil || a == nil {
			return
		}
		h.staff = a
	}
}

// WithAuditLog records link and submission actions to a. Without it nothing is audited.
func WithAuditLog(a intake.AuditLog) HandlerOption {
	return func(h *Handler) {
		if h == nil || a == nil {
			return
		}
		h.audit = a
	}
}

// NewHandler constructs a Handler. Without any staff tokens the staff routes answer 503.
func NewHandler(log *slog.Logger, svc *intake.Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("intakeapi: nil service")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.normalized()
	h := &Handler{
		log:     log,
		cfg:     cfg,
		svc:     svc,
		limiter: NewIPRateLimiter(cfg.PublicRateMax, cfg.PublicRateWindow),
	}
	if static := NewStaticTokenAuthenticator(cfg.StaffTokens); static.Len() > 0 {
		h.staff = static
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires intake routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/intake/validate", h.public(h.handleValidate))
	mux.HandleFunc("GET /api/intake/{token}", h.public(h.handleLinkInfo))
	mux.HandleFunc("POST /api/intake/{token}/submit", h.public(h.handleSubmit))

	mux.HandleFunc("POST /api/intake/links", h.staffOnly(h.handleCreateLink))
	mux.HandleFunc("GET /api/intake/links", h.staffOnly(h.handleListLinks))
	mux.HandleFunc("GET /api/intake/links/{id}", h.staffOnly(h.handleGetLink))
	mux.HandleFunc("PATCH /api/intake/links/{id}", h.staffOnly(h.handleUpdateLink))
	mux.HandleFunc("POST /api/intake/links/{id}/deactivate", h.staffOnly(h.handleDeactivateLink))
	mux.HandleFunc("DELETE /api/intake/links/{id}", h.staffOnly(h.handleDeleteLink))
	mux.HandleFunc("GET /api/intake/links/{id}/audit", h.staffOnly(h.handleLinkAudit))
	mux.HandleFunc("GET /api/intake/submissions", h.staffOnly(h.handleListSubmissions))
	mux.HandleFunc("GET /api/intake/submissions/{id}", h.staffOnly(h.handleGetSubmission))
	mux.HandleFunc("POST /api/intake/submissions/{id}/review", h.staffOnly(h.handleReview))
}

type staffHandler func(w http.ResponseWriter, r *http.Request, staff Staff)

func (h *Handler) public(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := "unknown"
		if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
			key = ip.String()
		}
		if ok, retry := h.limiter.Allow(key, time.Now()); !ok {
			h.log.Warn("intake.rate_limited", "ip", key, "path", r.URL.Path)
			writeRateLimited(w, retry)
			return
		}
		next(w, r)
	}
}

func (h *Handler) staffOnly(next staffHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.staff == nil {
			writeError(w, http.StatusServiceUnavailable, "staff_auth_unavailable", "staff authentication not configured")
			return
		}
		bearer := bearerToken(r)
		if bearer == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		staff, err := h.staff.Authenticate(r.Context(), bearer)
		if err != nil {
			if !errors.Is(err, ErrUnauthorized) {
				h.log.Error("intake.staff_auth.fail", "err", err)
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next(w, r, staff)
	}
}

// ---- public handlers ----

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !h.readRequest(w, r, &req) {
		return
	}

	v, err := h.svc.Validate(r.Context(), req.LinkToken, req.AccessCode, time.Time{})
	if err != nil {
		h.fail(w, "intake.validate.fail", err)
		return
	}

	resp := validateResponse{IsValid: v.Valid, Message: v.Message()}
	if v.Valid {
		resp.Link = &validateLink{ID: v.Link.ID, ExpiresAt: v.Link.ExpiresAt}
	} else {
		resp.Reason = intake.Code(v.Reason)
	}
	if v.Link.ID != "" {
		h.log.Info("intake.validate", "link_id", v.Link.ID, "valid", v.Valid, "reason", resp.Reason)
	}
	writeData(w, http.StatusOK, resp)
}

func (h *Handler) handleLinkInfo(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.LookupLink(r.Context(), r.PathValue("token"))
	if err != nil {
		if errors.Is(err, intake.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invalid_link", intake.UserMessage(intake.ErrInvalidLink))
			return
		}
		h.fail(w, "intake.link_info.fail", err)
		return
	}
	writeData(w, http.StatusOK, linkInfoResponse{
		Status:    string(intake.StatusAt(l, h.svc.Now())),
		ExpiresAt: l.ExpiresAt,
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !h.readRequest(w, r, &req) {
		return
	}

	var ip string
	if addr := clientIP(r, h.cfg.TrustProxy); addr != nil {
		ip = addr.String()
	}
	res, err := h.svc.Submit(r.Context(), intake.SubmitInput{
		Token:      r.PathValue("token"),
		AccessCode: req.AccessCode,
		Data:       req.ClientData,
		IP:         ip,
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		h.fail(w, "intake.submit.fail", err)
		return
	}

	h.log.Info("intake.submit.ok",
		"link_id", res.Link.ID,
		"submission_id", res.Submission.ID,
		"current_uses", res.Link.CurrentUses,
		"max_uses", res.Link.MaxUses,
	)
	h.recordAudit(r, intake.AuditEvent{
		Action:       intake.AuditSubmissionCreated,
		LinkID:       &res.Link.ID,
		SubmissionID: &res.Submission.ID,
		Meta:         map[string]any{"current_uses": res.Link.CurrentUses, "max_uses": res.Link.MaxUses},
	})
	writeData(w, http.StatusCreated, submitResponse{
		SubmissionID: res.Submission.ID,
		Message:      intake.MessageSubmitted,
	})
}

// ---- staff handlers ----

func (h *Handler) handleCreateLink(w http.ResponseWriter, r *http.Request, staff Staff) {
	var req createLinkRequest
	if !h.readRequest(w, r, &req) {
		return
	}
	if req.ExpiresInHours < 0 || req.MaxUses < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "expiresInHours and maxUses must be positive")
		return
	}

	createdBy := staff.Name
	created, err := h.svc.CreateLink(r.Context(), intake.CreateLinkInput{
		CreatedBy:        &createdBy,
		ExpiresIn:        time.Duration(req.ExpiresInHours * float64(time.Hour)),
		MaxUses:          req.MaxUses,
		RelatedAuditID:   req.RelatedAuditID,
		RelatedProjectID: req.RelatedProjectID,
		Notes:            req.Notes,
		Metadata:         req.Metadata,
	})
	if err != nil {
		h.fail(w, "intake.link.create.fail", err)
		return
	}

	h.log.Info("intake.link.create", "link_id", created.Link.ID, "created_by", staff.Name,
		"max_uses", created.Link.MaxUses, "expires_at", created.Link.ExpiresAt)
	h.recordAudit(r, intake.AuditEvent{
		Action: intake.AuditLinkCreated,
		Actor:  &staff.Name,
		LinkID: &created.Link.ID,
		Meta:   map[string]any{"max_uses": created.Link.MaxUses, "expires_at": created.Link.ExpiresAt},
	})

	resp := createLinkResponse{
		Link:       toLinkResponse(created.Link, h.svc.Now()),
		Token:      created.Token,
		AccessCode: created.AccessCode,
	}
	if h.cfg.ShareURLBase != "" {
		resp.ShareURL = h.cfg.ShareURLBase + "/" + created.Token
	}
	writeData(w, http.StatusCreated, resp)
}

func (h *Handler) handleListLinks(w http.ResponseWriter, r *http.Request, _ Staff) {
	q := r.URL.Query()
	f := intake.LinkFilter{
		RelatedAuditID:   strings.TrimSpace(q.Get("relatedAuditId")),
		RelatedProjectID: strings.TrimSpace(q.Get("relatedProjectId")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, ok := intake.ParseLinkStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "status must be active, expired, exhausted or revoked")
			return
		}
		f.Status = st
	}
	limit, ok := parseLimit(q.Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
		return
	}
	f.Limit = limit

	now := h.svc.Now()
	f.Now = now
	links, err := h.svc.ListLinks(r.Context(), f)
	if err != nil {
		h.fail(w, "intake.link.list.fail", err)
		return
	}
	out := make([]linkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, toLinkResponse(l, now))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) handleGetLink(w http.ResponseWriter, r *http.Request, _ Staff) {
	l, err := h.svc.GetLink(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "intake.link.get.fail", err)
		return
	}
	writeData(w, http.StatusOK, toLinkResponse(l, h.svc.Now()))
}

func (h *Handler) handleUpdateLink(w http.ResponseWriter, r *http.Request, staff Staff) {
	var req updateLinkRequest
	if !h.readRequest(w, r, &req) {
		return
	}
	in := intake.UpdateLinkInput{ID: r.PathValue("id"), Metadata: req.Metadata}
	if len(req.Notes) > 0 {
		in.SetNotes = true
		if string(req.Notes) != "null" {
			var notes string
			if err := json.Unmarshal(req.Notes, &notes); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "notes must be a string or null")
				return
			}
			in.Notes = &notes
		}
	}

	l, err := h.svc.UpdateLinkNotes(r.Context(), in)
	if err != nil {
		h.fail(w, "intake.link.update.fail", err)
		return
	}
	h.log.Info("intake.link.update", "link_id", l.ID, "by", staff.Name)
	h.recordAudit(r, intake.AuditEvent{
		Action: intake.AuditLinkUpdated,
		Actor:  &staff.Name,
		LinkID: &l.ID,
		Meta:   map[string]any{"notes_changed": in.SetNotes, "metadata_changed": in.Metadata != nil},
	})
	writeData(w, http.StatusOK, toLinkResponse(l, h.svc.Now()))
}

func (h *Handler) handleDeactivateLink(w http.ResponseWriter, r *http.Request, staff Staff) {
	l, err := h.svc.DeactivateLink(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "intake.link.deactivate.fail", err)
		return
	}
	h.log.Info("intake.link.deactivate", "link_id", l.ID, "by", staff.Name)
	h.recordAudit(r, intake.AuditEvent{Action: intake.AuditLinkDeactivated, Actor: &staff.Name, LinkID: &l.ID})
	writeData(w, http.StatusOK, toLinkResponse(l, h.svc.Now()))
}

func (h *Handler) handleDeleteLink(w http.ResponseWriter, r *http.Request, staff Staff) {
	id := r.PathValue("id")
	if err := h.svc.DeleteLink(r.Context(), id); err != nil {
		h.fail(w, "intake.link.delete.fail", err)
		return
	}
	h.log.Info("intake.link.delete", "link_id", id, "by", staff.Name)
	h.recordAudit(r, intake.AuditEvent{Action: intake.AuditLinkDeleted, Actor: &staff.Name, LinkID: &id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request, _ Staff) {
	q := r.URL.Query()
	f := intake.SubmissionFilter{LinkID: strings.TrimSpace(q.Get("linkId"))}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, ok := intake.ParseSubmissionStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "status must be pending, approved or rejected")
			return
		}
		f.Status = st
	}
	limit, ok := parseLimit(q.Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
		return
	}
	f.Limit = limit

	subs, err := h.svc.ListSubmissions(r.Context(), f)
	if err != nil {
		h.fail(w, "intake.submission.list.fail", err)
		return
	}
	out := make([]submissionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, toSubmissionResponse(s))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request, _ Staff) {
	s, err := h.svc.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "intake.submission.get.fail", err)
		return
	}
	writeData(w, http.StatusOK, toSubmissionResponse(s))
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request, staff Staff) {
	var req reviewRequest
	if !h.readRequest(w, r, &req) {
		return
	}

	res, err := h.svc.Review(r.Context(), intake.ReviewInput{
		SubmissionID:    r.PathValue("id"),
		Action:          req.Action,
		ReviewedBy:      staff.Name,
		Notes:           req.Notes,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		h.fail(w, "intake.review.fail", err)
		return
	}

	msg := "Submission rejected."
	attrs := []any{"submission_id", res.Submission.ID, "status", res.Submission.Status, "by", staff.Name}
	if res.Client != nil {
		msg = "Submission approved and client record saved."
		attrs = append(attrs, "client_id", res.Client.Client.ID, "client_created", res.Client.Created)
	}
	h.log.Info("intake.review.ok", attrs...)
	ev := intake.AuditEvent{
		Action:       intake.AuditSubmissionRejected,
		Actor:        &staff.Name,
		LinkID:       &res.Submission.LinkID,
		SubmissionID: &res.Submission.ID,
	}
	if res.Client != nil {
		ev.Action = intake.AuditSubmissionApproved
		ev.Meta = map[string]any{"client_id": res.Client.Client.ID, "client_created": res.Client.Created}
	}
	h.recordAudit(r, ev)
	writeData(w, http.StatusOK, reviewResponse{
		Submission: toSubmissionResponse(res.Submission),
		Client:     toClientResponse(res.Client),
		Message:    msg,
	})
}

func (h *Handler) handleLinkAudit(w http.ResponseWriter, r *http.Request, _ Staff) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_unavailable", "audit log not configured")
		return
	}
	l, err := h.svc.GetLink(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "intake.link.audit.fail", err)
		return
	}
	limit, ok := parseLimit(r.URL.Query().Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
		return
	}
	events, err := h.audit.List(r.Context(), intake.AuditFilter{LinkID: l.ID, Limit: limit})
	if err != nil {
		h.fail(w, "intake.link.audit.fail", err)
		return
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toAuditEventResponse(e))
	}
	writeData(w, http.StatusOK, out)
}

// recordAudit appends e with the request's client address and user agent. Failures are
// logged and never fail the request.
func (h *Handler) recordAudit(r *http.Request, e intake.AuditEvent) {
	if h.audit == nil {
		return
	}
	if addr := clientIP(r, h.cfg.TrustProxy); addr != nil {
		ip := addr.String()
		e.IP = &ip
	}
	if ua := intake.ClampUserAgent(r.UserAgent()); ua != "" {
		e.UserAgent = &ua
	}
	e.CreatedAt = h.svc.Now()
	if err := h.audit.Record(r.Context(), e); err != nil {
		h.log.Error("intake.audit.insert.fail", "err", err, "action", e.Action)
	}
}

// ---- error mapping ----

// HTTPStatus maps an intake error to its response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, intake.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, intake.ErrLinkInUse):
		return http.StatusConflict
	case errors.Is(err, intake.ErrPromotionFailed):
		return http.StatusInternalServerError
	case intake.IsBusinessFailure(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the response for err. Faults are logged and answered with a generic message.
func (h *Handler) fail(w http.ResponseWriter, event string, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(event, "err", err)
		if errors.Is(err, intake.ErrPromotionFailed) {
			writeError(w, status, intake.Code(err), intake.UserMessage(err))
			return
		}
		writeError(w, status, "server_error", "internal error")
		return
	}
	h.log.Warn(event, "code", intake.Code(err))
	writeError(w, status, intake.Code(err), intake.UserMessage(err))
}

func parseLimit(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
