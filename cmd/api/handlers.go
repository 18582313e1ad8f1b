package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/auth"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/capture"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/ledger"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/listing"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/resolution"
)

const maxListLimit = 200

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	return true
}

type userResponse struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	MiddleInitial string `json:"middle_initial,omitempty"`
	Address       string `json:"address,omitempty"`
	Age           *int   `json:"age,omitempty"`
	Role          string `json:"role"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Username:      u.Username,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		MiddleInitial: u.MiddleInitial,
		Address:       u.Address,
		Age:           u.Age,
		Role:          string(u.Role),
	}
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: res.Token, User: toUserResponse(res.User)})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.authService.LoginAdmin(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: res.Token, User: toUserResponse(res.User)})
}

type dogResponse struct {
	ID              string     `json:"id"`
	Caption         string     `json:"caption"`
	Location        string     `json:"location"`
	Violations      []string   `json:"violations"`
	ImageRefs       []string   `json:"image_refs"`
	Status          string     `json:"status"`
	IntakeTime      time.Time  `json:"intake_time"`
	ClaimWindowDays int        `json:"claim_window_days"`
	Deadline        time.Time  `json:"deadline"`
	Expired         bool       `json:"expired"`
	SecondsLeft     int64      `json:"seconds_remaining"`
	Bucket          string     `json:"bucket,omitempty"`
	PendingRequests *int       `json:"pending_requests,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

func toDogResponse(d dog.Record, now time.Time) dogResponse {
	violations := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		violations = append(violations, string(v))
	}
	images := d.ImageRefs
	if images == nil {
		images = []string{}
	}
	resp := dogResponse{
		ID:              d.ID,
		Caption:         d.Caption,
		Location:        d.Location,
		Violations:      violations,
		ImageRefs:       images,
		Status:          string(d.Status),
		IntakeTime:      d.IntakeTime,
		ClaimWindowDays: d.ClaimWindowDays,
		Deadline:        d.Deadline(),
		Expired:         d.IsExpired(now),
		SecondsLeft:     int64(d.TimeRemaining(now) / time.Second),
	}
	if !d.UpdatedAt.IsZero() {
		updated := d.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

func toEntryResponse(e listing.Entry, now time.Time) dogResponse {
	resp := toDogResponse(e.Dog, now)
	resp.Bucket = string(e.Bucket)
	pending := e.PendingRequests
	resp.PendingRequests = &pending
	return resp
}

func (s *Server) handleListDogs(w http.ResponseWriter, r *http.Request) {
	q := listing.Query{}
	if raw := r.URL.Query().Get("bucket"); raw != "" {
		b, err := listing.ParseBucket(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidArgument, err.Error())
			return
		}
		q.Bucket = &b
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, codeInvalidArgument, "limit must be a non-negative integer")
			return
		}
		q.Limit = min(n, maxListLimit)
	}

	entries, err := s.listingService.Query(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := s.clock()
	out := make([]dogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"dogs": out})
}

func (s *Server) handleGetDog(w http.ResponseWriter, r *http.Request) {
	d, err := s.dogService.Get(r.Context(), chi.URLParam(r, "dogID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDogResponse(d, s.clock()))
}

type intakeRequest struct {
	Caption         string     `json:"caption"`
	Location        string     `json:"location"`
	Violations      []string   `json:"violations"`
	ImageRefs       []string   `json:"image_refs"`
	ClaimWindowDays *int       `json:"claim_window_days"`
	IntakeTime      *time.Time `json:"intake_time"`
	Status          string     `json:"status"`
}

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if !decode(w, r, &req) {
		return
	}
	violations := make([]dog.Violation, 0, len(req.Violations))
	for _, v := range req.Violations {
		violations = append(violations, dog.Violation(v))
	}
	params := dog.CreateParams{
		AdminID:         principalFrom(r.Context()).UserID,
		Caption:         req.Caption,
		Location:        req.Location,
		Violations:      violations,
		ImageRefs:       req.ImageRefs,
		ClaimWindowDays: req.ClaimWindowDays,
		InitialStatus:   dog.Status(req.Status),
	}
	if req.IntakeTime != nil {
		params.IntakeTime = req.IntakeTime.UTC()
	}

	d, err := s.dogService.Create(r.Context(), params)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDogResponse(d, s.clock()))
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := s.dogService.Transition(r.Context(), dog.TransitionParams{
		DogID:   chi.URLParam(r, "dogID"),
		Status:  dog.Status(req.Status),
		AdminID: principalFrom(r.Context()).UserID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDogResponse(d, s.clock()))
}

type historyEvent struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	RequestID *string         `json:"request_id,omitempty"`
	ActorID   *string         `json:"actor_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Server) handleDogHistory(w http.ResponseWriter, r *http.Request) {
	dogID := chi.URLParam(r, "dogID")
	if _, err := s.dogService.Get(r.Context(), dogID); err != nil {
		s.fail(w, r, err)
		return
	}
	events, err := s.history.DogHistory(r.Context(), dogID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toHistory(events)})
}

func toHistory(events []journal.Event) []historyEvent {
	out := make([]historyEvent, 0, len(events))
	for _, e := range events {
		out = append(out, historyEvent{
			ID:        e.ID,
			Type:      e.Type,
			RequestID: e.RequestID,
			ActorID:   e.ActorID,
			Payload:   json.RawMessage(e.Payload),
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

type requestResponse struct {
	ID           string     `json:"id"`
	DogID        string     `json:"dog_id"`
	UserID       string     `json:"user_id"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	Message      string     `json:"message,omitempty"`
	EvidenceRefs []string   `json:"evidence_refs"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy   *string    `json:"resolved_by,omitempty"`
}

func toRequestResponse(rec ledger.Record) requestResponse {
	refs := rec.EvidenceRefs
	if refs == nil {
		refs = []string{}
	}
	return requestResponse{
		ID:           rec.ID,
		DogID:        rec.DogID,
		UserID:       rec.UserID,
		Kind:         string(rec.Kind),
		Status:       string(rec.Status),
		Message:      rec.Message,
		EvidenceRefs: refs,
		CreatedAt:    rec.CreatedAt,
		ResolvedAt:   rec.ResolvedAt,
		ResolvedBy:   rec.ResolvedBy,
	}
}

func toRequestList(recs []ledger.Record) []requestResponse {
	out := make([]requestResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRequestResponse(rec))
	}
	return out
}

// kindFilter reads the optional ?kind= query parameter.
func kindFilter(r *http.Request) (*ledger.Kind, error) {
	raw := r.URL.Query().Get("kind")
	if raw == "" {
		return nil, nil
	}
	k := ledger.Kind(raw)
	if !k.Valid() {
		return nil, ledger.ErrInvalidKind
	}
	return &k, nil
}

type submitRequest struct {
	Kind         string   `json:"kind"`
	Message      string   `json:"message"`
	EvidenceRefs []string `json:"evidence_refs"`
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.requestService.Submit(r.Context(), ledger.SubmitParams{
		DogID:        chi.URLParam(r, "dogID"),
		UserID:       principalFrom(r.Context()).UserID,
		Kind:         ledger.Kind(req.Kind),
		Message:      req.Message,
		EvidenceRefs: req.EvidenceRefs,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestResponse(rec))
}

func (s *Server) handleDogRequests(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recs, err := s.requestService.ListForDog(r.Context(), chi.URLParam(r, "dogID"), kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": toRequestList(recs)})
}

func (s *Server) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recs, err := s.requestService.ListForUser(r.Context(), principalFrom(r.Context()).UserID, kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": toRequestList(recs)})
}

type resolveRequest struct {
	Decision string `json:"decision"`
}

type resolveResponse struct {
	Request         requestResponse   `json:"request"`
	Dog             dogResponse       `json:"dog"`
	DogChanged      bool              `json:"dog_changed"`
	CascadeRejected []requestResponse `json:"cascade_rejected"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := s.resolver.Resolve(r.Context(), resolution.ResolveParams{
		RequestID: chi.URLParam(r, "requestID"),
		Decision:  resolution.Decision(req.Decision),
		AdminID:   principalFrom(r.Context()).UserID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Request:         toRequestResponse(out.Request),
		Dog:             toDogResponse(out.Dog, s.clock()),
		DogChanged:      out.DogChanged,
		CascadeRejected: toRequestList(out.CascadeRejected),
	})
}

type captureResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Reason        string     `json:"reason"`
	Description   string     `json:"description,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	ImageRef      string     `json:"image_ref,omitempty"`
	Status        string     `json:"status"`
	AssignedAdmin *string    `json:"assigned_admin,omitempty"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	AdminMessage  string     `json:"admin_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

func toCaptureResponse(c capture.Record) captureResponse {
	return captureResponse{
		ID:            c.ID,
		UserID:        c.UserID,
		Reason:        string(c.Reason),
		Description:   c.Description,
		Latitude:      c.Latitude,
		Longitude:     c.Longitude,
		ImageRef:      c.ImageRef,
		Status:        string(c.Status),
		AssignedAdmin: c.AssignedAdmin,
		ScheduledDate: c.ScheduledDate,
		AdminMessage:  c.AdminMessage,
		CreatedAt:     c.CreatedAt,
		ResolvedAt:    c.ResolvedAt,
	}
}

func toCaptureList(recs []capture.Record) []captureResponse {
	out := make([]captureResponse, 0, len(recs))
	for _, c := range recs {
		out = append(out, toCaptureResponse(c))
	}
	return out
}

type fileCaptureRequest struct {
	Reason      string   `json:"reason"`
	Description string   `json:"description"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	ImageRef    string   `json:"image_ref"`
}

func (s *Server) handleFileCapture(w http.ResponseWriter, r *http.Request) {
	var req fileCaptureRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := s.captureService.File(r.Context(), capture.FileParams{
		UserID:      principalFrom(r.Context()).UserID,
		Reason:      capture.Reason(req.Reason),
		Description: req.Description,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		ImageRef:    req.ImageRef,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCaptureResponse(c))
}

func (s *Server) handleMyCaptures(w http.ResponseWriter, r *http.Request) {
	recs, err := s.captureService.ListForUser(r.Context(), principalFrom(r.Context()).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"captures": toCaptureList(recs)})
}

func (s *Server) handleAdminCaptures(w http.ResponseWriter, r *http.Request) {
	status := capture.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "unknown capture status")
		return
	}
	recs, err := s.captureService.ListAll(r.Context(), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"captures": toCaptureList(recs)})
}

type resolveCaptureRequest struct {
	Decision      string     `json:"decision"`
	ScheduledDate *time.Time `json:"scheduled_date"`
	Message       string     `json:"message"`
}

func (s *Server) handleResolveCapture(w http.ResponseWriter, r *http.Request) {
	var req resolveCaptureRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := s.captureService.Resolve(r.Context(), capture.ResolveParams{
		CaptureID:     chi.URLParam(r, "captureID"),
		AdminID:       principalFrom(r.Context()).UserID,
		Decision:      capture.Decision(req.Decision),
		ScheduledDate: req.ScheduledDate,
		Message:       req.Message,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaptureResponse(c))
}
