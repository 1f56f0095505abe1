package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sharedlists/api/internal/auth"
	"sharedlists/api/internal/authpw"
	"sharedlists/api/internal/search"
	"sharedlists/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{}
		for name, err := range s.service.Readiness(ctx) {
			if err != nil {
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable
				checks[name] = map[string]any{"status": "error", "error": err.Error()}
				continue
			}
			checks[name] = map[string]any{"status": "ok"}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userName":      session.UserName,
			"userId":        session.UserID,
			"email":         session.Email,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/live" {
		s.handleLive(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	actor := session.Actor()

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r, actor)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case parts[1] == "spaces" && len(parts) == 2:
		s.handleSpaceCollection(w, r, actor)
		return
	case parts[1] == "spaces" && len(parts) == 3:
		s.handleSpace(w, r, actor, parts[2])
		return
	case parts[1] == "spaces" && len(parts) == 4 && parts[3] == "members":
		s.handleMembers(w, r, actor, parts[2])
		return
	case parts[1] == "spaces" && len(parts) == 5 && parts[3] == "members":
		s.handleMember(w, r, actor, parts[2], parts[4])
		return
	case parts[1] == "spaces" && len(parts) == 4 && parts[3] == "lists":
		s.handleLists(w, r, actor, parts[2])
		return
	case parts[1] == "lists" && len(parts) == 3:
		s.handleList(w, r, actor, parts[2])
		return
	case parts[1] == "lists" && len(parts) == 4 && parts[3] == "items":
		s.handleItems(w, r, actor, parts[2])
		return
	case parts[1] == "lists" && len(parts) == 5 && parts[3] == "items":
		s.handleItem(w, r, actor, parts[2], parts[4])
		return
	case parts[1] == "lists" && len(parts) == 6 && parts[3] == "items" && parts[5] == "move":
		s.handleMoveItem(w, r, actor, parts[2], parts[4])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSpaceCollection(w http.ResponseWriter, r *http.Request, actor Actor) {
	if r.Method == http.MethodGet {
		spaces, err := s.service.ListVisibleSpaces(r.Context(), actor)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"spaces": spacesPayload(spaces)})
		return
	}

	if r.Method == http.MethodPost {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		space, err := s.service.CreateSpace(r.Context(), actor, body.Name)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, spacePayload(space))
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleSpace(w http.ResponseWriter, r *http.Request, actor Actor, spaceID string) {
	if r.Method == http.MethodGet {
		view, err := s.service.GetSpace(r.Context(), actor, spaceID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := spacePayload(view.Space)
		payload["role"] = string(view.Role)
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPatch {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		space, err := s.service.RenameSpace(r.Context(), actor, spaceID, body.Name)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, spacePayload(space))
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.service.DeleteSpace(r.Context(), actor, spaceID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleMembers(w http.ResponseWriter, r *http.Request, actor Actor, spaceID string) {
	if r.Method == http.MethodGet {
		members, err := s.service.ListMembers(r.Context(), actor, spaceID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": membersPayload(members)})
		return
	}

	if r.Method == http.MethodPost {
		var body struct {
			Email string `json:"email"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		member, err := s.service.InviteMember(r.Context(), actor, spaceID, body.Email)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, memberPayload(member))
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleMember(w http.ResponseWriter, r *http.Request, actor Actor, spaceID, memberID string) {
	if r.Method == http.MethodPatch {
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		member, err := s.service.UpdateMemberRole(r.Context(), actor, spaceID, memberID, body.Role)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, memberPayload(member))
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.service.RemoveMember(r.Context(), actor, spaceID, memberID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleLists(w http.ResponseWriter, r *http.Request, actor Actor, spaceID string) {
	if r.Method == http.MethodGet {
		lists, err := s.service.ListLists(r.Context(), actor, spaceID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lists": listsPayload(lists)})
		return
	}

	if r.Method == http.MethodPost {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		list, err := s.service.CreateList(r.Context(), actor, spaceID, body.Name)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, listPayload(list))
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request, actor Actor, listID string) {
	if r.Method == http.MethodPatch {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		list, err := s.service.RenameList(r.Context(), actor, listID, body.Name)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listPayload(list))
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.service.DeleteList(r.Context(), actor, listID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleItems(w http.ResponseWriter, r *http.Request, actor Actor, listID string) {
	if r.Method == http.MethodGet {
		items, err := s.service.ListItems(r.Context(), actor, listID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": itemsPayload(items)})
		return
	}

	if r.Method == http.MethodPost {
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.AddItem(r.Context(), actor, listID, body.Text)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, itemPayload(item))
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleItem(w http.ResponseWriter, r *http.Request, actor Actor, listID, itemID string) {
	if r.Method == http.MethodPatch {
		var body struct {
			Text      *string `json:"text"`
			Completed *bool   `json:"completed"`
			Toggle    bool    `json:"toggle"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Text == nil && body.Completed == nil && !body.Toggle {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text, completed or toggle is required", nil)
			return
		}

		var (
			item store.Item
			err  error
		)
		if body.Text != nil {
			item, err = s.service.RenameItem(r.Context(), actor, listID, itemID, *body.Text)
		}
		if err == nil && body.Completed != nil {
			item, err = s.service.SetItemCompleted(r.Context(), actor, listID, itemID, *body.Completed)
		} else if err == nil && body.Toggle {
			item, err = s.service.ToggleItem(r.Context(), actor, listID, itemID)
		}
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, itemPayload(item))
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.service.DeleteItem(r.Context(), actor, listID, itemID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleMoveItem(w http.ResponseWriter, r *http.Request, actor Actor, listID, itemID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	var body struct {
		Direction string `json:"direction"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	items, err := s.service.MoveItem(r.Context(), actor, listID, itemID, body.Direction)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": itemsPayload(items)})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, actor Actor) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	filterType := strings.TrimSpace(r.URL.Query().Get("type"))
	if filterType != "" && filterType != string(search.ResultList) && filterType != string(search.ResultItem) {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be list or item", nil)
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return
		}
		limit = min(parsed, 100)
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
			return
		}
		offset = parsed
	}
	var spaceIDs []string
	if spaceID := strings.TrimSpace(r.URL.Query().Get("spaceId")); spaceID != "" {
		spaceIDs = []string{spaceID}
	}

	response, err := s.service.SearchItems(r.Context(), actor, search.Query{
		Text:       q,
		FilterType: search.ResultType(filterType),
		SpaceIDs:   spaceIDs,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the live endpoint take over the connection through the
// middleware's writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
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

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
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

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		log.Printf("app: %v", storeErr)
		return http.StatusServiceUnavailable, "STORE_ERROR", "Store unavailable", map[string]any{"op": storeErr.Op}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// Payloads

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"email":        session.Email,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func spacePayload(space store.Space) map[string]any {
	return map[string]any{
		"id":        space.ID,
		"name":      space.Name,
		"ownerId":   space.OwnerID,
		"createdAt": timestamp(space.CreatedAt),
		"updatedAt": timestamp(space.UpdatedAt),
	}
}

func spacesPayload(spaces []store.Space) []map[string]any {
	out := make([]map[string]any, 0, len(spaces))
	for _, space := range spaces {
		out = append(out, spacePayload(space))
	}
	return out
}

func memberPayload(member store.Membership) map[string]any {
	payload := map[string]any{
		"spaceId":     member.SpaceID,
		"uid":         member.UID,
		"role":        member.Role,
		"email":       member.Email,
		"displayName": member.DisplayName,
		"addedAt":     timestamp(member.AddedAt),
		"updatedAt":   nil,
	}
	if member.UpdatedAt != nil {
		payload["updatedAt"] = timestamp(*member.UpdatedAt)
	}
	return payload
}

func membersPayload(members []store.Membership) []map[string]any {
	out := make([]map[string]any, 0, len(members))
	for _, member := range members {
		out = append(out, memberPayload(member))
	}
	return out
}

func listPayload(list store.List) map[string]any {
	return map[string]any{
		"id":        list.ID,
		"name":      list.Name,
		"spaceId":   list.SpaceID,
		"createdBy": list.CreatedBy,
		"createdAt": timestamp(list.CreatedAt),
		"updatedAt": timestamp(list.UpdatedAt),
	}
}

func listsPayload(lists []store.List) []map[string]any {
	out := make([]map[string]any, 0, len(lists))
	for _, list := range lists {
		out = append(out, listPayload(list))
	}
	return out
}

func itemPayload(item store.Item) map[string]any {
	payload := map[string]any{
		"id":          item.ID,
		"listId":      item.ListID,
		"text":        item.Text,
		"completed":   item.Completed,
		"completedAt": nil,
		"createdBy":   item.CreatedBy,
		"createdAt":   timestamp(item.CreatedAt),
		"updatedAt":   timestamp(item.UpdatedAt),
		"order":       nil,
	}
	if item.CompletedAt != nil {
		payload["completedAt"] = timestamp(*item.CompletedAt)
	}
	if item.Order != nil {
		payload["order"] = *item.Order
	}
	return payload
}

func itemsPayload(items []store.Item) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, itemPayload(item))
	}
	return out
}
