package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cassian/api/internal/auth"
	"cassian/api/internal/identity"
	"cassian/api/internal/store"
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
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.service.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "auth":
		s.handleAuth(w, r, parts[2:])
	case "users":
		s.handleUsers(w, r, parts[2:])
	case "projects":
		s.handleProjects(w, r, parts[2:])
	case "elements":
		s.handleElements(w, r, parts[2:])
	case "tasks":
		s.handleTasks(w, r, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// ---------------------------------------------------------------------------
// Auth

func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case r.Method == http.MethodPost && parts[0] == "create-user":
		var body struct {
			Email           string `json:"email"`
			ConfirmEmail    string `json:"confirmEmail"`
			Username        string `json:"username"`
			Password        string `json:"password"`
			ConfirmPassword string `json:"confirmPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.Register(r.Context(), identity.RegisterRequest{
			Email:           body.Email,
			ConfirmEmail:    body.ConfirmEmail,
			Username:        body.Username,
			Password:        body.Password,
			ConfirmPassword: body.ConfirmPassword,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": user.Public()})

	case r.Method == http.MethodPost && parts[0] == "login":
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionView(session))

	case r.Method == http.MethodPost && parts[0] == "refresh":
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionView(session))

	case r.Method == http.MethodGet && parts[0] == "userinfo":
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		user, err := s.service.Userinfo(r.Context(), session.UserID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		view := map[string]any{"user": user.Public()}
		// The caller sees their own email; nobody else's view includes it.
		view["email"] = user.Email
		writeJSON(w, http.StatusOK, view)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 0:
		users, err := s.service.ListUsers(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})

	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "edit":
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			FullName       *string `json:"fullName"`
			About          *string `json:"about"`
			WebsiteURL     *string `json:"websiteUrl"`
			GithubURL      *string `json:"githubUrl"`
			AvatarURL      *string `json:"avatarUrl"`
			CoverURL       *string `json:"coverUrl"`
			PreferFullName *bool   `json:"preferFullName"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.UpdateProfile(r.Context(), session.UserID, identity.ProfileUpdate{
			FullName:       body.FullName,
			About:          body.About,
			WebsiteURL:     body.WebsiteURL,
			GithubURL:      body.GithubURL,
			AvatarURL:      body.AvatarURL,
			CoverURL:       body.CoverURL,
			PreferFullName: body.PreferFullName,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user.Public()})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// ---------------------------------------------------------------------------
// Projects

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 0:
		session, ok := s.optionalSession(w, r)
		if !ok {
			return
		}
		projects, err := s.service.ListAccessibleProjects(r.Context(), session.UserID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projectViews(projects)})

	case r.Method == http.MethodPost && len(parts) == 0:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			Name  string `json:"name"`
			About string `json:"about"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		project, err := s.service.CreateProject(r.Context(), session.UserID, body.Name, body.About)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"project": projectView(project)})

	case r.Method == http.MethodGet && len(parts) == 1:
		session, ok := s.optionalSession(w, r)
		if !ok {
			return
		}
		projects, err := s.service.ListProjectsOwnedBy(r.Context(), session.UserID, parts[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projectViews(projects)})

	case r.Method == http.MethodGet && len(parts) == 2:
		session, ok := s.optionalSession(w, r)
		if !ok {
			return
		}
		project, err := s.service.GetProjectBySlug(r.Context(), session.UserID, parts[0], parts[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"project": projectView(project)})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "edit":
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Summary     *string  `json:"summary"`
			Tags        []string `json:"tags"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		projectID, err := s.service.ResolveProjectID(r.Context(), parts[0], parts[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		project, err := s.service.EditProject(r.Context(), session.UserID, projectID, EditProjectInput{
			Name:        body.Name,
			Description: body.Description,
			Summary:     body.Summary,
			Tags:        body.Tags,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"project": projectView(project)})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "members":
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		projectID, err := s.service.ResolveProjectID(r.Context(), parts[0], parts[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		project, err := s.service.AddProjectMember(r.Context(), session.UserID, projectID, body.Username, body.Role)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"project": projectView(project)})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// ---------------------------------------------------------------------------
// Elements

func (s *HTTPServer) handleElements(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) > 0 && parts[0] == "types" {
		s.handleElementTypes(w, r, parts[1:])
		return
	}

	session, ok := s.optionalSession(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		elements, err := s.service.ListRootElements(r.Context(), session.UserID, parts[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"elements": elementViews(elements)})

	case r.Method == http.MethodPost && len(parts) == 1:
		if session.UserID == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		var body struct {
			Name          string  `json:"name"`
			Content       string  `json:"content"`
			ElementTypeID string  `json:"elementType"`
			ParentID      *string `json:"parent"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		element, err := s.service.CreateElement(r.Context(), session.UserID, parts[0], CreateElementInput{
			Name:          body.Name,
			Content:       body.Content,
			ElementTypeID: body.ElementTypeID,
			ParentID:      body.ParentID,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"element": elementView(element)})

	case r.Method == http.MethodGet && len(parts) == 2:
		element, err := s.service.GetElement(r.Context(), session.UserID, parts[0], parts[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"element": elementView(element)})

	case r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "children":
		elements, err := s.service.ListChildElements(r.Context(), session.UserID, parts[0], parts[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"elements": elementViews(elements)})

	case r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "parents":
		chain, err := s.service.AncestorChain(r.Context(), session.UserID, parts[0], parts[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		if chain == nil {
			chain = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"parents": chain})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleElementTypes(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		session, ok := s.optionalSession(w, r)
		if !ok {
			return
		}
		types, err := s.service.ListElementTypes(r.Context(), session.UserID, parts[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"types": elementTypeViews(types)})

	case r.Method == http.MethodPost && len(parts) == 1:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			Label string `json:"label"`
			Icon  string `json:"icon"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		elementType, err := s.service.CreateElementType(r.Context(), session.UserID, parts[0], body.Label, body.Icon)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"type": elementTypeView(elementType)})

	case r.Method == http.MethodDelete && len(parts) == 2:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		if err := s.service.DeleteElementType(r.Context(), session.UserID, parts[1]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// ---------------------------------------------------------------------------
// Tasks

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		session, ok := s.optionalSession(w, r)
		if !ok {
			return
		}
		tasks, err := s.service.ListTasks(r.Context(), session.UserID, parts[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": taskViews(tasks)})

	case r.Method == http.MethodPost && len(parts) == 1:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Element     *string  `json:"element"`
			AssignedTo  []string `json:"assignedTo"`
			Requires    []string `json:"requires"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		task, err := s.service.CreateTask(r.Context(), session.UserID, parts[0], CreateTaskInput{
			Name:        body.Name,
			Description: body.Description,
			ElementID:   body.Element,
			AssignedTo:  body.AssignedTo,
			Requires:    body.Requires,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"task": taskView(task)})

	case r.Method == http.MethodGet && len(parts) == 2:
		session, ok := s.optionalSession(w, r)
		if !ok {
			return
		}
		friendlyID, err := strconv.Atoi(parts[1])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "a task with that id was not found", nil)
			return
		}
		task, err := s.service.GetTaskByFriendlyID(r.Context(), session.UserID, parts[0], friendlyID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"task": taskView(task)})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// ---------------------------------------------------------------------------
// Views

func sessionView(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"username":     session.Username,
		"expiresAt":    session.ExpiresAt,
	}
}

func projectView(project store.Project) map[string]any {
	view := map[string]any{
		"id":               project.ID,
		"name":             project.Name,
		"slug":             project.Slug,
		"about":            project.About,
		"summary":          project.Summary,
		"owner":            project.OwnerID,
		"admins":           emptyIfNil(project.Admins),
		"devs":             emptyIfNil(project.Devs),
		"tags":             emptyIfNil(project.Tags),
		"public":           project.Public,
		"allowSuggestions": project.AllowSuggestions,
		"createdAt":        project.CreatedAt,
	}
	if project.Owner != nil {
		view["owner"] = project.Owner
	}
	return view
}

func projectViews(projects []store.Project) []map[string]any {
	views := make([]map[string]any, len(projects))
	for i, project := range projects {
		views[i] = projectView(project)
	}
	return views
}

func elementView(element store.Element) map[string]any {
	view := map[string]any{
		"id":          element.ID,
		"project":     element.ProjectID,
		"name":        element.Name,
		"slug":        element.Slug,
		"content":     element.Content,
		"author":      element.AuthorID,
		"elementType": element.ElementTypeID,
		"approved":    element.Approved,
		"createdAt":   element.CreatedAt,
	}
	if element.ParentID != nil {
		view["parent"] = *element.ParentID
	}
	if element.ApprovedByID != nil {
		view["approvedBy"] = *element.ApprovedByID
	}
	return view
}

func elementViews(elements []store.Element) []map[string]any {
	views := make([]map[string]any, len(elements))
	for i, element := range elements {
		views[i] = elementView(element)
	}
	return views
}

func elementTypeView(elementType store.ElementType) map[string]any {
	return map[string]any{
		"id":      elementType.ID,
		"project": elementType.ProjectID,
		"label":   elementType.Label,
		"icon":    elementType.Icon,
	}
}

func elementTypeViews(types []store.ElementType) []map[string]any {
	views := make([]map[string]any, len(types))
	for i, elementType := range types {
		views[i] = elementTypeView(elementType)
	}
	return views
}

func taskView(task store.Task) map[string]any {
	return map[string]any{
		"id":          task.ID,
		"project":     task.ProjectID,
		"friendlyId":  task.FriendlyID,
		"name":        task.Name,
		"description": task.Description,
		"status":      task.Status,
		"author":      task.AuthorID,
		"elements":    emptyIfNil(task.Elements),
		"assignedTo":  emptyIfNil(task.AssignedTo),
		"requires":    emptyIfNil(task.Requires),
		"createdAt":   task.CreatedAt,
	}
}

func taskViews(tasks []store.Task) []map[string]any {
	views := make([]map[string]any, len(tasks))
	for i, task := range tasks {
		views[i] = taskView(task)
	}
	return views
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// ---------------------------------------------------------------------------
// Session helpers

// optionalSession resolves the caller's identity when an Authorization header
// is present, and treats its absence as an anonymous request. A header that
// is present but invalid is still a hard 401.
func (s *HTTPServer) optionalSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		return Session{}, true
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	return session, true
}

// ---------------------------------------------------------------------------
// Middleware and plumbing

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

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func setCORSHeaders(header http.Header, origin string) {
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
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
	var validation identity.ValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Error(), nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrDuplicate) {
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil
}
