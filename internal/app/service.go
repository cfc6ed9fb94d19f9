package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"cassian/api/internal/access"
	"cassian/api/internal/auth"
	"cassian/api/internal/config"
	"cassian/api/internal/identity"
	"cassian/api/internal/session"
	"cassian/api/internal/store"
	"cassian/api/internal/util"
	"github.com/google/uuid"
)

// defaultElementTypeLabel is seeded into every project and can never be
// deleted.
const defaultElementTypeLabel = "Folder"
const defaultElementTypeIcon = "fa fa-folder"

type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByUsername(context.Context, string) (store.User, error)
	GetProject(context.Context, string) (store.Project, error)
	GetProjectIDByOwnerSlug(ctx context.Context, ownerID, slug string) (string, error)
	ListAccessibleProjects(ctx context.Context, viewerID string) ([]store.Project, error)
	ListProjectsOwnedBy(ctx context.Context, ownerID, viewerID string) ([]store.Project, error)
	InsertProject(context.Context, store.Project) error
	UpdateProject(context.Context, store.Project) error
	AddProjectMember(ctx context.Context, projectID, userID, role string) error
	AllocateFriendlyID(ctx context.Context, projectID string) (int, error)
	ListElementTypes(ctx context.Context, projectID string) ([]store.ElementType, error)
	GetElementType(ctx context.Context, typeID string) (store.ElementType, error)
	InsertElementType(context.Context, store.ElementType) error
	DeleteElementType(ctx context.Context, typeID string) error
	ListRootElements(ctx context.Context, projectID string) ([]store.Element, error)
	ListChildElements(ctx context.Context, projectID, parentID string) ([]store.Element, error)
	GetElement(ctx context.Context, projectID, elementID string) (store.Element, error)
	InsertElement(context.Context, store.Element) error
	ListTasks(ctx context.Context, projectID string) ([]store.Task, error)
	TaskNameExists(ctx context.Context, projectID, name string) (bool, error)
	GetTaskByFriendlyID(ctx context.Context, projectID string, friendlyID int) (store.Task, error)
	InsertTask(context.Context, store.Task) error
}

type refreshStore interface {
	Save(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (string, error)
	Revoke(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	users     *identity.Service
	sessions  refreshStore
	jwtSecret []byte
}

func New(cfg config.Config, dataStore *store.PostgresStore, users *identity.Service, sessions *session.RedisStore, jwtSecret string) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		users:     users,
		sessions:  sessions,
		jwtSecret: []byte(jwtSecret),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Session facade

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	ExpiresAt    time.Time
}

// settingsStore is the slice of persistence the JWT-secret bootstrap needs.
type settingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// EnsureJWTSecret returns the configured secret, or loads the persisted one,
// or generates and persists a fresh secret on first boot.
func EnsureJWTSecret(ctx context.Context, settings settingsStore, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	secret, err := settings.GetSetting(ctx, "jwtSecret")
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	secret = uuid.NewString()
	if err := settings.SetSetting(ctx, "jwtSecret", secret); err != nil {
		return "", err
	}
	return secret, nil
}

func (s *Service) Register(ctx context.Context, req identity.RegisterRequest) (store.User, error) {
	user, err := s.users.Register(ctx, req)
	if err != nil {
		var validation identity.ValidationError
		if errors.As(err, &validation) {
			return store.User{}, validationError(validation.Error())
		}
		if errors.Is(err, store.ErrDuplicate) {
			return store.User{}, conflict("the username or email provided is already taken")
		}
		return store.User{}, err
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.VerifyCredentials(ctx, email, password)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "invalid email or password", nil)
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented token is revoked before a
// new session is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.Lookup(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token", nil)
		}
		return Session{}, err
	}
	if err := s.sessions.Revoke(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)

	token, err := auth.IssueToken(s.jwtSecret, user.ID, user.Username, uuid.NewString(), expiresAt)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.Save(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken re-derives the caller's identity from a presented access
// token. No in-process state is consulted.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.jwtSecret, token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		UserID:    user.ID,
		Username:  user.Username,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Userinfo(ctx context.Context, userID string) (store.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *Service) ListUsers(ctx context.Context) ([]store.PublicProfile, error) {
	return s.users.List(ctx)
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, update identity.ProfileUpdate) (store.User, error) {
	return s.users.UpdateProfile(ctx, userID, update)
}

// ---------------------------------------------------------------------------
// Project directory

// ResolveProjectID maps (owner username, slug) to a project id. The owning
// user is looked up first; either lookup missing yields NotFound.
func (s *Service) ResolveProjectID(ctx context.Context, ownerUsername, slug string) (string, error) {
	owner, err := s.store.GetUserByUsername(ctx, ownerUsername)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", notFound("project not found")
		}
		return "", err
	}
	projectID, err := s.store.GetProjectIDByOwnerSlug(ctx, owner.ID, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", notFound("project not found")
		}
		return "", err
	}
	return projectID, nil
}

// GetAccessibleProject returns the project when the viewer may see it.
// An existing but inaccessible project is reported exactly like a missing
// one, so callers cannot probe for private projects.
func (s *Service) GetAccessibleProject(ctx context.Context, viewerID, projectID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Project{}, notFound("project not found")
		}
		return store.Project{}, err
	}
	if !access.CanView(project, viewerID) {
		return store.Project{}, notFound("project not found")
	}
	return project, nil
}

func (s *Service) GetProjectBySlug(ctx context.Context, viewerID, ownerUsername, slug string) (store.Project, error) {
	projectID, err := s.ResolveProjectID(ctx, ownerUsername, slug)
	if err != nil {
		return store.Project{}, err
	}
	return s.GetAccessibleProject(ctx, viewerID, projectID)
}

func (s *Service) ListAccessibleProjects(ctx context.Context, viewerID string) ([]store.Project, error) {
	return s.store.ListAccessibleProjects(ctx, viewerID)
}

// ListProjectsOwnedBy returns the named owner's projects visible to the
// viewer. An unknown owner username yields an empty list, not an error.
func (s *Service) ListProjectsOwnedBy(ctx context.Context, viewerID, ownerUsername string) ([]store.Project, error) {
	owner, err := s.store.GetUserByUsername(ctx, ownerUsername)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.store.ListProjectsOwnedBy(ctx, owner.ID, viewerID)
}

func (s *Service) CreateProject(ctx context.Context, ownerID, name, about string) (store.Project, error) {
	if strings.TrimSpace(name) == "" {
		return store.Project{}, validationError("the project must have a name")
	}

	project := store.Project{
		ID:               util.NewID("prj"),
		Name:             name,
		Slug:             util.Slugify(name),
		About:            about,
		OwnerID:          ownerID,
		Tags:             []string{},
		Public:           true,
		AllowSuggestions: true,
		NextFriendlyID:   0,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.Project{}, conflict("you already own a project with the same name")
		}
		return store.Project{}, err
	}
	return s.GetAccessibleProject(ctx, ownerID, project.ID)
}

type EditProjectInput struct {
	Name        string
	Description string
	Summary     *string
	Tags        []string
}

// EditProject renames and redescribes a project. A rename re-derives the
// slug; the (owner, slug) constraint rejects a collision with another of the
// owner's projects and the original row stays untouched.
func (s *Service) EditProject(ctx context.Context, viewerID, projectID string, input EditProjectInput) (store.Project, error) {
	project, err := s.GetAccessibleProject(ctx, viewerID, projectID)
	if err != nil {
		return store.Project{}, err
	}

	if strings.TrimSpace(input.Name) == "" {
		return store.Project{}, validationError("you must provide a name for the project")
	}
	if strings.TrimSpace(input.Description) == "" {
		return store.Project{}, validationError("you must provide a description for the project")
	}

	if input.Name != project.Name {
		newSlug := util.Slugify(input.Name)
		existingID, err := s.store.GetProjectIDByOwnerSlug(ctx, project.OwnerID, newSlug)
		if err == nil && existingID != project.ID {
			return store.Project{}, conflict("a project with that name already exists")
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return store.Project{}, err
		}
		project.Name = input.Name
		project.Slug = newSlug
	}

	project.About = input.Description
	if input.Summary != nil {
		project.Summary = *input.Summary
	}
	if input.Tags != nil {
		project.Tags = input.Tags
	}

	if err := s.store.UpdateProject(ctx, project); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.Project{}, conflict("a project with that name already exists")
		}
		return store.Project{}, err
	}
	return s.GetAccessibleProject(ctx, viewerID, projectID)
}

// AddProjectMember grants a user the admin or dev role on a project.
func (s *Service) AddProjectMember(ctx context.Context, viewerID, projectID, username, role string) (store.Project, error) {
	project, err := s.GetAccessibleProject(ctx, viewerID, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if !access.IsAdmin(project, viewerID) {
		return store.Project{}, forbidden("you must be an administrator of the project to manage members")
	}
	if role != "admin" && role != "dev" {
		return store.Project{}, validationError("role must be admin or dev")
	}
	member, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Project{}, notFound("no user with that username was found")
		}
		return store.Project{}, err
	}
	if err := s.store.AddProjectMember(ctx, project.ID, member.ID, role); err != nil {
		return store.Project{}, err
	}
	return s.GetAccessibleProject(ctx, viewerID, projectID)
}

// ---------------------------------------------------------------------------
// Element tree

// ListElementTypes returns a project's element types, seeding the default
// Folder type on first call. The seed is the one write hidden on a read
// path; it is idempotent and a concurrent double-seed collapses onto the
// (project, label) constraint.
func (s *Service) ListElementTypes(ctx context.Context, viewerID, projectID string) ([]store.ElementType, error) {
	project, err := s.GetAccessibleProject(ctx, viewerID, projectID)
	if err != nil {
		return nil, err
	}

	types, err := s.store.ListElementTypes(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if len(types) > 0 {
		return types, nil
	}

	seed := store.ElementType{
		ID:        util.NewID("etype"),
		ProjectID: project.ID,
		Label:     defaultElementTypeLabel,
		Icon:      defaultElementTypeIcon,
	}
	if err := s.store.InsertElementType(ctx, seed); err != nil && !errors.Is(err, store.ErrDuplicate) {
		return nil, err
	}
	return s.store.ListElementTypes(ctx, project.ID)
}

func (s *Service) CreateElementType(ctx context.Context, viewerID, projectID, label, icon string) (store.ElementType, error) {
	project, err := s.GetAccessibleProject(ctx, viewerID, projectID)
	if err != nil {
		return store.ElementType{}, err
	}
	if !access.IsAdmin(project, viewerID) {
		return store.ElementType{}, forbidden("you must be an administrator of the project to create element types")
	}
	if strings.TrimSpace(label) == "" {
		return store.ElementType{}, validationError("you must provide a label for the element type")
	}
	if strings.TrimSpace(icon) == "" {
		icon = defaultElementTypeIcon
	}

	elementType := store.ElementType{
		ID:        util.NewID("etype"),
		ProjectID: project.ID,
		Label:     label,
		Icon:      icon,
	}
	if err := s.store.InsertElementType(ctx, elementType); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.ElementType{}, conflict("an element type with that label already exists")
		}
		return store.ElementType{}, err
	}
	return elementType, nil
}

func (s *Service) DeleteElementType(ctx context.Context, viewerID, typeID string) error {
	elementType, err := s.store.GetElementType(ctx, typeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("element type not found")
		}
		return err
	}
	project, err := s.GetAccessibleProject(ctx, viewerID, elementType.ProjectID)
	if err != nil {
		return err
	}
	if elementType.Label == defaultElementTypeLabel {
		return protectedEntity("the Folder element type cannot be deleted")
	}
	if !access.IsAdmin(project, viewerID) {
		return forbidden("you must be an administrator of the project to delete element types")
	}
	return s.store.DeleteElementType(ctx, typeID)
}

// elementVisible applies the suggestion rule: unapproved elements are only
// visible to project devs and to their own author.
func elementVisible(project store.Project, element store.Element, viewerID string) bool {
	if element.Approved {
		return true
	}
	return access.IsDev(project, viewerID) || (viewerID != "" && element.AuthorID == viewerID)
}

func filterVisible(project store.Project, elements []store.Element, viewerID string) []store.Element {
	filtered := make([]store.Element, 0, len(elements))
	for _, element := range elements {
		if elementVisible(project, element, viewerID) {
			filtered = append(filtered, element)
		}
	}
	return filtered
}

func (s *Service) ListRootElements(ctx context.Context, viewerID, projectID string) ([]store.Element, error) {
	project, err := s.GetAccessibleProject(ctx, viewerID, projectID)
	if err != nil {
		return nil, err
	}
	elements, err := s.store.ListRootElements(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	return filterVisible(project, elements, viewerID), nil
}

// GetElement returns one element. An unapproved element read by anyone other
// than a dev or its author is Forbidden, with no content attached.
func (s *Service) GetElement(ctx context.Context, viewerID, projectID, elementID string) (store.Element, error) {
	project, err := s.GetAccessibleProject(ctx, viewerID, projectID)
	if err != nil {
		return store.Element{}, err
	}
	element, err := s.store.GetElement(ctx, project.ID, elementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Element{}, notFound("element not found")
		}
		return store.Element{}, err
	}
	if !elementVisible(project, element, viewerID) {
		return store.Element{}, forbidden("you do not have permission to view this element")
	}
	return element, nil
}

func (s *Service) ListChildElements(ctx context.Context, viewerID, projectID, elementID string) ([]store.Element, error) {
	project, err := s.GetAccessibleProject(ctx, viewerID, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetElement(ctx, viewerID, projectID, elementID); err != nil {
		return nil, err
	}
	children, err := s.store.ListChildElements(ctx, project.ID, elementID)
	if err != nil {
		return nil, err
	}
	return filterVisible(project, children, viewerID), nil
}

// AncestorChain walks parent links from the element to its root and returns
// the ancestor ids ordered immediate-parent first, root last. The walk is
// iterative; depth is bounded only by the actual tree.
func (s *Service) AncestorChain(ctx context.Context, viewerID, projectID, elementID string) ([]string, error) {
	element, err := s.GetElement(ctx, viewerID, projectID, elementID)
	if err != nil {
		return nil, err
	}

	var chain []string
	seen := map[string]bool{element.ID: true}
	for element.ParentID != nil {
		parent, err := s.store.GetElement(ctx, projectID, *element.ParentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			return nil, err
		}
		if seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		chain = append(chain, parent.ID)
		element = parent
	}
	return chain, nil
}

type CreateElementInput struct {
	Name          string
	Content       string
	ElementTypeID string
	ParentID      *string
}

// CreateElement adds a node to the project's element forest. Non-dev authors
// produce unapproved suggestions; devs' elements are auto-approved.
func (s *Service) CreateElement(ctx context.Context, viewerID, projectID string, input CreateElementInput) (store.Element, error) {
	project, err := s.GetAccessibleProject(ctx, viewerID, projectID)
	if err != nil {
		return store.Element{}, err
	}

	if strings.TrimSpace(input.Name) == "" {
		return store.Element{}, validationError("you must provide a name for the element")
	}
	if strings.TrimSpace(input.Content) == "" {
		return store.Element{}, validationError("you must provide content for the element")
	}
	if input.ElementTypeID == "" {
		return store.Element{}, validationError("you must provide an element type")
	}

	elementType, err := s.store.GetElementType(ctx, input.ElementTypeID)
	if err != nil || elementType.ProjectID != project.ID {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return store.Element{}, err
		}
		return store.Element{}, validationError("the specified element type does not exist in this project")
	}

	if input.ParentID != nil {
		if _, err := s.store.GetElement(ctx, project.ID, *input.ParentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.Element{}, validationError("the specified parent element does not exist in this project")
			}
			return store.Element{}, err
		}
	}

	isDev := access.IsDev(project, viewerID)
	if !isDev && !project.AllowSuggestions {
		return store.Element{}, forbidden("this project does not accept suggestions")
	}

	element := store.Element{
		ID:            util.NewID("elem"),
		ProjectID:     project.ID,
		Name:          input.Name,
		Slug:          util.Slugify(input.Name),
		Content:       input.Content,
		AuthorID:      viewerID,
		ElementTypeID: elementType.ID,
		ParentID:      input.ParentID,
		Approved:      isDev,
	}
	if isDev {
		element.ApprovedByID = &element.AuthorID
	}

	if err := s.store.InsertElement(ctx, element); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.Element{}, conflict("an element with that name already exists under the same parent")
		}
		return store.Element{}, err
	}
	return element, nil
}

// ---------------------------------------------------------------------------
// Task ledger

func (s *Service) ListTasks(ctx context.Context, viewerID, projectID string) ([]store.Task, error) {
	project, err := s.GetAccessibleProject(ctx, viewerID, projectID)
	if err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, project.ID)
}

func (s *Service) GetTaskByFriendlyID(ctx context.Context, viewerID, projectID string, friendlyID int) (store.Task, error) {
	project, err := s.GetAccessibleProject(ctx, viewerID, projectID)
	if err != nil {
		return store.Task{}, err
	}
	task, err := s.store.GetTaskByFriendlyID(ctx, project.ID, friendlyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Task{}, notFound("a task with that id was not found")
		}
		return store.Task{}, err
	}
	return task, nil
}

type CreateTaskInput struct {
	Name        string
	Description string
	ElementID   *string
	AssignedTo  []string
	Requires    []string
}

// CreateTask mints a friendly id from the project counter and persists the
// task. The allocation happens only after every check has passed; if the
// insert still fails the allocated id stays burned, leaving a gap but never
// a duplicate.
func (s *Service) CreateTask(ctx context.Context, viewerID, projectID string, input CreateTaskInput) (store.Task, error) {
	project, err := s.GetAccessibleProject(ctx, viewerID, projectID)
	if err != nil {
		return store.Task{}, err
	}
	if !access.IsDev(project, viewerID) {
		return store.Task{}, forbidden("you must be a developer of the project to create tasks")
	}
	if strings.TrimSpace(input.Name) == "" {
		return store.Task{}, validationError("you must specify a task name")
	}

	exists, err := s.store.TaskNameExists(ctx, project.ID, input.Name)
	if err != nil {
		return store.Task{}, err
	}
	if exists {
		return store.Task{}, conflict("a task with that name already exists")
	}

	var taskElements []string
	if input.ElementID != nil && *input.ElementID != "" {
		// A requested-but-missing element is a distinct condition from
		// "no element requested"; callers rely on the code to tell them
		// apart from plain validation failures.
		if _, err := s.store.GetElement(ctx, project.ID, *input.ElementID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.Task{}, domainError(http.StatusNotFound, "ELEMENT_NOT_FOUND",
					"the specified design element for this new task was not found in the project", nil)
			}
			return store.Task{}, err
		}
		taskElements = []string{*input.ElementID}
	}

	friendlyID, err := s.store.AllocateFriendlyID(ctx, project.ID)
	if err != nil {
		return store.Task{}, err
	}

	task := store.Task{
		ID:          util.NewID("task"),
		ProjectID:   project.ID,
		FriendlyID:  friendlyID,
		Name:        input.Name,
		Description: input.Description,
		Status:      "pending",
		AuthorID:    viewerID,
		Elements:    taskElements,
		AssignedTo:  input.AssignedTo,
		Requires:    input.Requires,
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.Task{}, conflict("a task with that name already exists")
		}
		return store.Task{}, err
	}
	return task, nil
}
