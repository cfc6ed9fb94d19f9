package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate reports a storage-level uniqueness violation. Check-then-insert
// sequences in the service treat it as the authoritative conflict signal.
var ErrDuplicate = errors.New("duplicate key")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---------------------------------------------------------------------------
// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, full_name, about,
			website_url, github_url, avatar_url, cover_url, prefer_full_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, user.ID, user.Email, user.Username, user.PasswordHash, user.FullName, user.About,
		user.WebsiteURL, user.GithubURL, user.AvatarURL, user.CoverURL, user.PreferFullName)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, email, username, password_hash, full_name, about,
	website_url, github_url, avatar_url, cover_url, prefer_full_name, created_at`

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash,
		&user.FullName, &user.About, &user.WebsiteURL, &user.GithubURL,
		&user.AvatarURL, &user.CoverURL, &user.PreferFullName, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username))
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash,
			&user.FullName, &user.About, &user.WebsiteURL, &user.GithubURL,
			&user.AvatarURL, &user.CoverURL, &user.PreferFullName, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET full_name=$2, about=$3, website_url=$4, github_url=$5,
			avatar_url=$6, cover_url=$7, prefer_full_name=$8
		WHERE id=$1
	`, user.ID, user.FullName, user.About, user.WebsiteURL, user.GithubURL,
		user.AvatarURL, user.CoverURL, user.PreferFullName)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Settings

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=$1`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Projects

const projectColumns = `p.id, p.name, p.slug, p.about, p.summary, p.owner_id,
	p.tags_json::text, p.public, p.allow_suggestions, p.next_friendly_id, p.created_at,
	u.id, u.username, u.full_name, u.about, u.website_url, u.github_url,
	u.avatar_url, u.cover_url, u.prefer_full_name`

func scanProject(scan func(...any) error) (Project, error) {
	var project Project
	var owner PublicProfile
	var tagsJSON string
	err := scan(&project.ID, &project.Name, &project.Slug, &project.About, &project.Summary,
		&project.OwnerID, &tagsJSON, &project.Public, &project.AllowSuggestions,
		&project.NextFriendlyID, &project.CreatedAt,
		&owner.ID, &owner.Username, &owner.FullName, &owner.About, &owner.WebsiteURL,
		&owner.GithubURL, &owner.AvatarURL, &owner.CoverURL, &owner.PreferFullName)
	if err != nil {
		return Project{}, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &project.Tags); err != nil {
		return Project{}, fmt.Errorf("decode project tags: %w", err)
	}
	project.Owner = &owner
	return project, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	tags, err := json.Marshal(project.Tags)
	if err != nil {
		return fmt.Errorf("encode project tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, slug, about, summary, owner_id, tags_json,
			public, allow_suggestions, next_friendly_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, project.ID, project.Name, project.Slug, project.About, project.Summary,
		project.OwnerID, string(tags), project.Public, project.AllowSuggestions,
		project.NextFriendlyID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		JOIN users u ON u.id = p.owner_id
		WHERE p.id = $1
	`, projectID)
	project, err := scanProject(row.Scan)
	if err != nil {
		return Project{}, err
	}
	if err := s.attachMembers(ctx, []*Project{&project}); err != nil {
		return Project{}, err
	}
	return project, nil
}

func (s *PostgresStore) GetProjectIDByOwnerSlug(ctx context.Context, ownerID, slug string) (string, error) {
	var projectID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM projects WHERE owner_id=$1 AND slug=$2`, ownerID, slug).Scan(&projectID)
	if err != nil {
		return "", err
	}
	return projectID, nil
}

// ListAccessibleProjects returns the projects that are public or carry the
// viewer as owner, admin or dev. An empty viewerID means anonymous and yields
// public projects only.
func (s *PostgresStore) ListAccessibleProjects(ctx context.Context, viewerID string) ([]Project, error) {
	const query = `
		SELECT ` + projectColumns + `
		FROM projects p
		JOIN users u ON u.id = p.owner_id
		WHERE p.public
			OR ($1 <> '' AND (p.owner_id = $1 OR EXISTS (
				SELECT 1 FROM project_members m
				WHERE m.project_id = p.id AND m.user_id = $1
			)))
		ORDER BY p.created_at, p.id
	`
	return s.queryProjects(ctx, query, viewerID)
}

// ListProjectsOwnedBy intersects the named owner's projects with what the
// viewer may see.
func (s *PostgresStore) ListProjectsOwnedBy(ctx context.Context, ownerID, viewerID string) ([]Project, error) {
	const query = `
		SELECT ` + projectColumns + `
		FROM projects p
		JOIN users u ON u.id = p.owner_id
		WHERE p.owner_id = $1
			AND (p.public
				OR ($2 <> '' AND (p.owner_id = $2 OR EXISTS (
					SELECT 1 FROM project_members m
					WHERE m.project_id = p.id AND m.user_id = $2
				))))
		ORDER BY p.created_at, p.id
	`
	return s.queryProjects(ctx, query, ownerID, viewerID)
}

func (s *PostgresStore) queryProjects(ctx context.Context, query string, args ...any) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, &project)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachMembers(ctx, projects); err != nil {
		return nil, err
	}

	result := make([]Project, len(projects))
	for i, project := range projects {
		result[i] = *project
	}
	return result, nil
}

func (s *PostgresStore) attachMembers(ctx context.Context, projects []*Project) error {
	if len(projects) == 0 {
		return nil
	}
	ids := make([]string, len(projects))
	byID := make(map[string]*Project, len(projects))
	for i, project := range projects {
		ids[i] = project.ID
		byID[project.ID] = project
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, user_id, role
		FROM project_members
		WHERE project_id = ANY($1)
		ORDER BY added_at, user_id
	`, ids)
	if err != nil {
		return fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var projectID, userID, role string
		if err := rows.Scan(&projectID, &userID, &role); err != nil {
			return fmt.Errorf("scan project member: %w", err)
		}
		project := byID[projectID]
		if project == nil {
			continue
		}
		switch role {
		case "admin":
			project.Admins = append(project.Admins, userID)
		case "dev":
			project.Devs = append(project.Devs, userID)
		}
	}
	return rows.Err()
}

func (s *PostgresStore) AddProjectMember(ctx context.Context, projectID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id, role) DO NOTHING
	`, projectID, userID, role)
	if err != nil {
		return fmt.Errorf("add project member: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, project Project) error {
	tags, err := json.Marshal(project.Tags)
	if err != nil {
		return fmt.Errorf("encode project tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE projects
		SET name=$2, slug=$3, about=$4, summary=$5, tags_json=$6,
			public=$7, allow_suggestions=$8
		WHERE id=$1
	`, project.ID, project.Name, project.Slug, project.About, project.Summary,
		string(tags), project.Public, project.AllowSuggestions)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// AllocateFriendlyID returns the project's current counter value and advances
// it, in a single statement. Concurrent allocations serialize on the row, so
// no two calls ever observe the same value.
func (s *PostgresStore) AllocateFriendlyID(ctx context.Context, projectID string) (int, error) {
	var allocated int
	err := s.db.QueryRowContext(ctx, `
		UPDATE projects
		SET next_friendly_id = next_friendly_id + 1
		WHERE id = $1
		RETURNING next_friendly_id - 1
	`, projectID).Scan(&allocated)
	if err != nil {
		return 0, fmt.Errorf("allocate friendly id: %w", err)
	}
	return allocated, nil
}

// ---------------------------------------------------------------------------
// Element types

func (s *PostgresStore) ListElementTypes(ctx context.Context, projectID string) ([]ElementType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, label, icon, created_at
		FROM element_types
		WHERE project_id=$1
		ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list element types: %w", err)
	}
	defer rows.Close()

	var types []ElementType
	for rows.Next() {
		var elementType ElementType
		if err := rows.Scan(&elementType.ID, &elementType.ProjectID, &elementType.Label,
			&elementType.Icon, &elementType.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan element type: %w", err)
		}
		types = append(types, elementType)
	}
	return types, rows.Err()
}

func (s *PostgresStore) GetElementType(ctx context.Context, typeID string) (ElementType, error) {
	var elementType ElementType
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, label, icon, created_at
		FROM element_types
		WHERE id=$1
	`, typeID).Scan(&elementType.ID, &elementType.ProjectID, &elementType.Label,
		&elementType.Icon, &elementType.CreatedAt)
	if err != nil {
		return ElementType{}, err
	}
	return elementType, nil
}

func (s *PostgresStore) InsertElementType(ctx context.Context, elementType ElementType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO element_types (id, project_id, label, icon)
		VALUES ($1, $2, $3, $4)
	`, elementType.ID, elementType.ProjectID, elementType.Label, elementType.Icon)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert element type: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteElementType(ctx context.Context, typeID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM element_types WHERE id=$1`, typeID)
	if err != nil {
		return fmt.Errorf("delete element type: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Elements

const elementColumns = `id, project_id, name, slug, content, author_id,
	element_type_id, parent_id, approved, approved_by_id, created_at`

func scanElement(scan func(...any) error) (Element, error) {
	var element Element
	err := scan(&element.ID, &element.ProjectID, &element.Name, &element.Slug,
		&element.Content, &element.AuthorID, &element.ElementTypeID,
		&element.ParentID, &element.Approved, &element.ApprovedByID, &element.CreatedAt)
	if err != nil {
		return Element{}, err
	}
	return element, nil
}

func (s *PostgresStore) ListRootElements(ctx context.Context, projectID string) ([]Element, error) {
	return s.queryElements(ctx, `
		SELECT `+elementColumns+`
		FROM elements
		WHERE project_id=$1 AND parent_id IS NULL
		ORDER BY created_at, id
	`, projectID)
}

func (s *PostgresStore) ListChildElements(ctx context.Context, projectID, parentID string) ([]Element, error) {
	return s.queryElements(ctx, `
		SELECT `+elementColumns+`
		FROM elements
		WHERE project_id=$1 AND parent_id=$2
		ORDER BY created_at, id
	`, projectID, parentID)
}

func (s *PostgresStore) queryElements(ctx context.Context, query string, args ...any) ([]Element, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list elements: %w", err)
	}
	defer rows.Close()

	var elements []Element
	for rows.Next() {
		element, err := scanElement(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan element: %w", err)
		}
		elements = append(elements, element)
	}
	return elements, rows.Err()
}

func (s *PostgresStore) GetElement(ctx context.Context, projectID, elementID string) (Element, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+elementColumns+`
		FROM elements
		WHERE project_id=$1 AND id=$2
	`, projectID, elementID)
	return scanElement(row.Scan)
}

func (s *PostgresStore) InsertElement(ctx context.Context, element Element) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO elements (id, project_id, name, slug, content, author_id,
			element_type_id, parent_id, approved, approved_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, element.ID, element.ProjectID, element.Name, element.Slug, element.Content,
		element.AuthorID, element.ElementTypeID, element.ParentID, element.Approved,
		element.ApprovedByID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert element: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tasks

func (s *PostgresStore) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, friendly_id, name, description, status, author_id, created_at
		FROM tasks
		WHERE project_id=$1
		ORDER BY friendly_id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var task Task
		if err := rows.Scan(&task.ID, &task.ProjectID, &task.FriendlyID, &task.Name,
			&task.Description, &task.Status, &task.AuthorID, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachTaskRelations(ctx, tasks); err != nil {
		return nil, err
	}

	result := make([]Task, len(tasks))
	for i, task := range tasks {
		result[i] = *task
	}
	return result, nil
}

func (s *PostgresStore) TaskNameExists(ctx context.Context, projectID, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tasks WHERE project_id=$1 AND name=$2)`,
		projectID, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check task name: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetTaskByFriendlyID(ctx context.Context, projectID string, friendlyID int) (Task, error) {
	var task Task
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, friendly_id, name, description, status, author_id, created_at
		FROM tasks
		WHERE project_id=$1 AND friendly_id=$2
	`, projectID, friendlyID).Scan(&task.ID, &task.ProjectID, &task.FriendlyID, &task.Name,
		&task.Description, &task.Status, &task.AuthorID, &task.CreatedAt)
	if err != nil {
		return Task{}, err
	}
	if err := s.attachTaskRelations(ctx, []*Task{&task}); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (s *PostgresStore) attachTaskRelations(ctx context.Context, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]string, len(tasks))
	byID := make(map[string]*Task, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
		byID[task.ID] = task
	}

	relations := []struct {
		query  string
		assign func(task *Task, id string)
	}{
		{
			query:  `SELECT task_id, element_id FROM task_elements WHERE task_id = ANY($1)`,
			assign: func(task *Task, id string) { task.Elements = append(task.Elements, id) },
		},
		{
			query:  `SELECT task_id, user_id FROM task_assignees WHERE task_id = ANY($1)`,
			assign: func(task *Task, id string) { task.AssignedTo = append(task.AssignedTo, id) },
		},
		{
			query:  `SELECT task_id, requires_id FROM task_requires WHERE task_id = ANY($1)`,
			assign: func(task *Task, id string) { task.Requires = append(task.Requires, id) },
		},
	}

	for _, relation := range relations {
		rows, err := s.db.QueryContext(ctx, relation.query, ids)
		if err != nil {
			return fmt.Errorf("list task relations: %w", err)
		}
		for rows.Next() {
			var taskID, relatedID string
			if err := rows.Scan(&taskID, &relatedID); err != nil {
				rows.Close()
				return fmt.Errorf("scan task relation: %w", err)
			}
			if task := byID[taskID]; task != nil {
				relation.assign(task, relatedID)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

// InsertTask writes the task and its relation rows in one transaction, so an
// aborted chain leaves no partial task behind.
func (s *PostgresStore) InsertTask(ctx context.Context, task Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin task tx: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, friendly_id, name, description, status, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, task.ID, task.ProjectID, task.FriendlyID, task.Name, task.Description,
		task.Status, task.AuthorID)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert task: %w", err)
	}

	relations := []struct {
		query string
		ids   []string
	}{
		{query: `INSERT INTO task_elements (task_id, element_id) VALUES ($1, $2)`, ids: task.Elements},
		{query: `INSERT INTO task_assignees (task_id, user_id) VALUES ($1, $2)`, ids: task.AssignedTo},
		{query: `INSERT INTO task_requires (task_id, requires_id) VALUES ($1, $2)`, ids: task.Requires},
	}
	for _, relation := range relations {
		for _, relatedID := range relation.ids {
			if _, err := tx.ExecContext(ctx, relation.query, task.ID, relatedID); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("insert task relation: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit task: %w", err)
	}
	return nil
}
