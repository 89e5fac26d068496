package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/connectin/internal/model"
)

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

const projectColumns = `p.id, p.name, p.description, p.status, p.owner_id, p.created_at, p.updated_at`

func scanProject(row rowScanner) (*model.Project, error) {
	p := &model.Project{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanProjects(rows *sql.Rows) ([]model.Project, error) {
	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// Create はプロジェクトとタグ・スキルの関連を同一トランザクションで作成する。
func (r *PostgresProjectRepo) Create(ctx context.Context, project *model.Project, tagIDs, skillIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, status, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		project.ID, project.Name, project.Description, project.Status, project.OwnerID,
		project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	if err := insertLinks(ctx, tx, "project_tags", "project_id", "tag_id", project.ID, tagIDs); err != nil {
		return err
	}
	if err := insertLinks(ctx, tx, "project_skills", "project_id", "skill_id", project.ID, skillIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return p, nil
}

// Update はプロジェクトを更新する。
func (r *PostgresProjectRepo) Update(ctx context.Context, project *model.Project, tagIDs, skillIDs *[]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE projects
		 SET name = $2, description = $3, status = $4, updated_at = $5
		 WHERE id = $1`,
		project.ID, project.Name, project.Description, project.Status, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	if tagIDs != nil {
		if err := replaceLinks(ctx, tx, "project_tags", "project_id", "tag_id", project.ID, *tagIDs); err != nil {
			return err
		}
	}
	if skillIDs != nil {
		if err := replaceLinks(ctx, tx, "project_skills", "project_id", "skill_id", project.ID, *skillIDs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete はプロジェクトを削除する。
func (r *PostgresProjectRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireAffected(result)
}

// List は条件に一致するプロジェクトを作成日時の降順で返す。
func (r *PostgresProjectRepo) List(ctx context.Context, filter model.ProjectFilter) ([]model.Project, error) {
	// UUIDでないタグ・スキルIDはどのプロジェクトにも一致しない
	for _, id := range []string{filter.TagID, filter.SkillID} {
		if id != "" && !isUUID(id) {
			return []model.Project{}, nil
		}
	}

	var conds []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.TagID != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM project_tags pt WHERE pt.project_id = p.id AND pt.tag_id = `+next(filter.TagID)+`)`)
	}
	if filter.SkillID != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM project_skills ps WHERE ps.project_id = p.id AND ps.skill_id = `+next(filter.SkillID)+`)`)
	}
	if filter.Query != "" {
		ph := next("%" + escapeLike(filter.Query) + "%")
		conds = append(conds, `(p.name ILIKE `+ph+` OR p.description ILIKE `+ph+`)`)
	}

	query := `SELECT ` + projectColumns + ` FROM projects p`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY p.created_at DESC, p.id`
	if filter.Limit > 0 {
		query += ` LIMIT ` + next(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + next(filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()
	return scanProjects(rows)
}

// ListByUser はユーザーがオーナーまたはメンバーのプロジェクトを返す。
func (r *PostgresProjectRepo) ListByUser(ctx context.Context, userID string) ([]model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+`
		 FROM projects p
		 WHERE p.owner_id = $1
		    OR EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id = p.id AND pm.user_id = $1)
		 ORDER BY p.created_at DESC, p.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user projects: %w", err)
	}
	defer rows.Close()
	return scanProjects(rows)
}

// LoadDetails は一覧・詳細レスポンスに必要な関連情報をまとめて読み込む。
func (r *PostgresProjectRepo) LoadDetails(ctx context.Context, projects []model.Project) ([]model.ProjectDetail, error) {
	details := make([]model.ProjectDetail, len(projects))
	if len(projects) == 0 {
		return details, nil
	}

	ids := make([]string, len(projects))
	ownerIDs := make([]string, 0, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
		ownerIDs = append(ownerIDs, p.OwnerID)
	}

	owners, err := r.loadOwners(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}
	tags, err := loadLinkedTerms(ctx, r.db, "tags", "project_tags", "project_id", "tag_id", ids)
	if err != nil {
		return nil, err
	}
	skills, err := loadLinkedTerms(ctx, r.db, "skills", "project_skills", "project_id", "skill_id", ids)
	if err != nil {
		return nil, err
	}
	members, err := loadLinkedUsers(ctx, r.db, "project_members", "project_id", "joined_at", ids)
	if err != nil {
		return nil, err
	}
	applicants, err := loadLinkedUsers(ctx, r.db, "project_applications", "project_id", "created_at", ids)
	if err != nil {
		return nil, err
	}
	counts, err := r.loadCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i, p := range projects {
		c := counts[p.ID]
		details[i] = model.ProjectDetail{
			Project:       p,
			Owner:         owners[p.OwnerID],
			Tags:          nonNilTerms(tags[p.ID]),
			Skills:        nonNilTerms(skills[p.ID]),
			Members:       nonNilUsers(members[p.ID]),
			Applicants:    nonNilUsers(applicants[p.ID]),
			CommentsCount: c.comments,
			VoteCount:     c.votes,
		}
	}
	return details, nil
}

func (r *PostgresProjectRepo) loadOwners(ctx context.Context, ids []string) (map[string]model.UserSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, email, avatar_url FROM users WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load project owners: %w", err)
	}
	defer rows.Close()

	owners := make(map[string]model.UserSummary, len(ids))
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("failed to scan project owner: %w", err)
		}
		owners[u.ID] = u
	}
	return owners, rows.Err()
}

type projectCounts struct {
	comments int
	votes    int
}

func (r *PostgresProjectRepo) loadCounts(ctx context.Context, ids []string) (map[string]projectCounts, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id,
		        (SELECT COUNT(*) FROM comments c WHERE c.project_id = p.id),
		        COALESCE((SELECT SUM(CASE WHEN v.is_upvote THEN 1 ELSE -1 END) FROM votes v WHERE v.project_id = p.id), 0)
		 FROM projects p
		 WHERE p.id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load project counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]projectCounts, len(ids))
	for rows.Next() {
		var id string
		var c projectCounts
		if err := rows.Scan(&id, &c.comments, &c.votes); err != nil {
			return nil, fmt.Errorf("failed to scan project counts: %w", err)
		}
		counts[id] = c
	}
	return counts, rows.Err()
}

func nonNilTerms(t []model.Term) []model.Term {
	if t == nil {
		return []model.Term{}
	}
	return t
}

func nonNilUsers(u []model.UserSummary) []model.UserSummary {
	if u == nil {
		return []model.UserSummary{}
	}
	return u
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)
