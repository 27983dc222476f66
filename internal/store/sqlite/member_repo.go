package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"clubdesk/internal/domain"
)

const memberColumns = `id, user_id, first_name, last_name, email, photo_url, is_admin`

type MemberRepo struct {
	db *sql.DB
}

func NewMemberRepo(db *sql.DB) *MemberRepo {
	return &MemberRepo{db: db}
}

var _ domain.MemberRepository = (*MemberRepo)(nil)

// Create inserts a member profile. Used for local seeding and tests; the
// membership system owns these rows in production.
func (r *MemberRepo) Create(ctx context.Context, m *domain.Member) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO members (user_id, first_name, last_name, email, photo_url, is_admin)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.UserID, m.FirstName, m.LastName, m.Email, m.PhotoURL, m.IsAdmin)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MemberRepo) GetByID(ctx context.Context, id int64) (*domain.Member, error) {
	return r.scanMember(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
}

func (r *MemberRepo) GetByUserID(ctx context.Context, userID string) (*domain.Member, error) {
	return r.scanMember(ctx, `SELECT `+memberColumns+` FROM members WHERE user_id = ?`, userID)
}

func (r *MemberRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Member, error) {
	res := make(map[int64]*domain.Member, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get members by ids: %w", err)
	}
	members, err := r.scanMembers(rows)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		res[m.ID] = m
	}
	return res, nil
}

func (r *MemberRepo) ListAll(ctx context.Context) ([]*domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		ORDER BY last_name ASC, first_name ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return r.scanMembers(rows)
}

func (r *MemberRepo) ListAllIDs(ctx context.Context) ([]int64, error) {
	return r.scanIDs(ctx, `SELECT id FROM members ORDER BY id ASC`)
}

func (r *MemberRepo) ListAdminIDs(ctx context.Context) ([]int64, error) {
	return r.scanIDs(ctx, `SELECT id FROM members WHERE is_admin = 1 ORDER BY id ASC`)
}

func (r *MemberRepo) scanMember(ctx context.Context, query string, args ...any) (*domain.Member, error) {
	m := &domain.Member{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&m.ID, &m.UserID, &m.FirstName, &m.LastName, &m.Email, &m.PhotoURL, &m.IsAdmin,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan member: %w", err)
	}
	return m, nil
}

func (r *MemberRepo) scanMembers(rows *sql.Rows) ([]*domain.Member, error) {
	defer rows.Close()
	var members []*domain.Member
	for rows.Next() {
		m := &domain.Member{}
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.FirstName, &m.LastName, &m.Email, &m.PhotoURL, &m.IsAdmin,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *MemberRepo) scanIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list member ids: %w", err)
	}
	return scanIDRows(rows)
}
