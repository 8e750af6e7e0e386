package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/nao1215/rentit/internal/rental"
	"github.com/nao1215/rentit/pkg/auth"
)

// userColumns は利用者の取得カラム。
const userColumns = `user_id, role, first_name, last_name, email, password_hash,
	phone_no, address, state_id, city_id, status, created_at`

// CreateUser は利用者を登録する。メールアドレスは小文字に揃えて保存する。
func (s *Store) CreateUser(ctx context.Context, u rental.User) (rental.User, error) {
	if u.Status == "" {
		u.Status = rental.UserActive
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	createdAt := s.timestamp()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (role, first_name, last_name, email, password_hash,
			phone_no, address, state_id, city_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(u.Role), u.FirstName, u.LastName, u.Email, u.PasswordHash,
		u.PhoneNo, u.Address, u.StateID, u.CityID, string(u.Status), createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rental.User{}, fmt.Errorf("メールアドレス %q: %w", u.Email, rental.ErrDuplicate)
		}
		return rental.User{}, fmt.Errorf("利用者の登録に失敗: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return rental.User{}, fmt.Errorf("利用者IDの取得に失敗: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return rental.User{}, err
	}
	return u, nil
}

// GetUser は利用者を取得する。
func (s *Store) GetUser(ctx context.Context, id int64) (rental.User, error) {
	return getUser(ctx, s.db, `user_id = ?`, id)
}

// GetUserByEmail はメールアドレスで利用者を取得する。大文字小文字は区別しない。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (rental.User, error) {
	return getUser(ctx, s.db, `email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

// ListUsers は全利用者をID順に返す。
func (s *Store) ListUsers(ctx context.Context) ([]rental.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("利用者一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []rental.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("利用者の読み取りに失敗: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListStates は州をID順に返す。
func (s *Store) ListStates(ctx context.Context) ([]rental.State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state_id, state_name FROM states ORDER BY state_id`)
	if err != nil {
		return nil, fmt.Errorf("州一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []rental.State
	for rows.Next() {
		var st rental.State
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			return nil, fmt.Errorf("州の読み取りに失敗: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListCities は州に属する市区町村をID順に返す。
func (s *Store) ListCities(ctx context.Context, stateID int64) ([]rental.City, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT city_id, state_id, city_name FROM cities WHERE state_id = ? ORDER BY city_id`, stateID)
	if err != nil {
		return nil, fmt.Errorf("市区町村一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []rental.City
	for rows.Next() {
		var c rental.City
		if err := rows.Scan(&c.ID, &c.StateID, &c.Name); err != nil {
			return nil, fmt.Errorf("市区町村の読み取りに失敗: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListRoles はロールをID順に返す。
func (s *Store) ListRoles(ctx context.Context) ([]rental.RoleInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role_id, role_name FROM roles ORDER BY role_id`)
	if err != nil {
		return nil, fmt.Errorf("ロール一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []rental.RoleInfo
	for rows.Next() {
		var (
			r    rental.RoleInfo
			name string
		)
		if err := rows.Scan(&r.ID, &name); err != nil {
			return nil, fmt.Errorf("ロールの読み取りに失敗: %w", err)
		}
		r.Name = auth.Role(name)
		out = append(out, r)
	}
	return out, rows.Err()
}

// getUser は条件に一致する利用者を1件取得する。
func getUser(ctx context.Context, q queryer, cond string, arg any) (rental.User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond, arg)
	u, err := scanUser(row)
	if err != nil {
		return rental.User{}, notFound(err, "利用者")
	}
	return u, nil
}

// scanUser は1行を利用者に変換する。
func scanUser(r rowScanner) (rental.User, error) {
	var (
		u                 rental.User
		role, status, cat string
	)
	if err := r.Scan(&u.ID, &role, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.PhoneNo, &u.Address, &u.StateID, &u.CityID, &status, &cat); err != nil {
		return rental.User{}, err
	}
	t, err := parseTime(cat)
	if err != nil {
		return rental.User{}, err
	}
	u.Role = auth.Role(role)
	u.Status = rental.UserStatus(status)
	u.CreatedAt = t
	return u, nil
}
