package repository

import (
	"context"
	"database/sql"

	"github.com/wordCupProject/worldcup/internal/model"
	"github.com/wordCupProject/worldcup/internal/service"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,role,first_name,last_name,phone,country,created_at"

// CreateUser inserts u and fills its ID and creation time.  The email is
// expected to be normalised already.
func (r *UserRepo) CreateUser(ctx context.Context, u *model.User) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, first_name, last_name, phone, country) VALUES (?,?,?,?,?,?,?)",
		u.Email, u.PasswordHash, u.Role, u.FirstName, u.LastName, u.Phone, u.Country)
	if err != nil {
		if isDuplicate(err) {
			return service.ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return r.DB.QueryRowContext(ctx, "SELECT created_at FROM users WHERE id=?", u.ID).Scan(&u.CreatedAt)
}

// UserByEmail fetches a user by normalised email.
func (r *UserRepo) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// UserByID fetches a user by id.
func (r *UserRepo) UserByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role,
		&u.FirstName, &u.LastName, &u.Phone, &u.Country, &u.CreatedAt)
	return u, err
}
