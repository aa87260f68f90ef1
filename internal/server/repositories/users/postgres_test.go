package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

var userCols = []string{"id", "username", "email", "password_hash", "is_active", "is_provider", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertUserQ = `(?s)^INSERT\s+INTO\s+users\s*\(username,\s*email,\s*password_hash,\s*is_active,\s*is_provider\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*RETURNING\s+id,\s*created_at\s*$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "created_at"}).AddRow("42", created)
	mock.ExpectQuery(insertUserQ).
		WithArgs("alice", "alice@example.com", []byte("hash"), true, false).
		WillReturnRows(rows)

	u := &models.User{UserName: "alice", Email: "alice@example.com", PasswordHash: []byte("hash"), IsActive: true}
	got, err := repo.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "42" || got.UserName != "alice" || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertUserQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	_, err := repo.Create(context.Background(), &models.User{UserName: "alice", Email: "a@b.c"})
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want common.ErrorAlreadyExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertUserQ).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{UserName: "alice"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetUserByLogin_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*username,\s*email,\s*password_hash,\s*is_active,\s*is_provider,\s*created_at\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s*$`

	rows := sqlmock.NewRows(userCols).
		AddRow("u-1", "alice", "alice@example.com", []byte("hash"), true, true, time.Now())
	mock.ExpectQuery(q).
		WithArgs("alice").
		WillReturnRows(rows)

	got, err := repo.GetUserByLogin(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserByLogin error: %v", err)
	}
	if got.ID != "u-1" || got.UserName != "alice" || !got.IsActive || !got.IsProvider {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestGetUserByLogin_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.+FROM\s+users\s+WHERE\s+username`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUserByLogin(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetUserByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT.+FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s*$`

	mock.ExpectQuery(q).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u-1", "alice", "alice@example.com", []byte("hash"), false, false, time.Now()))
	mock.ExpectQuery(q).
		WithArgs("u-2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).
		WithArgs("u-3").
		WillReturnError(errors.New("db err"))

	got, err := repo.GetUserByID(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetUserByID error: %v", err)
	}
	if got.IsActive {
		t.Fatalf("expected inactive user: %+v", got)
	}

	if _, err := repo.GetUserByID(context.Background(), "u-2"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if _, err := repo.GetUserByID(context.Background(), "u-3"); err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetUserByID_MalformedID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	invalidUUID := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "nobody"`}
	mock.ExpectQuery(`(?s)^SELECT.+FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs("nobody").
		WillReturnError(invalidUUID)
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+is_active`).
		WithArgs("nobody", false).
		WillReturnError(invalidUUID)

	if _, err := repo.GetUserByID(context.Background(), "nobody"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if err := repo.SetActive(context.Background(), "nobody", false); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSetActive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+is_active\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1$`

	mock.ExpectExec(q).WithArgs("u-1", false).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("u-2", false).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("u-3", false).WillReturnError(errors.New("db err"))

	if err := repo.SetActive(context.Background(), "u-1", false); err != nil {
		t.Fatalf("SetActive error: %v", err)
	}
	if err := repo.SetActive(context.Background(), "u-2", false); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if err := repo.SetActive(context.Background(), "u-3", false); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
