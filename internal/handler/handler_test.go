package handler

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/agng-dev/montron/internal/auth"
	"github.com/agng-dev/montron/internal/database"
	"github.com/agng-dev/montron/internal/model"
	"github.com/agng-dev/montron/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sql.DB, email, password string) *model.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := store.NewUserStore(db).Create(email, "Test User", "office", hash)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func seedEmployee(t *testing.T, db *sql.DB, username, firstName, lastName string) *model.Employee {
	t.Helper()
	e, err := store.NewEmployeeStore(db).Upsert(model.Employee{
		Username:  username,
		FirstName: &firstName,
		LastName:  &lastName,
		Active:    true,
	})
	if err != nil {
		t.Fatalf("upsert employee: %v", err)
	}
	return e
}

func seedWorkday(t *testing.T, db *sql.DB, employeeID, date string) *model.Workday {
	t.Helper()
	wd, err := store.NewWorkdayStore(db).Ensure(employeeID, date)
	if err != nil {
		t.Fatalf("ensure workday: %v", err)
	}
	return wd
}

// asUser attaches an authenticated office user to the request, the way the
// auth middleware would after a successful cookie or token check.
func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithAuth(r.Context(), auth.AuthContext{UserID: userID, Role: "office"}))
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
