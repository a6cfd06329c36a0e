package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUserRepository_CreateAndGetByID(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("password123")
	user := &User{
		Username:     "testuser",
		Email:        "test@example.com",
		PasswordHash: hash,
		Role:         RoleUser,
		Status:       StatusActive,
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if got.Username != "testuser" {
		t.Errorf("Username = %q, want %q", got.Username, "testuser")
	}
	if got.Email != "test@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "test@example.com")
	}
	if got.Role != RoleUser {
		t.Errorf("Role = %q, want %q", got.Role, RoleUser)
	}
	if got.Status != StatusActive {
		t.Errorf("Status = %q, want %q", got.Status, StatusActive)
	}
	if got.LastLoginAt != nil {
		t.Error("LastLoginAt should be nil for a new account")
	}
	if got.PasswordHash == "" {
		t.Error("PasswordHash should be populated")
	}
}

func TestUserRepository_GetByUsername(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("password123")
	user := &User{
		Username:     "admin",
		Email:        "admin@example.com",
		PasswordHash: hash,
		Role:         RoleAdmin,
		Status:       StatusActive,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}

	if got.ID != user.ID {
		t.Errorf("ID = %q, want %q", got.ID, user.ID)
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("password123")
	user := &User{
		Username:     "mailuser",
		Email:        "mail@example.com",
		PasswordHash: hash,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByEmail(ctx, "mail@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("ID = %q, want %q", got.ID, user.ID)
	}

	_, err = repo.GetByEmail(ctx, "missing@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_GetByUsername_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	_, err := repo.GetByUsername(context.Background(), "nonexistent")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("password123")
	user1 := &User{
		Username:     "duplicate",
		Email:        "dup1@example.com",
		PasswordHash: hash,
	}
	if err := repo.Create(ctx, user1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	user2 := &User{
		Username:     "duplicate",
		Email:        "dup2@example.com",
		PasswordHash: hash,
	}
	err := repo.Create(ctx, user2)
	if !errors.Is(err, ErrUsernameExists) {
		t.Errorf("error = %v, want ErrUsernameExists", err)
	}
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("password123")
	user1 := &User{
		Username:     "first",
		Email:        "same@example.com",
		PasswordHash: hash,
	}
	if err := repo.Create(ctx, user1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	user2 := &User{
		Username:     "second",
		Email:        "same@example.com",
		PasswordHash: hash,
	}
	err := repo.Create(ctx, user2)
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("error = %v, want ErrEmailExists", err)
	}
}

func TestUserRepository_List(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	// Empty list
	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 0 {
		t.Errorf("List() should return empty, got %d", len(users))
	}

	// Add users
	hash, _ := HashPassword("password123")
	for _, name := range []string{"alice", "bob", "charlie"} {
		u := &User{Username: name, Email: name + "@example.com", PasswordHash: hash}
		if err := repo.Create(ctx, u); err != nil { //nolint:govet // shadow: err re-declared in test loop
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	users, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 3 {
		t.Errorf("List() returned %d users, want 3", len(users))
	}
}

func TestUserRepository_Update(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("password123")
	user := &User{
		Username:     "updateme",
		Email:        "original@example.com",
		PasswordHash: hash,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	user.Email = "updated@example.com"
	user.Role = RoleAdmin
	user.Status = StatusInactive

	if err := repo.Update(ctx, user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, user.ID)
	if got.Email != "updated@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "updated@example.com")
	}
	if got.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", got.Role, RoleAdmin)
	}
	if got.Status != StatusInactive {
		t.Errorf("Status = %q, want %q", got.Status, StatusInactive)
	}
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("old-password")
	user := &User{
		Username:     "passchange",
		Email:        "passchange@example.com",
		PasswordHash: hash,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	newHash, _ := HashPassword("new-password")
	if err := repo.UpdatePassword(ctx, user.ID, newHash); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, user.ID)
	ok, _ := VerifyPassword("new-password", got.PasswordHash)
	if !ok {
		t.Error("new password should verify after UpdatePassword")
	}
}

func TestUserRepository_UpdateLastLogin(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("password123")
	user := &User{
		Username:     "logintime",
		Email:        "logintime@example.com",
		PasswordHash: hash,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	at := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	if err := repo.UpdateLastLogin(ctx, user.ID, at); err != nil {
		t.Fatalf("UpdateLastLogin() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, user.ID)
	if got.LastLoginAt == nil {
		t.Fatal("LastLoginAt should be set")
	}
	if !got.LastLoginAt.Equal(at) {
		t.Errorf("LastLoginAt = %v, want %v", got.LastLoginAt, at)
	}
}

func TestUserRepository_Delete(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("password123")
	user := &User{
		Username:     "deleteme",
		Email:        "deleteme@example.com",
		PasswordHash: hash,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := repo.GetByID(ctx, user.ID)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("after delete, GetByID error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_Delete_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	err := repo.Delete(context.Background(), "nonexistent")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_Count(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}

	hash, _ := HashPassword("password123")
	for _, name := range []string{"one", "two"} {
		u := &User{Username: name, Email: name + "@example.com", PasswordHash: hash}
		repo.Create(ctx, u) //nolint:errcheck // test setup
	}

	count, err = repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}
