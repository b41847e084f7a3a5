package db

import "testing"

func newTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestCreateUserAndLookupByEmail(t *testing.T) {
	d := newTestDB(t)
	err := d.CreateUser(User{ID: "u1", Email: "a@b.com", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	u, err := d.UserByEmail("a@b.com")
	if err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if u.ID != "u1" || u.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestUserByEmailNotFound(t *testing.T) {
	d := newTestDB(t)
	if _, err := d.UserByEmail("nobody@nowhere.com"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateUserDuplicateEmailFails(t *testing.T) {
	d := newTestDB(t)
	if err := d.CreateUser(User{ID: "u1", Email: "a@b.com", PasswordHash: "hash"}); err != nil {
		t.Fatalf("first CreateUser: %v", err)
	}
	if err := d.CreateUser(User{ID: "u2", Email: "a@b.com", PasswordHash: "hash2"}); err == nil {
		t.Fatal("expected a duplicate-email insert to fail (unique constraint)")
	}
}

func TestInsertAPIKeyAndResolve(t *testing.T) {
	d := newTestDB(t)
	if err := d.CreateUser(User{ID: "u1", Email: "a@b.com", PasswordHash: "hash"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := d.InsertAPIKey("keyhash123", "u1", "main"); err != nil {
		t.Fatalf("InsertAPIKey: %v", err)
	}

	userID, err := d.UserIDForAPIKeyHash("keyhash123")
	if err != nil {
		t.Fatalf("UserIDForAPIKeyHash: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("userID = %q, want u1", userID)
	}
}

func TestUserIDForAPIKeyHashNotFound(t *testing.T) {
	d := newTestDB(t)
	if _, err := d.UserIDForAPIKeyHash("nonexistent"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
