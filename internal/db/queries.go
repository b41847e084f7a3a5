package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("db: not found")

// User is a row in the users table.
type User struct {
	ID           string
	Email        string
	PasswordHash string
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(u User) error {
	_, err := d.DB.Exec(
		`INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("db: create user: %w", err)
	}
	return nil
}

// UserByEmail fetches a user by email.
func (d *Database) UserByEmail(email string) (User, error) {
	var u User
	err := d.DB.QueryRow(
		`SELECT id, email, password_hash FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("db: user by email: %w", err)
	}
	return u, nil
}

// InsertAPIKey records the hash of a newly minted API key.
func (d *Database) InsertAPIKey(keyHash, userID, label string) error {
	_, err := d.DB.Exec(
		`INSERT INTO api_keys (key_hash, user_id, label) VALUES (?, ?, ?)`,
		keyHash, userID, label,
	)
	if err != nil {
		return fmt.Errorf("db: insert api key: %w", err)
	}
	return nil
}

// UserIDForAPIKeyHash resolves an API key hash to its owning user id.
func (d *Database) UserIDForAPIKeyHash(keyHash string) (string, error) {
	var userID string
	err := d.DB.QueryRow(
		`SELECT user_id FROM api_keys WHERE key_hash = ?`, keyHash,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("db: api key lookup: %w", err)
	}
	return userID, nil
}
