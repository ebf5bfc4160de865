package user

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"strings"

	"github.com/trangar/smtpd/helpers"
)

// UserDB is a JSON-backed directory of locally registered mailboxes,
// keyed by the lowercased Name of each User.
type UserDB struct {
	Users map[string]User
}

// UserExists checks if a user exists in the DB.
func (db *UserDB) UserExists(name string) bool {
	_, found := db.Users[strings.ToLower(name)]
	return found
}

// Get a user from the database.
func (db *UserDB) Get(name string) (*User, error) {
	user, found := db.Users[strings.ToLower(name)]
	if !found {
		return nil, errors.New("user not found")
	}
	return &user, nil
}

// Add a user to the database.
func (db *UserDB) Add(user User) error {
	if db.Users == nil {
		db.Users = make(map[string]User)
	}
	if db.UserExists(user.Name) {
		return errors.New("user already exists")
	}
	db.Users[strings.ToLower(user.Name)] = user
	return nil
}

// SaveDB writes the database to file as indented JSON.
func (db *UserDB) SaveDB(file string) error {
	output, err := json.MarshalIndent(db, "", "\t")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(file, output, 0644)
}

// LoadDB reads a database from file.
func LoadDB(file string) (*UserDB, error) {
	db := &UserDB{}
	if err := helpers.DecodeFile(file, db); err != nil {
		return nil, err
	}
	return db, nil
}
