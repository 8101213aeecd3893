// Package domain contains entities without transport or storage logic, just meta-data
package domain

import (
	"errors"
	"strconv"
	"strings"
)

var ErrInvalidUserID = errors.New("invalid user id")

type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseUserID accepts the decimal form used in credential subjects.
func ParseUserID(raw string) (UserID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidUserID
	}
	return UserID(n), nil
}

type User struct {
	ID       UserID `json:"id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}
