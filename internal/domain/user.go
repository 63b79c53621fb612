package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// User is a backend account.
type User struct {
	ID       ID     `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsAdmin  bool   `json:"is_admin"`
	Approved bool   `json:"approved"`
}

// DisplayName prefers the name and falls back to the email.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

type wireUser struct {
	ID       ID       `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	IsAdmin  flexBool `json:"is_admin"`
	Approved flexBool `json:"approved"`
}

// flexBool accepts JSON booleans as well as 0/1 and "true"/"false".
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.Trim(strings.ToLower(string(bytes.TrimSpace(b))), `"`) {
	case "true", "1":
		*f = true
	case "false", "0", "null", "":
		*f = false
	default:
		return fmt.Errorf("%w: bool %s", ErrInvalidRecord, string(b))
	}
	return nil
}

// UnmarshalJSON decodes either an object or the positional row
// [id, email, name, is_admin, approved].
func (u *User) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		var w wireUser
		if err := json.Unmarshal(b, &w); err != nil {
			return err
		}
		*u = User{
			ID:       w.ID,
			Email:    w.Email,
			Name:     w.Name,
			IsAdmin:  bool(w.IsAdmin),
			Approved: bool(w.Approved),
		}
		return nil
	}

	var cells []json.RawMessage
	if err := json.Unmarshal(b, &cells); err != nil {
		return err
	}
	if len(cells) < 5 {
		return fmt.Errorf("%w: user row has %d cells", ErrInvalidRecord, len(cells))
	}
	var w wireUser
	targets := []any{&w.ID, &w.Email, &w.Name, &w.IsAdmin, &w.Approved}
	for idx, target := range targets {
		if err := decodeCell(cells[idx], target); err != nil {
			return fmt.Errorf("%w: user row cell %d: %v", ErrInvalidRecord, idx, err)
		}
	}
	*u = User{
		ID:       w.ID,
		Email:    w.Email,
		Name:     w.Name,
		IsAdmin:  bool(w.IsAdmin),
		Approved: bool(w.Approved),
	}
	return nil
}
