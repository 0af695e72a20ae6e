package keyring

import "fmt"

type (
	UserNotFound struct {
		Username string
	}

	LoginNotFound struct {
		Series string
	}

	SchemaMismatch struct {
		Table      string
		Column     string
		Constraint string
	}

	ReadOnly struct{}
)

func (u UserNotFound) Error() string {
	return fmt.Sprintf("user %v not found", u.Username)
}

func (l LoginNotFound) Error() string {
	return "persistent login not found"
}

func (s SchemaMismatch) Error() string {
	switch {
	case s.Column != "":
		return fmt.Sprintf("keyring table %v is missing column %v", s.Table, s.Column)
	case s.Constraint != "":
		return fmt.Sprintf("keyring table %v is missing %v", s.Table, s.Constraint)
	}
	return fmt.Sprintf("keyring is missing table %v", s.Table)
}

func (ReadOnly) Error() string {
	return "keyring was opened in read-only mode"
}
