package repository

import "errors"

// ErrDuplicateMember is returned when the chat membership unique
// constraint rejects an insert.
var ErrDuplicateMember = errors.New("chat member already exists")
