package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsDSN(t *testing.T) {
	p := Params{User: "library", Pass: "secret", Host: "db.internal", Port: "3306", Name: "library"}
	assert.Equal(t,
		"library:secret@tcp(db.internal:3306)/library?charset=utf8mb4&parseTime=true&loc=UTC",
		p.DSN())
}

func TestParamsDSNNoPassword(t *testing.T) {
	p := Params{User: "root", Host: "localhost", Port: "3306", Name: "library"}
	assert.Equal(t,
		"root@tcp(localhost:3306)/library?charset=utf8mb4&parseTime=true&loc=UTC",
		p.DSN())
}
