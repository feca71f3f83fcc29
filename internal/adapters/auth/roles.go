package auth

import (
	"strings"

	"github.com/okian/clicker/internal/domain/model"
)

const adminUsername = "admin"

// nikitaNames are matched case-insensitively, mixed-script spellings included.
var nikitaNames = map[string]struct{}{
	"nikita": {},
	"никита": {},
	"niкita": {},
	"niкitа": {},
	"nikitа": {},
}

// RoleFor assigns the role of a newly registered username.
func RoleFor(username string) model.Role {
	if username == adminUsername {
		return model.RoleAdmin
	}
	if _, ok := nikitaNames[strings.ToLower(username)]; ok {
		return model.RoleNikita
	}
	return model.RoleSurvivor
}
