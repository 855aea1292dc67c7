package controllers

import "github.com/zaqqye/simlab_backend/internal/models"

var allowedRoles = map[string]struct{}{
	models.RoleAdmin:      {},
	models.RoleInstructor: {},
	models.RoleStudent:    {},
}

func IsValidRole(role string) bool {
	_, ok := allowedRoles[role]
	return ok
}
