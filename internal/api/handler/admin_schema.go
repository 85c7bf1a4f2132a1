package handler

import "github.com/stomacrm/clinic/internal/core/domain"

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin reception doctor"`
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6"`
}

type recoveryRequest struct {
	Key      string `json:"key"       validate:"required"`
	Action   string `json:"action"    validate:"required,oneof=promote create"`
	UserID   string `json:"user_id"`
	Email    string `json:"email"     validate:"omitempty,email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type recoveryResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

type usersResponse struct {
	Users []*domain.Profile `json:"users"`
}
