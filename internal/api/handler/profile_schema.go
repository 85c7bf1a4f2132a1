package handler

type provisionProfileRequest struct {
	FullName string `json:"full_name" validate:"omitempty,max=200"`
	Email    string `json:"email"     validate:"omitempty,email"`
}
