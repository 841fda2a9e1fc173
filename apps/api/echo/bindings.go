package echoapi

import (
	"github.com/go-playground/validator/v10"
)

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	SetAdminClaimRequest struct {
		UID string `json:"uid" validate:"required"`
	}

	SuccessResponse struct {
		Message string `json:"message"`
	}
)

func (r *LoginRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r *SetAdminClaimRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}
