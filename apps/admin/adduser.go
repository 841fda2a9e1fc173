package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/unihub/campus/core"
	"github.com/unihub/campus/core/user"
)

// addUser creates a user.User, or reactivates it and resets its password if a
// user with that email already exists. The role only applies at creation.
func (cli *commandLine) addUser(name, email string, role user.Role, pwd string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	if !role.Valid() {
		return errors.Errorf("invalid role %q", role)
	}

	usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
	if err == nil {
		isActive := true
		usr.Name = name
		usr.UpdatedAt = time.Now().UTC()
		if _, err = cli.usrRepo.UpdateUser(ctx, usr, &isActive); err != nil {
			return err
		}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		return cli.usrRepo.SetPassword(ctx, usr.ID, usr.PasswordHash)
	}
	if errors.Cause(err) != user.ErrNotFound {
		return err
	}

	now := time.Now().UTC()
	usr = user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.CreateUser(ctx, usr)
	return err
}
