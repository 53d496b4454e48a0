package main

import (
	"context"

	"github.com/trezcool/shule/core/user"
)

// addUser creates an active user; the CLI acts as the system, without an actor.
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if isAdmin {
		nu.Roles = []string{user.RoleAdminOwner}
	}
	usr, err := cli.usrSvc.Create(context.Background(), user.User{}, nu)
	if err != nil {
		return err
	}
	cli.printf("user %s created\n", usr.Username)
	return nil
}
