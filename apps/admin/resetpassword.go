package main

import (
	"context"

	"github.com/trezcool/shule/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	sp := user.SetPassword{Password: pwd, PasswordConfirm: pwd}
	if err := cli.usrSvc.SetPassword(context.Background(), user.User{}, uname, sp); err != nil {
		return err
	}
	cli.printf("password updated\n")
	return nil
}

func (cli *commandLine) markOverdue() error {
	n, err := cli.invoiceSvc.MarkOverdue(context.Background(), user.User{})
	if err != nil {
		return err
	}
	cli.printf("%d invoice(s) marked overdue\n", n)
	return nil
}
