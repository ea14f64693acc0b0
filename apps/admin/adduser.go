package main

import (
	"context"
	"fmt"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/user"
)

// addUser creates a user.User; students get their document records right away.
func (cli *commandLine) addUser(ctx context.Context, nu user.NewUser) error {
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return core.TranslateValidationErrors(err, cli.translator)
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s\t%s\t%s\n", usr.ID, usr.Email, usr.Roles)

	if usr.IsStudent() {
		return cli.provision(ctx, usr.ID)
	}
	return nil
}
