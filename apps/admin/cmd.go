package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	echoapi "github.com/trezcool/dossier/apps/api/echo"
	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/document"
	"github.com/trezcool/dossier/core/user"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db         *sql.DB
	conf       *core.Config
	usrSvc     *user.Service
	docSvc     *document.Service
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                      - run a goose command (up, down, status, version...)")
	fmt.Fprintln(cli.out, "  adduser -name NAME -email EMAIL -roles ROLES - create a user; parents take -wards STUDENT_IDS")
	fmt.Fprintln(cli.out, "  provision -owner STUDENT_ID                 - create the missing document records of a student")
	fmt.Fprintln(cli.out, "  expire -record RECORD_ID                    - mark an approved document as outdated")
	fmt.Fprintln(cli.out, "  token -user USER_ID                         - print an API token for the user (DEV only)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username (optional).")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRoles := addUserCmd.String("roles", "", "Comma-separated roles, eg. `student:` or `admin:,teacher:`.")
	addUserWards := addUserCmd.String("wards", "", "Comma-separated IDs of the students a parent is linked to.")

	provisionCmd := flag.NewFlagSet("provision", flag.ContinueOnError)
	provisionCmd.SetOutput(cli.out)
	provisionOwner := provisionCmd.String("owner", "", "The student's ID.")

	expireCmd := flag.NewFlagSet("expire", flag.ContinueOnError)
	expireCmd.SetOutput(cli.out)
	expireRecord := expireCmd.String("record", "", "The document record ID.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenUser := tokenCmd.String("user", "", "The user's ID.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || *addUserEmail == "" || *addUserRoles == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, user.NewUser{
			Name:     *addUserName,
			Username: *addUserUname,
			Email:    *addUserEmail,
			Roles:    splitList(*addUserRoles),
			Wards:    splitList(*addUserWards),
		})

	case "provision":
		if err := provisionCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *provisionOwner == "" {
			provisionCmd.Usage()
			return errHelp
		}
		return cli.provision(ctx, *provisionOwner)

	case "expire":
		if err := expireCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *expireRecord == "" {
			expireCmd.Usage()
			return errHelp
		}
		return cli.expire(ctx, *expireRecord)

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenUser == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(ctx, *tokenUser)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) provision(ctx context.Context, ownerID string) error {
	records, err := cli.docSvc.Provision(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		fmt.Fprintf(cli.out, "%s\t%s\t%s\n", rec.ID, rec.SlotID, rec.Status)
	}
	return nil
}

func (cli *commandLine) expire(ctx context.Context, recordID string) error {
	rec, err := cli.docSvc.Expire(ctx, recordID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s\t%s\t%s\n", rec.ID, rec.SlotID, rec.Status)
	return nil
}

func (cli *commandLine) token(ctx context.Context, userID string) error {
	if !cli.conf.Debug {
		return errors.New("tokens are issued by the identity service outside DEV")
	}
	usr, err := cli.usrSvc.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	token, err := echoapi.GenerateToken(cli.conf, echoapi.GetUserClaims(cli.conf, usr))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
