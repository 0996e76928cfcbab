// cuectl is the operator CLI for cuecast account administration.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/hongminglow/cuecast-be/internal/client"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/policy"
)

const usage = `Usage: cuectl [global flags] <command> [flags]

Commands:
  login --email E --password P     sign in and cache the session
  logout                           revoke and forget the cached session
  whoami                           show the signed-in account
  tabs                             list navigation tabs you may open
  users list                       list accounts
  users create --name N --email E --password P --role R [--permission ID]...
  users update ID [--name N] [--role R] [--active=true|false] [--permission ID]... [--reason TEXT]
  users delete ID...
  audit [--filter all|role_changes|status_changes]

Global flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, policy.ErrUnauthenticated):
		return 3
	case errors.Is(err, policy.ErrForbidden):
		return 4
	case errors.Is(err, policy.ErrValidation), errors.Is(err, policy.ErrInvariantViolation):
		return 2
	default:
		return 1
	}
}

type app struct {
	out      io.Writer
	session  *client.Session
	accounts *client.Accounts
	gate     *client.Gate
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := pflag.NewFlagSet("cuectl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	server := global.String("server", envOr("CUECAST_SERVER", "http://localhost:8080"), "backend base URL")
	cache := global.String("session-file", client.DefaultCachePath(), "session cache file")
	timeout := global.Duration("timeout", 30*time.Second, "request timeout")
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return pflag.ErrHelp
	}

	c := client.New(*server, nil)
	session := client.NewSession(c, *cache)
	a := &app{out: out, session: session, accounts: client.NewAccounts(c, session), gate: client.NewGate(session)}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if rest[0] != "login" {
		if err := session.Restore(ctx); err != nil {
			return err
		}
	}

	switch rest[0] {
	case "login":
		return a.login(ctx, rest[1:])
	case "logout":
		return session.Logout(ctx)
	case "whoami":
		return a.whoami()
	case "tabs":
		return a.tabs()
	case "users":
		return a.users(ctx, rest[1:])
	case "audit":
		return a.audit(ctx, rest[1:])
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("CUECAST_PASSWORD"), "account password (or CUECAST_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return policy.FieldError("email", "email and password are required")
	}
	if err := a.session.Login(ctx, *email, *password); err != nil {
		return err
	}
	p := a.session.Principal()
	fmt.Fprintf(a.out, "signed in as %s (%s)\n", p.Email, p.Role)
	return nil
}

func (a *app) whoami() error {
	p := a.session.Principal()
	if p == nil {
		return client.ErrNoSession
	}
	fmt.Fprintf(a.out, "%s\t%s\t%s\n", p.ID, p.Email, p.Role)
	perms := a.session.Permissions()
	names := make([]string, len(perms))
	for i, id := range perms {
		names[i] = string(id)
	}
	fmt.Fprintf(a.out, "permissions: %s\n", strings.Join(names, ", "))
	return nil
}

func (a *app) tabs() error {
	if a.session.Principal() == nil {
		return client.ErrNoSession
	}
	for _, tab := range a.gate.Tabs() {
		fmt.Fprintf(a.out, "%s\t%s\n", tab.Name, tab.Title)
	}
	return nil
}

func (a *app) users(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("users needs a subcommand: list, create, update or delete")
	}
	if a.session.Principal() == nil {
		return client.ErrNoSession
	}
	if !a.gate.CanManageUsers() {
		return policy.Forbidden("the users screen requires the user_management permission")
	}
	switch args[0] {
	case "list":
		users, err := a.accounts.List(ctx)
		if err != nil {
			return err
		}
		printUsers(a.out, users)
		return nil
	case "create":
		return a.createUser(ctx, args[1:])
	case "update":
		return a.updateUser(ctx, args[1:])
	case "delete":
		if len(args) < 2 {
			return errors.New("users delete needs at least one id")
		}
		if err := a.accounts.DeleteMany(ctx, args[1:]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "deleted %d user(s)\n", len(args)-1)
		return nil
	default:
		return fmt.Errorf("unknown users subcommand %q", args[0])
	}
}

func (a *app) createUser(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("users create", pflag.ContinueOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "initial password")
	role := fs.String("role", string(models.DefaultRole), "role")
	perms := fs.StringSlice("permission", nil, "additional permission (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	created, err := a.accounts.Create(ctx, policy.CreateRequest{
		Name:        *name,
		Email:       *email,
		Password:    *password,
		Role:        models.Role(*role),
		Permissions: permissionIDs(*perms),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created %s (%s) id=%s\n", created.Email, created.Role, created.ID)
	return nil
}

func (a *app) updateUser(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("users update", pflag.ContinueOnError)
	name := fs.String("name", "", "display name")
	role := fs.String("role", "", "role")
	active := fs.Bool("active", true, "whether the account is active")
	perms := fs.StringSlice("permission", nil, "replace permission overrides (repeatable)")
	reason := fs.String("reason", "", "reason recorded in the audit log")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("users update needs exactly one id")
	}

	req := policy.UpdateRequest{Reason: *reason}
	if fs.Changed("name") {
		req.Name = name
	}
	if fs.Changed("role") {
		r := models.Role(*role)
		req.Role = &r
	}
	if fs.Changed("active") {
		req.IsActive = active
	}
	if fs.Changed("permission") {
		ids := permissionIDs(*perms)
		req.Permissions = &ids
	}

	updated, err := a.accounts.Update(ctx, fs.Arg(0), req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "updated %s: role=%s active=%t\n", updated.Email, updated.Role, updated.IsActive)
	return nil
}

func (a *app) audit(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("audit", pflag.ContinueOnError)
	raw := fs.String("filter", string(models.AuditAll), "all, role_changes or status_changes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	filter, ok := models.ParseAuditFilter(*raw)
	if !ok {
		return policy.FieldError("filter", "must be all, role_changes or status_changes")
	}
	if a.session.Principal() == nil {
		return client.ErrNoSession
	}
	if !a.gate.CanViewAudit() {
		return policy.Forbidden("the audit log requires the audit_access permission")
	}
	records, err := a.accounts.AuditLogs(ctx, filter)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tUSER\tBY\tROLE\tACTIVE\tREASON")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s -> %s\t%t -> %t\t%s\n",
			r.CreatedAt.Format(time.RFC3339), r.ChangedUserID, r.ChangedByUserID,
			r.OldRole, r.NewRole, r.OldIsActive, r.NewIsActive, r.Reason)
	}
	return tw.Flush()
}

func printUsers(out io.Writer, users []models.Account) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tACTIVE\tVERIFIED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%t\n", u.ID, u.Email, u.Name, u.Role, u.IsActive, u.EmailConfirmed())
	}
	_ = tw.Flush()
}

func permissionIDs(raw []string) []models.PermissionID {
	out := make([]models.PermissionID, 0, len(raw))
	for _, id := range raw {
		out = append(out, models.PermissionID(strings.TrimSpace(id)))
	}
	return out
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
