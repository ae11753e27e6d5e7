// Command authvault drives the account subsystem from the terminal:
// account signup and login, session inspection, password changes and the
// security audit trail.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/viralforge/authvault/internal/app/bootstrap"
	"github.com/viralforge/authvault/internal/application"
	"github.com/viralforge/authvault/internal/domain"
)

const usage = `Usage: authvault [-config path] <command> [args]

Commands:
  signup -email - name          register a new account (password prompted)
  login -email - [-remember]    sign in and print session tokens
  logout -session -             close a session
  passwd                        change the current password (prompted)
  check -password -             score a candidate password
  status -email -               security status for an account
  unlock -email -               clear a lockout
  sessions -email -             list sessions for an account
  audit [-email -] [-limit n]   query the audit trail
  anomalies -email -            scan recent activity for anomalies
  sweep                         run one maintenance pass
  run                           run the maintenance loop until interrupted
`

func main() {
	configPath := flag.String("config", "configs/default.yaml", "path to the configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	runtime, err := bootstrap.NewRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "authvault: %v\n", err)
		os.Exit(1)
	}

	if err := dispatch(runtime, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "authvault: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(runtime *bootstrap.Runtime, command string, args []string) error {
	svc := runtime.Service()
	switch command {
	case "signup":
		return cmdSignup(svc, args)
	case "login":
		return cmdLogin(svc, args)
	case "logout":
		return cmdLogout(svc, args)
	case "passwd":
		return cmdPasswd(svc, args)
	case "check":
		return cmdCheck(svc, args)
	case "status":
		return cmdStatus(svc, args)
	case "unlock":
		return cmdUnlock(svc, args)
	case "sessions":
		return cmdSessions(svc, args)
	case "audit":
		return cmdAudit(svc, args)
	case "anomalies":
		return cmdAnomalies(svc, args)
	case "sweep":
		runtime.SweepOnce()
		return nil
	case "run":
		return runtime.Run(context.Background())
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func cmdSignup(svc *application.Service, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := promptPassword("New password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	ok, msg := svc.Signup(*email, password, *name, localAddr(), "authvault-cli")
	fmt.Println(msg)
	if !ok {
		os.Exit(1)
	}
	return nil
}

func cmdLogin(svc *application.Service, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	remember := fs.Bool("remember", false, "extend the session lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	ok, msg, tokens := svc.Login(*email, password, *remember, localAddr(), "authvault-cli")
	fmt.Println(msg)
	if !ok {
		os.Exit(1)
	}
	return printJSON(tokens)
}

func cmdLogout(svc *application.Service, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	session := fs.String("session", "", "session id")
	token := fs.String("token", "", "access token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !svc.Logout(*session, *token, localAddr()) {
		return fmt.Errorf("no such active session")
	}
	fmt.Println("Signed out")
	return nil
}

func cmdPasswd(svc *application.Service, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	session := fs.String("session", "", "session id")
	token := fs.String("token", "", "access token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *session != "" && !svc.RestoreSession(*session, *token) {
		return fmt.Errorf("session is no longer valid, sign in again")
	}

	current, err := promptPassword("Current password: ")
	if err != nil {
		return err
	}
	next, err := promptPassword("New password: ")
	if err != nil {
		return err
	}

	ok, msg := svc.ChangePassword(current, next, localAddr())
	fmt.Println(msg)
	if !ok {
		os.Exit(1)
	}
	return nil
}

func cmdCheck(svc *application.Service, args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	password := fs.String("password", "", "candidate password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return printJSON(svc.Policy().Score(*password))
}

func cmdStatus(svc *application.Service, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return printJSON(svc.SecurityStatus(*email))
}

func cmdUnlock(svc *application.Service, args []string) error {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !svc.Unlock(*email, "cli") {
		return fmt.Errorf("account %s is not locked", *email)
	}
	fmt.Println("Lockout cleared")
	return nil
}

func cmdSessions(svc *application.Service, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	all := fs.Bool("all", false, "include closed sessions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return printJSON(svc.Sessions().UserSessions(strings.ToLower(*email), !*all))
}

func cmdAudit(svc *application.Service, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	email := fs.String("email", "", "filter by account email")
	eventType := fs.String("type", "", "filter by event type")
	limit := fs.Int("limit", 50, "maximum events to print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	filter := application.AuditFilter{UserEmail: strings.ToLower(*email)}
	if *eventType != "" {
		filter.EventType = domain.EventType(*eventType)
	}
	return printJSON(svc.Audit().Query(filter, *limit))
}

func cmdAnomalies(svc *application.Service, args []string) error {
	fs := flag.NewFlagSet("anomalies", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	days := fs.Int("days", 7, "trailing window in days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	anomalies := svc.Audit().DetectAnomalies(strings.ToLower(*email), *days)
	if len(anomalies) == 0 {
		fmt.Println("No anomalies detected")
		return nil
	}
	return printJSON(anomalies)
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func localAddr() string { return "127.0.0.1" }
