package main

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/unihub/campus/core/user"
	inmemdb "github.com/unihub/campus/storage/database/inmem"
)

func setup(t *testing.T) *commandLine {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	return &commandLine{db: &sqlx.DB{}, usrRepo: inmemdb.NewUserRepository(db)}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
}

func Test_commandLine_run_help(t *testing.T) {
	cli := setup(t)

	tests := []struct {
		name string
		args []string // without program name
	}{
		{name: "no subcommand", args: nil},
		{name: "unknown subcommand", args: []string{"lol"}},
		{name: "migrate: no subcommand", args: []string{"migrate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"admin"}, tt.args...)
			if err := cli.run(args); err != errHelp {
				t.Errorf("cli.run() error = %v, want %v", err, errHelp)
			}
		})
	}
}

func Test_commandLine_adduser(t *testing.T) {
	cli := setup(t)
	mockPassword("s3cr3tpwd")
	ctx := context.Background()

	t.Run("creates an admin", func(t *testing.T) {
		if err := cli.run([]string{"admin", "adduser", "-name", "Root", "-email", "Root@Campus.Test"}); err != nil {
			t.Fatalf("cli.run() error = %v", err)
		}
		usr, err := cli.usrRepo.GetUserByEmail(ctx, "root@campus.test")
		if err != nil {
			t.Fatalf("GetUserByEmail() error = %v", err)
		}
		if usr.Role != user.RoleAdmin {
			t.Errorf("Role = %s, want %s", usr.Role, user.RoleAdmin)
		}
		if !usr.IsActive {
			t.Error("IsActive = false, want true")
		}
		if err := usr.CheckPassword("s3cr3tpwd"); err != nil {
			t.Errorf("CheckPassword() error = %v", err)
		}
	})

	t.Run("re-running resets the password and reactivates", func(t *testing.T) {
		mockPassword("newpwd123")
		if err := cli.run([]string{"admin", "adduser", "-name", "Root", "-email", "root@campus.test"}); err != nil {
			t.Fatalf("cli.run() error = %v", err)
		}
		usr, _ := cli.usrRepo.GetUserByEmail(ctx, "root@campus.test")
		if err := usr.CheckPassword("newpwd123"); err != nil {
			t.Errorf("CheckPassword() error = %v", err)
		}
	})

	t.Run("custom role", func(t *testing.T) {
		mockPassword("s3cr3tpwd")
		if err := cli.run([]string{"admin", "adduser", "-name", "Prof", "-email", "prof@campus.test", "-role", "faculty"}); err != nil {
			t.Fatalf("cli.run() error = %v", err)
		}
		usr, _ := cli.usrRepo.GetUserByEmail(ctx, "prof@campus.test")
		if usr.Role != user.RoleFaculty {
			t.Errorf("Role = %s, want %s", usr.Role, user.RoleFaculty)
		}
	})

	t.Run("invalid role refused", func(t *testing.T) {
		if err := cli.run([]string{"admin", "adduser", "-name", "X", "-email", "x@campus.test", "-role", "ghost"}); err == nil {
			t.Error("cli.run() error = nil, want invalid role error")
		}
	})

	t.Run("missing flags print usage", func(t *testing.T) {
		if err := cli.run([]string{"admin", "adduser", "-name", "X"}); err != errHelp {
			t.Errorf("cli.run() error = %v, want %v", err, errHelp)
		}
	})

	t.Run("empty password prompts help", func(t *testing.T) {
		mockPassword("")
		if err := cli.run([]string{"admin", "adduser", "-name", "X", "-email", "x@campus.test"}); err != errHelp {
			t.Errorf("cli.run() error = %v, want %v", err, errHelp)
		}
	})
}

func Test_commandLine_resetpassword(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	mockPassword("origpwd12")
	if err := cli.run([]string{"admin", "adduser", "-name", "Root", "-email", "root@campus.test"}); err != nil {
		t.Fatalf("cli.run() error = %v", err)
	}

	t.Run("unknown email", func(t *testing.T) {
		mockPassword("whatever1")
		if err := cli.run([]string{"admin", "resetpassword", "-email", "ghost@campus.test"}); err != user.ErrNotFound {
			t.Errorf("cli.run() error = %v, want %v", err, user.ErrNotFound)
		}
	})

	t.Run("resets the password", func(t *testing.T) {
		mockPassword("rotated12")
		if err := cli.run([]string{"admin", "resetpassword", "-email", "root@campus.test"}); err != nil {
			t.Fatalf("cli.run() error = %v", err)
		}
		usr, _ := cli.usrRepo.GetUserByEmail(ctx, "root@campus.test")
		if err := usr.CheckPassword("rotated12"); err != nil {
			t.Errorf("CheckPassword() error = %v", err)
		}
		if err := usr.CheckPassword("origpwd12"); err == nil {
			t.Error("old password still accepted")
		}
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var gotCommand string
	var gotArgs []string
	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		gotCommand = command
		gotArgs = args
		if command == "boom" {
			return fmt.Errorf("goose %s: no such command", command)
		}
		return nil
	}

	if err := cli.run([]string{"admin", "migrate", "up"}); err != nil {
		t.Fatalf("cli.run() error = %v", err)
	}
	if gotCommand != "up" || len(gotArgs) != 0 {
		t.Errorf("migrate ran %s %v, want up []", gotCommand, gotArgs)
	}

	if err := cli.run([]string{"admin", "migrate", "up-to", "2"}); err != nil {
		t.Fatalf("cli.run() error = %v", err)
	}
	if gotCommand != "up-to" || len(gotArgs) != 1 || gotArgs[0] != "2" {
		t.Errorf("migrate ran %s %v, want up-to [2]", gotCommand, gotArgs)
	}

	if err := cli.run([]string{"admin", "migrate", "boom"}); err == nil {
		t.Error("cli.run() error = nil, want goose failure")
	}
}
