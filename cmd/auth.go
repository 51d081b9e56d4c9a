package cmd

import (
	"github.com/peterbourgon/ff/v3/ffcli"

	authcli "github.com/shaw-baobao/go-anisette/internal/cli/auth"
)

// AuthCommand returns the auth command group.
func AuthCommand() *ffcli.Command {
	return authcli.AuthCommand()
}
