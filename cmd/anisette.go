package cmd

import (
	"github.com/peterbourgon/ff/v3/ffcli"

	anisettecli "github.com/shaw-baobao/go-anisette/internal/cli/anisettecmd"
)

// AnisetteCommand returns the anisette command group.
func AnisetteCommand() *ffcli.Command {
	return anisettecli.AnisetteCommand()
}
