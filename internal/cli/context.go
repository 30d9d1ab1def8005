package cli

import (
	"fmt"
	"os"

	"github.com/quorum-project/quorum/pkg/color"
	"github.com/quorum-project/quorum/pkg/quorum"
	"github.com/quorum-project/quorum/pkg/template"
)

// requireClient discovers the appliance state directory from CWD and
// opens a client against it, or exits with error.
func requireClient() *quorum.Client {
	cwd, err := os.Getwd()
	if err != nil {
		fmtErr("cannot get current directory: %v", err)
		os.Exit(1)
	}
	c, err := quorum.Open(cwd)
	if err != nil {
		// Enhanced error message with suggestion
		fmt.Fprintln(os.Stderr, formatNotInApplianceError())
		os.Exit(1)
	}
	return c
}

// resolveActor expands the --actor flag value. An empty flag falls back
// to the invoking user and host, so audit records always carry an actor.
func resolveActor(flag string) string {
	if flag == "" {
		flag = "{user}@{hostname}"
	}
	return template.ExpandActor(flag)
}

func fmtErr(format string, args ...any) {
	// Colorize the error prefix
	prefix := "quorum: "
	if color.Enabled() {
		prefix = color.Error("quorum:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
