package provider

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// runQuorum executes the quorum CLI in dir with --json output and returns
// stdout. The CLI discovers the .quorum state directory from its working
// directory, exactly as an operator at a shell would.
func runQuorum(ctx context.Context, binary, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, append(args, "--json")...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return stdout.Bytes(), fmt.Errorf("%s %v: %s", binary, args, bytes.TrimSpace(stderr.Bytes()))
		}
		return stdout.Bytes(), fmt.Errorf("%s %v: %w", binary, args, err)
	}
	return stdout.Bytes(), nil
}
