//go:build !unix && !windows

package render

import "os/exec"

func configureCmd(cmd *exec.Cmd) {}
