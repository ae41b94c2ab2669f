//go:build !unix

package tools

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup はプロセスグループを持たない環境ではシェル本体だけを止める。
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
