package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
)

// RunExtension attempts to find and execute an external fsc-<subcommand> binary.
// It returns (true, exitCode) if an extension was found and executed,
// and (false, 0) if no extension was found.
//
// The global flags are passed as FSC_* environment variables.
func RunExtension(subcommand string, args []string) (bool, int) {
	name := "fsc-" + subcommand

	lp, err := exec.LookPath(name)
	if err != nil {
		log.Printf("external command %q not found in PATH: %v", name, err)
		return false, 0
	}

	cmd := exec.Command(lp, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), extensionEnv()...)

	if err := cmd.Run(); err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return true, exitError.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "Error executing external command %q: %v\n", name, err)
		return true, 1
	}
	return true, 0
}

// extensionEnv returns the resolved global flags as environment variables.
func extensionEnv() []string {
	return []string{
		EnvDB + "=" + DBPath(),
		EnvConfig + "=" + ConfigPath(),
		EnvCurrency + "=" + Currency(),
		EnvVerbose + "=" + strconv.FormatBool(*Verbose || os.Getenv(EnvVerbose) == "true"),
	}
}
