/*
Package cli provides the root command and global flags of the stepflow CLI.

The command tree is:

	stepflow
	├── run           Run a program and wait for it to finish
	├── validate      Check program files for errors
	├── list          List stored programs
	├── history       Show finished runs
	├── serve         Arm triggers and serve the HTTP API
	├── version       Show version
	└── help          Show help

Commands live in the internal/commands subpackages and are attached in
cmd/stepflow.

# Exit codes

  - 0: success
  - 1: the run failed or was cancelled, or a command error occurred
  - 2: the program could not be loaded or does not validate
*/
package cli
