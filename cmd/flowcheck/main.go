package main

import "os"

func main() {
	err := newRootCommand(newApp()).Execute()
	os.Exit(exitCode(err, os.Stderr))
}
