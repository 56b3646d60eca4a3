// The main package for the diskseek executable.
package main

import (
	"github.com/diskseek/diskseek/cmd"
)

func main() {
	cmd.Execute()
}
