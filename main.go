// The main package for the analyzer executable.
package main

import (
	"github.com/code-by-fh/ai-job-analyzer/cmd"
)

func main() {
	cmd.Execute()
}
