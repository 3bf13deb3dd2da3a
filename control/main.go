package main

import (
	"fmt"
	"os"

	cmd "kvbench/control/cmd"
)

func main() {
	// CLI
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
