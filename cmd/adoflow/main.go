package main

import (
	"os"

	"adoflow/cmd/adoflow/commands"
)

func main() {
	os.Exit(commands.Execute())
}
