package main

import (
	"github.com/xkilldash9x/shotcheck/cmd"
)

func main() {
	cmd.Execute()
}
