package main

import (
	"github.com/playtrade/chatkit/cmd/chatkit/cmd"
)

func main() {
	cmd.Execute()
}
