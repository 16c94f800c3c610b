package main

import (
	"chainjobs/internal/command/root"
)

func main() {
	root.NewRootCommand().Execute()
}
