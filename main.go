package main

import (
	"playlog/cmd"
)

func main() {
	cmd.Execute()
}
