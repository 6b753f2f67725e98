package main

import "github.com/convoloop/convoloop/cmd"

func main() {
	cmd.Execute()
}
