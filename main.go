package main

import "chatterbox/cmd"

func main() {
	cmd.Execute()
}
