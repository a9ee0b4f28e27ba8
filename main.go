package main

import "sglang-chat/cmd"

func main() {
	cmd.Execute()
}
