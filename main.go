package main

import "knowbot/cmd"

func main() {
	cmd.Execute()
}
