package main

import "musinotes/cmd"

func main() {
	cmd.Execute()
}
