package main

import "github.com/kozaktomas/dejaview/cmd"

func main() {
	cmd.Execute()
}
