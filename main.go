package main

import "github.com/sideassist/sideassist/cmd"

func main() {
	cmd.Execute()
}
