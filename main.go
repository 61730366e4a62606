package main

import "github.com/stashvcs/stash/cli"

func main() {
	cli.Execute()
}
