package main

import "github.com/The-Valley-Discord/blimp/cmd"

func main() {
	cmd.Execute()
}
