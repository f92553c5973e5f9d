package main

import "github.com/natankaway/arenazap/cmd"

func main() {
	cmd.Execute()
}
