package main

import "github.com/Rib4ko/backendYT/cmd"

func main() {
	cmd.Execute()
}
