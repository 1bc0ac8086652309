package main

import "github.com/casevault/casevault/cmd/casevault/cmd"

func main() {
	cmd.Execute()
}
