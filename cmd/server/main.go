package main

import "github.com/Togather-Foundation/skillexchange/cmd/server/cmd"

func main() {
	cmd.Execute()
}
