package main

import "github.com/nfrund/pubsubd/cmd/pubsubd/cmd"

func main() {
	cmd.Execute()
}
