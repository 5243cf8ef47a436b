package main

import "github.com/jmehdipour/wx-ci/cmd"

func main() {
	cmd.Execute()
}
