package main

import "github.com/ayman-m/yaragent/cmd"

func main() {
	cmd.Execute()
}
