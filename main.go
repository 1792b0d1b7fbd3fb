package main

import "github.com/openvectors/vecimport/cmd"

func main() {
	cmd.Execute()
}
