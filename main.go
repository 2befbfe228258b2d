package main

import "github.com/canopy-platform/directory-services/cmd"

func main() {
	cmd.Execute()
}
