// Package main is the entry point for the harvester executable.
package main

import "github.com/paperlab/arxiv-harvester/cmd"

func main() {
	cmd.Execute()
}
