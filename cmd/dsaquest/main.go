package main

import "github.com/ashureev/dsa-quest/internal/cli"

func main() {
	cli.Execute()
}
