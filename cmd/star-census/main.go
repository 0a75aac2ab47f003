package main

import (
	"github.com/Sternrassler/repo-star-census/cmd/star-census/cmd"
)

func main() {
	cmd.Execute()
}
