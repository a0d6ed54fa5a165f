package main

import (
	"os"
	quit "os"
)

func cleanup() {
	os.Exit(2)
}

func main() {
	defer cleanup()

	os.Exit(1)   // want "avoid using os.Exit in main.main"
	quit.Exit(1) // want "avoid using os.Exit in main.main"

	go func() {
		os.Exit(3)
	}()
}
