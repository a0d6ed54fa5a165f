// Command sanasto runs the session daemon: one session manager persisted in
// the configured key-value store, served over HTTP and gRPC.
package main

import (
	"github.com/patric-chuzhbe/sanasto/internal/app"
)

func run() error {
	application, err := app.New()
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Run()
}

func main() {
	if err := run(); err != nil {
		panic(err)
	}
}
