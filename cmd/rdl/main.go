package main

import "os"

func main() {
	var a app

	err := newRootCmd(&a).Execute()
	a.Close()

	if err != nil {
		os.Exit(1)
	}
}
