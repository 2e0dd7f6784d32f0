package main

import (
	root "github.com/rugdetector/zkml-gnark/cmd"
)

func main() {
	root.Execute()
}
