package main

import "github.com/StefanHein/binKV/cmd"

func main() {
	cmd.Execute()
}
