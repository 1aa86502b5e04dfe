package main

import "github.com/KaramelBytes/stagewise/cmd"

func main() {
	cmd.Execute()
}
