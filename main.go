// The main package for the music-crawler executable.
package main

import "github.com/Amir-4m/music-crawler/cmd"

func main() {
	cmd.Execute()
}
