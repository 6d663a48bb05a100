// Command recipectl queries the recipe video search engine from a terminal.
//
// Usage:
//
//	recipectl search --tags potato,pork --tools oven --lang en
//	recipectl trending --tags curry --max 10
//	recipectl gacha --servings 4
//	recipectl catalog --lang ja
//
// The YouTube key and cache settings come from the same environment as the
// server (YOUTUBE_API_KEY, REDIS_URL, CACHE_DIR, ...); flags override them.
package main

import (
	"fmt"
	"os"

	"homecook/videosearch/cmd/recipectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
