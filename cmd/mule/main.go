// Command mule runs cooperating LLM agents from the command line.
package main

import (
	_ "github.com/joho/godotenv/autoload"

	"github.com/leofalp/mule/internal/cli"
)

func main() {
	cli.Execute()
}
