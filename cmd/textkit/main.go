// Command textkit is the CLI surface over the index/rank/crf core (spec 6).
package main

import "github.com/textkit/textkit/cmd/textkit/cmd"

func main() {
	cmd.Execute()
}
