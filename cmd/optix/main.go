// Command optix runs composable gradient transformations on toy objectives.
package main

import "github.com/born-ml/optix/cmd/optix/cmd"

func main() {
	cmd.Execute()
}
