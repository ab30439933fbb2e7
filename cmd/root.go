package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "agora"}

	root.AddCommand(runCMD(), serveCMD(), migrateCMD())
	_ = root.Execute()
}
