package main

import (
	"context"
	"fmt"
	"os"

	"github.com/examwatch/examwatch/cmd"
	"github.com/examwatch/examwatch/internal/buildinfo"
	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/logger"
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		return 1
	}

	rootCmd := cmd.RootCommand(settings, buildinfo.Current())
	err = rootCmd.ExecuteContext(context.Background())

	if cerr := logger.Global().Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "error closing logs: %v\n", cerr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
