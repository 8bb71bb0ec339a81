package main

import (
	"fmt"
	"os"
	"time"

	"github.com/vidlift/vidlift/cmd"
	"github.com/vidlift/vidlift/pkg/env"

	"github.com/getsentry/sentry-go"
)

func main() {
	err := sentry.Init(sentry.ClientOptions{
		Environment: env.Env,
		SampleRate:  0.1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
	}
	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	cmd.Execute()
}
