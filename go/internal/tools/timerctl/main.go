package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mcdev12/tasktimer/go/internal/models"
	"github.com/mcdev12/tasktimer/go/internal/timer"
)

const usage = `usage: timerctl [-addr URL] <command> [args]

commands:
  status              show the timer
  toggle              start, pause or resume
  reset               stop and clear the timer
  describe <text>     set the task description
  set <H:MM:SS>       set the elapsed time
`

func main() {
	var (
		addr    string
		timeout time.Duration
	)
	flag.StringVar(&addr, "addr", envOr("TIMER_ADDR", "http://localhost:8080"), "timer daemon base URL")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := timer.NewServiceClient(http.DefaultClient, addr)
	resp, err := run(ctx, client, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printView(resp.View)
}

func run(ctx context.Context, client *timer.ServiceClient, cmd string, args []string) (*timer.TimerResponse, error) {
	switch cmd {
	case "status":
		return client.GetTimer(ctx)
	case "toggle":
		return client.Toggle(ctx)
	case "reset":
		return client.Reset(ctx)
	case "describe":
		return client.SetDescription(ctx, strings.Join(args, " "))
	case "set":
		if len(args) != 1 {
			return nil, fmt.Errorf("set takes one time argument")
		}
		// same focus then blur sequence a display sends
		if _, err := client.FocusTime(ctx); err != nil {
			return nil, err
		}
		return client.BlurTime(ctx, args[0])
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func printView(v timer.View) {
	stateColor := color.New(color.FgYellow)
	switch v.State {
	case models.TimerStateRunning:
		stateColor = color.New(color.FgGreen, color.Bold)
	case models.TimerStateIdle:
		stateColor = color.New(color.FgWhite)
	}

	desc := v.Description
	if desc == "" {
		desc = color.New(color.Faint).Sprint("(no description)")
	}

	fmt.Printf("%s  %s  %s\n", color.New(color.Bold).Sprint(v.Time), stateColor.Sprint(v.State), desc)
	if !v.Online {
		color.New(color.FgRed).Println("offline: changes are not being shared")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
