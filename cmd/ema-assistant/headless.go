package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	orchestration "github.com/koscakluka/ema-assistant/core"
	"github.com/koscakluka/ema-assistant/core/events"
)

// runHeadless sends every line read from input as a typed query and prints
// the answers. Lines starting with a slash are commands.
func runHeadless(ctx context.Context, app *app, input io.Reader) error {
	var wg sync.WaitGroup
	printerCtx, stopPrinter := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		printEvents(printerCtx, app.events)
	}()
	defer func() {
		stopPrinter()
		wg.Wait()
	}()

	cyan := color.New(color.FgCyan)
	if !app.auth.IsAuthenticated() {
		color.Yellow("Not logged in, type /login to start\n")
	}

	scanner := bufio.NewScanner(input)
	for {
		cyan.Print("› ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := handleLine(ctx, app, line); err != nil {
			color.Red("Error: %v\n", err)
		}
	}
}

func handleLine(ctx context.Context, app *app, line string) error {
	supervisor := app.supervisor

	command, argument, _ := strings.Cut(line, " ")
	switch command {
	case "/login":
		if argument == "" {
			app.auth.RequestLogin()
			url, _ := app.auth.LoginURL()
			fmt.Printf("Open %s\nthen run /login <code>\n", url)
			return nil
		}
		if err := app.auth.CompleteLogin(ctx, argument); err != nil {
			return err
		}
		color.Green("Logged in\n")
		return nil

	case "/new":
		supervisor.ResetConversation()
		return nil

	case "/retry":
		if err := supervisor.Retry(); err != nil {
			return err
		}
		// the retried turn starts after the retry delay
		waitForNewSession(ctx, supervisor, supervisor.ActiveSession())
		waitForIdle(ctx, supervisor)
		return nil

	case "/voice":
		if err := supervisor.StartVoiceTurn(); err != nil {
			return err
		}
		waitForIdle(ctx, supervisor)
		return nil

	case "/prev":
		if !supervisor.Previous() {
			fmt.Println("Already at the oldest answer")
		}
		return nil

	case "/next":
		if !supervisor.Next() {
			fmt.Println("Already at the newest answer")
		}
		return nil
	}

	if err := supervisor.StartTextTurn(line); err != nil {
		return err
	}
	waitForIdle(ctx, supervisor)
	return nil
}

// waitForIdle blocks until the latest session, follow-ups included, is
// done.
func waitForIdle(ctx context.Context, supervisor *orchestration.Supervisor) {
	for {
		session := supervisor.ActiveSession()
		if session == nil {
			return
		}

		select {
		case <-session.Done():
		case <-ctx.Done():
			return
		}

		if supervisor.ActiveSession() == session {
			return
		}
	}
}

func waitForNewSession(ctx context.Context, supervisor *orchestration.Supervisor, previous *orchestration.Session) {
	delay := supervisor.Settings().RetryDelay
	timer := time.NewTimer(2 * delay)
	defer timer.Stop()

	for supervisor.ActiveSession() == previous {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-time.After(delay / 10):
		}
	}
}

func printEvents(ctx context.Context, ch <-chan events.Event) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			switch event := event.(type) {
			case events.TranscriptUpdated:
				if event.Done {
					faint.Printf("you said: %s\n", event.Text)
				}
			case events.ScreenRendered:
				green.Println(event.Rendered)
			case events.TurnCompleted:
				if event.Turn.SupplementalText != "" {
					green.Println(event.Turn.SupplementalText)
				}
			case events.RenderFailed:
				color.Red("Could not show answer: %v\n", event.Err)
			case events.RecoveryGuidance:
				yellow.Printf("%s: %s\n", event.Guidance.Title, event.Guidance.Details)
			case events.LoginRequested:
				yellow.Println("Login required, type /login to start")
			}
		}
	}
}
