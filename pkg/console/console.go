// Package console provides an interactive admin shell for a running
// PlayClaw process: inspect bus and capture state, replay history, and
// inject manual messages (useful when taking over from a confused model).
package console

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/grvsrs/playclaw/pkg/bus"
	"github.com/grvsrs/playclaw/pkg/capture"
)

const source = "admin_console"

// StatusSource is the console's view of the capture loop.
type StatusSource interface {
	Status(ctx context.Context) capture.Status
}

// Console is a readline REPL bound to the bus.
type Console struct {
	bus     *bus.MessageBus
	capture StatusSource
}

// New builds a console. capture may be nil.
func New(mb *bus.MessageBus, cap StatusSource) *Console {
	return &Console{bus: mb, capture: cap}
}

// Run blocks reading commands until EOF, "exit", or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.New("playclaw> ")
	if err != nil {
		return fmt.Errorf("start console: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on close, readline.ErrInterrupt on ^C
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return nil
		}
		if done := c.dispatch(ctx, strings.Fields(strings.TrimSpace(line))); done {
			return nil
		}
	}
}

func (c *Console) dispatch(ctx context.Context, args []string) (done bool) {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "exit", "quit":
		return true
	case "help":
		fmt.Println(`commands:
  stats                      bus delivery statistics
  status                     capture loop status
  history [type] [limit]     recent messages (gif data elided)
  press <button> [seconds]   publish a manual action message
  say <text>                 publish an info system message
  exit`)
	case "stats":
		s := c.bus.Stats()
		fmt.Printf("published=%d delivered=%d errors=%d dropped=%d rejected=%d\n",
			s.TotalPublished, s.TotalDelivered, s.TotalErrors, s.TotalDropped, s.RejectedClosed)
		for t, n := range s.PerType {
			fmt.Printf("  %-10s %d\n", t, n)
		}
	case "status":
		if c.capture == nil {
			fmt.Println("no capture loop")
			return false
		}
		st := c.capture.Status(ctx)
		fmt.Printf("state=%s frames=%d buffered=%d span=%.1fs fps=%d\n",
			st.State, st.FrameCount, st.BufferFrames, st.BufferDurationSeconds, st.CaptureFPS)
	case "history":
		typeFilter := bus.Type("")
		limit := 10
		if len(args) > 1 {
			typeFilter = bus.Type(args[1])
		}
		if len(args) > 2 {
			if n, err := strconv.Atoi(args[2]); err == nil {
				limit = n
			}
		}
		for _, msg := range c.bus.History(typeFilter, limit) {
			fmt.Printf("%s  %-8s  %-14s  %s\n",
				msg.Timestamp.Format("15:04:05"), msg.Type, msg.Source, summarize(msg))
		}
	case "press":
		if len(args) < 2 {
			fmt.Println("usage: press <button> [seconds]")
			return false
		}
		seconds := 0.2
		if len(args) > 2 {
			if v, err := strconv.ParseFloat(args[2], 64); err == nil && v > 0 {
				seconds = v
			}
		}
		msg := bus.NewAction(source, []string{strings.ToLower(args[1])}, nil, []float64{seconds})
		if err := c.bus.Publish(msg); err != nil {
			fmt.Println("publish failed:", err)
		}
	case "say":
		if len(args) < 2 {
			fmt.Println("usage: say <text>")
			return false
		}
		msg := bus.NewSystem(source, strings.Join(args[1:], " "), bus.LevelInfo)
		if err := c.bus.Publish(msg); err != nil {
			fmt.Println("publish failed:", err)
		}
	default:
		fmt.Printf("unknown command %q (try help)\n", args[0])
	}
	return false
}

func summarize(msg bus.Message) string {
	switch content := msg.Content.(type) {
	case bus.GIFContent:
		return fmt.Sprintf("gif %d frames, %d bytes", content.Metadata.FrameCount, content.Metadata.Size)
	case bus.ResponseContent:
		return truncate(content.Text, 60)
	case bus.ActionContent:
		return strings.Join(content.Buttons, "+")
	case bus.SystemContent:
		return fmt.Sprintf("[%s] %s", content.Level, truncate(content.Message, 60))
	default:
		return string(msg.Type)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
