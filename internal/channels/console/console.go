// Package console is a line-oriented stdin/stdout channel for local chat
// sessions.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/haasonsaas/mira/internal/channels"
	"github.com/haasonsaas/mira/pkg/models"
)

// LocalUser is the user id of the console session.
const LocalUser = "console:local"

const prompt = "> "

// Adapter reads one message per line from in and writes replies to out.
type Adapter struct {
	in          io.Reader
	out         io.Writer
	interactive bool
	now         func() time.Time

	messages  chan models.Inbound
	closeOnce sync.Once
	writeMu   sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
}

// New creates a console adapter. A prompt is printed only when in is a
// terminal.
func New(in io.Reader, out io.Writer) *Adapter {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &Adapter{
		in:          in,
		out:         out,
		interactive: interactive,
		now:         time.Now,
		messages:    make(chan models.Inbound),
		stop:        make(chan struct{}),
	}
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelConsole }

func (a *Adapter) Messages() <-chan models.Inbound { return a.messages }

// Start reads lines until EOF or ctx ends, then closes Messages.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || a.started {
		return nil
	}
	a.started = true

	a.printPrompt()
	go func() {
		defer a.closeMessages()
		scanner := bufio.NewScanner(a.in)
		seq := 0
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				a.printPrompt()
				continue
			}
			seq++
			msg := models.Inbound{
				UserID:     LocalUser,
				Channel:    models.ChannelConsole,
				ExternalID: "console-" + strconv.Itoa(seq),
				Text:       text,
				ReceivedAt: a.now(),
			}
			select {
			case a.messages <- msg:
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			}
		}
	}()
	return nil
}

// Stop ends the reader, which closes Messages. A blocked read on a
// terminal is abandoned.
func (a *Adapter) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil
	}
	a.stopped = true
	close(a.stop)
	if !a.started {
		a.closeMessages()
	}
	return nil
}

func (a *Adapter) closeMessages() {
	a.closeOnce.Do(func() { close(a.messages) })
}

// Send prints a reply for the local user.
func (a *Adapter) Send(_ context.Context, userID, text string) error {
	if _, err := channels.Address(models.ChannelConsole, userID); err != nil {
		return err
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if _, err := fmt.Fprintf(a.out, "mira: %s\n", text); err != nil {
		return channels.ErrInternal("console: write", err)
	}
	if a.interactive {
		_, _ = io.WriteString(a.out, prompt)
	}
	return nil
}

func (a *Adapter) printPrompt() {
	if !a.interactive {
		return
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_, _ = io.WriteString(a.out, prompt)
}
