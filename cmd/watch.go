package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/gallery/internal/api"
	"github.com/lehigh-university-libraries/gallery/internal/engine"
	"github.com/lehigh-university-libraries/gallery/internal/events"
	"github.com/lehigh-university-libraries/gallery/internal/notify"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		server    string
		frames    int
		reconcile string
		reconnect bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the service and rotate images through carousel slots",
		Long: `Loads the image list, follows the push channel, and prints the carousel
slots every time they change.

Commands read from stdin while watching:
  delete <id>   delete an image optimistically
  frames <n>    change the number of slots (1-8)
  pending       list deletions awaiting confirmation
  quit          stop watching`,
		Example: `  # Watch with four slots, restoring images whose deletion fails
  gallery watch --frames 4 --reconcile rollback --reconnect`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if server != "" {
				cfg.Client.ServerURL = server
			}
			if cmd.Flags().Changed("frames") {
				cfg.Client.Frames = frames
			}
			if reconcile != "" {
				cfg.Client.Reconcile = engine.Policy(reconcile)
			}
			if cmd.Flags().Changed("reconnect") {
				cfg.Client.Reconnect = reconnect
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			client := api.NewClient(cfg.Client.ServerURL)
			out := &syncWriter{w: cmd.OutOrStdout()}

			engineOpts := []engine.Option{
				engine.WithNotifier(notify.Log{}),
				engine.WithObserver(func(v engine.View) { renderView(out, v) }),
			}
			if cfg.Client.Reconnect {
				var sub events.Subscriber = &api.Reconnecting{Subscriber: client, Backoff: api.DefaultBackoff()}
				engineOpts = append(engineOpts, engine.WithSubscriber(sub))
			}

			e, err := engine.New(engine.Config{
				Slots:    cfg.Client.Frames,
				Interval: cfg.Client.TickInterval,
				Policy:   cfg.Client.Reconcile,
			}, client, engineOpts...)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() {
				readCommands(ctx, cmd.InOrStdin(), e, out)
				cancel()
			}()

			slog.Info("Watching gallery", "server", cfg.Client.ServerURL, "frames", cfg.Client.Frames)
			return e.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Image service base URL")
	cmd.Flags().IntVarP(&frames, "frames", "f", 2, "Number of carousel slots (1-8)")
	cmd.Flags().StringVar(&reconcile, "reconcile", "", "Failed deletion policy: keep or rollback")
	cmd.Flags().BoolVar(&reconnect, "reconnect", false, "Reopen the push channel when it breaks")

	return cmd
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func renderView(w io.Writer, v engine.View) {
	var b strings.Builder
	fmt.Fprintf(&b, "images: %d\n", len(v.Images))
	for _, slot := range v.Slots {
		if slot.Empty {
			fmt.Fprintf(&b, "  slot %d: (no image)\n", slot.Position)
			continue
		}
		fmt.Fprintf(&b, "  slot %d: [%d] %s %s\n", slot.Position, slot.Index, slot.Image.ID, slot.Image.Name)
	}
	_, _ = io.WriteString(w, b.String())
}

// readCommands handles stdin commands until input ends, quit is read, or
// ctx is cancelled.
func readCommands(ctx context.Context, in io.Reader, e *engine.Engine, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return
			}
			line = l
		}

		verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		arg = strings.TrimSpace(arg)
		switch verb {
		case "":
		case "quit", "exit":
			return
		case "delete":
			if arg == "" {
				fmt.Fprintln(out, "usage: delete <id>")
				continue
			}
			if err := e.RequestDeletion(ctx, arg); err != nil {
				fmt.Fprintln(out, "delete:", err)
			}
		case "frames":
			n, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Fprintln(out, "usage: frames <n>")
				continue
			}
			if err := e.SetSlotCount(ctx, n); err != nil {
				fmt.Fprintln(out, "frames:", err)
			}
		case "pending":
			pending, err := e.Pending(ctx)
			if err != nil {
				fmt.Fprintln(out, "pending:", err)
				continue
			}
			if len(pending) == 0 {
				fmt.Fprintln(out, "no pending deletions")
			}
			for _, p := range pending {
				fmt.Fprintf(out, "  #%d %s %s\n", p.Seq, p.ID, p.State)
			}
		default:
			fmt.Fprintf(out, "unknown command %q\n", verb)
		}
	}
}
