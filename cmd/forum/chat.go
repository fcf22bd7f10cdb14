package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	forum "github.com/rtforum/forum-sdk-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <user-id>",
	Short: "Chat with a user in real time",
	Long: `Open a live conversation with a user. Each line you type is sent as a
message; end a line with '\' to keep composing. Commands: /quit, /logout.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	peerID, err := strconv.Atoi(args[0])
	if err != nil || peerID <= 0 {
		return fmt.Errorf("invalid user id %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ls, err := newLiveSession(cfg, log, nil)
	if err != nil {
		return err
	}

	r := &terminalRenderer{out: cmd.OutOrStdout(), client: ls.client, selfID: cfg.Auth.UserID, log: log}
	view := forum.NewConversationView(cfg.Auth.UserID, r)
	view.Open(peerID)
	defer view.Close()
	defer view.Attach(ls.rt)()
	defer ls.rt.OnTypingStatus(func(s forum.TypingStatus) {
		if s.UserID == peerID && s.IsTyping {
			r.notice("#%d is typing...", peerID)
		}
	})()
	defer ls.rt.OnStatusChange(func(s forum.OnlineStatus) {
		switch s.UserID {
		case peerID:
			r.notice("#%d is %s", peerID, presence(s.IsOnline))
		case cfg.Auth.UserID:
			if !s.IsOnline {
				r.notice("disconnected")
			}
		}
	})()

	if err := ls.start(ctx); err != nil {
		return err
	}
	defer ls.close()

	if err := r.history(ctx, view, peerID); err != nil {
		log.Warn("failed to load history", zap.Error(err))
	}

	typing := forum.NewTypingNotifier(ls.rt, 0)
	lines := readLines(cmd.InOrStdin())
	var loggedOut atomic.Bool

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		var draft strings.Builder
		for {
			var line string
			select {
			case <-gctx.Done():
				return nil
			case l, ok := <-lines:
				if !ok {
					return nil
				}
				line = l
			}

			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit":
				return nil
			case "/logout":
				if err := ls.session.Logout(gctx); err != nil {
					return err
				}
				loggedOut.Store(true)
				forgetSession(log)
				r.notice("logged out")
				return nil
			}

			if rest, ok := strings.CutSuffix(line, `\`); ok {
				draft.WriteString(rest)
				draft.WriteString("\n")
				typing.Keystroke(gctx, peerID)
				continue
			}
			draft.WriteString(line)
			typing.Stop(gctx)
			if !ls.rt.SendMessage(gctx, peerID, draft.String()) {
				r.notice("not connected; message not sent")
			}
			draft.Reset()
		}
	})
	g.Go(func() error {
		return ls.wait(gctx)
	})

	err = g.Wait()
	typing.Stop(context.Background())
	if errors.Is(err, errSessionEnded) {
		if loggedOut.Load() {
			return nil
		}
		forgetSession(log)
	}
	return err
}

// readLines feeds lines from in until EOF. The reader goroutine outlives the
// chat if stdin never closes; the process exits soon after.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

func presence(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

// ============================================================================
// Terminal renderer
// ============================================================================

// terminalRenderer prints the open conversation as a transcript.
type terminalRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	client *forum.Client
	selfID int
	log    *zap.Logger
}

func (r *terminalRenderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *terminalRenderer) notice(format string, args ...any) {
	r.printf("* "+format+"\n", args...)
}

func (r *terminalRenderer) RenderMessage(m forum.Message) {
	who := m.SenderName
	if m.SenderID == r.selfID {
		who = "you"
	} else if who == "" {
		who = "#" + strconv.Itoa(m.SenderID)
	}
	when := "--:--"
	if t, err := m.SentTime(); err == nil {
		when = t.Local().Format("15:04")
	}
	r.printf("[%s] %s: %s\n", when, who, m.Content)
}

// UpdateLastMessage is a no-op: the transcript already ends with the message.
func (r *terminalRenderer) UpdateLastMessage(peerID int, content string) {}

func (r *terminalRenderer) MarkRead(peerID int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.MarkRead(ctx, peerID); err != nil {
		r.log.Warn("mark read failed", zap.Int("peer_id", peerID), zap.Error(err))
	}
}

func (r *terminalRenderer) RefreshConversations() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := r.client.UnreadCount(ctx)
	if err != nil {
		r.log.Warn("unread count failed", zap.Error(err))
		r.notice("new message in another conversation")
		return
	}
	r.notice("new message in another conversation (%d unread)", n)
}

// history loads the latest page of the conversation into view, oldest
// first, and marks it read. Messages already pushed are not printed twice.
func (r *terminalRenderer) history(ctx context.Context, view *forum.ConversationView, peerID int) error {
	page, err := r.client.Messages(ctx, peerID, 0)
	if err != nil {
		return err
	}
	msgs := slices.Clone(page.Messages)
	slices.Reverse(msgs)
	if view.Load(msgs) > 0 {
		r.MarkRead(peerID)
	}
	return nil
}
