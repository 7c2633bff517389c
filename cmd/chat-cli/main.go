package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/anjiri1684/attendance_chat/client"
	"github.com/gookit/color"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var serverURL, email, password, to string
	var last int

	flagSet := pflag.NewFlagSet("chat-cli", pflag.ContinueOnError)
	flagSet.StringVar(&serverURL, "server", "http://localhost:4000", "chat server base URL")
	flagSet.StringVar(&email, "email", "", "login email")
	flagSet.StringVar(&password, "password", os.Getenv("CHAT_PASSWORD"), "login password (default $CHAT_PASSWORD)")
	flagSet.StringVar(&to, "to", "", "open a conversation with this contact (email or id); lists contacts when empty")
	flagSet.IntVar(&last, "last", 50, "number of history messages to load")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if email == "" || password == "" {
		return fmt.Errorf("--email and --password are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(serverURL)
	me, err := api.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	contacts, err := api.Contacts(ctx)
	if err != nil {
		return err
	}
	unread, err := api.UnreadCount(ctx)
	if err != nil {
		return err
	}

	if to == "" {
		printContacts(contacts, unread)
		return nil
	}

	other, ok := lo.Find(contacts, func(c client.Contact) bool {
		return strings.EqualFold(c.Email, to) || c.ID.String() == to
	})
	if !ok {
		return fmt.Errorf("%s is not one of your contacts", to)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	session := client.NewSession(logger)
	view := newConversationView(me.ID, other)
	engine := client.NewEngine(me.ID, session,
		client.WithLogger(logger),
		client.WithChangeListener(view.refresh))
	view.engine = engine

	engine.SeedUnread(unread.ByCounterpart)
	if err := session.Dial(ctx, api.WebSocketURL(), me.Token, engine); err != nil {
		return err
	}
	defer session.Close()

	history, err := api.History(ctx, other.ID, last)
	if err != nil {
		return err
	}
	engine.LoadHistory(other.ID, history)
	if err := engine.Focus(ctx, other.ID); err != nil {
		color.Warn.Println("could not mark conversation read:", err)
	}

	color.Info.Printf("chatting with %s (%s). Type a message and press enter.\n", other.Email, other.Role)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return fmt.Errorf("connection closed")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := engine.Send(ctx, other.ID, line); err != nil {
				color.Error.Println("send failed:", err)
			}
		}
	}
}

func printContacts(contacts []client.Contact, unread *client.UnreadSummary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Email", "Role", "Online", "Unread", "ID"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetTablePadding("\t")

	for _, c := range contacts {
		online := ""
		if c.Online {
			online = color.Green.Sprint("●")
		}
		table.Append([]string{
			c.Email,
			c.Role,
			online,
			strconv.FormatInt(unread.ByCounterpart[c.ID], 10),
			c.ID.String(),
		})
	}
	table.Render()
	color.Comment.Printf("%d unread\n", unread.Unread)
}

// conversationView prints messages as they are confirmed and receipts as
// they change.
type conversationView struct {
	self   uuid.UUID
	other  client.Contact
	engine *client.Engine

	mu      sync.Mutex
	printed map[uuid.UUID]string
}

func newConversationView(self uuid.UUID, other client.Contact) *conversationView {
	return &conversationView{self: self, other: other, printed: make(map[uuid.UUID]string)}
}

func (v *conversationView) refresh(counterpart uuid.UUID) {
	if v.engine == nil {
		return
	}
	if counterpart != v.other.ID {
		color.Comment.Printf("new activity from another conversation (%d unread)\n", v.engine.Unread())
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, en := range v.engine.Messages(counterpart) {
		if _, pending := en.(*client.Pending); pending {
			continue
		}
		msg := en.View()
		label := v.engine.StatusLabel(en)
		prev, seen := v.printed[msg.ID]
		switch {
		case !seen && msg.FromID == v.self:
			fmt.Printf("%s %s %s\n", stamp(msg.CreatedAt), color.Cyan.Sprint("you:"), msg.Text)
		case !seen:
			fmt.Printf("%s %s %s\n", stamp(msg.CreatedAt), color.Magenta.Sprint(v.other.Email+":"), msg.Text)
		case prev != label && label != "":
			color.Comment.Printf("  %s\n", label)
		}
		v.printed[msg.ID] = label
	}
}

func stamp(t time.Time) string {
	return color.Gray.Sprint(t.Local().Format("15:04"))
}
