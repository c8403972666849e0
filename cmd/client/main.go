package main

import (
	"bufio"
	"chat-relay/client"
	"chat-relay/domain/chat"
	"chat-relay/domain/search"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL      string        `envconfig:"CHAT_SERVER_URL" default:"http://localhost:8080"`
	Email          string        `envconfig:"CHAT_EMAIL" required:"true"`
	Password       string        `envconfig:"CHAT_PASSWORD" required:"true"`
	PendingTimeout time.Duration `envconfig:"CHAT_PENDING_TIMEOUT" default:"15s"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"WARN"`
	// CHAT_COLOURS renders senders with their profile colour
	Colours bool `envconfig:"CHAT_COLOURS" default:"true"`
}

const usage = `/dm <userID> <text>        direct message
/say <channelID> <text>    channel message
/file <userID|#channelID> <path>
/join <channelID>          /leave <channelID>
/history <userID|#channelID>
/channels                  /contacts [term]
/delete <channelID>
/find <terms> [--channel id] [--with userID] [--limit n]
/quit`

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(log, client.Options{ServerURL: config.ServerURL, PendingTimeout: config.PendingTimeout, Location: time.Local})
	self, err := c.Login(ctx, config.Email, config.Password)
	if err != nil {
		return exitRuntime, fmt.Errorf("login failed: %w", err)
	}
	if err = c.Connect(ctx); err != nil {
		return exitRuntime, err
	}
	defer func() { _ = c.Close() }()

	color.Greenf(">>> Connected to %s as %s (%s)\n", config.ServerURL, self.DisplayName(), self.ID)
	fmt.Println(usage)

	// Every change is printed as the last lines of its conversation
	go func() {
		for update := range c.Updates() {
			lines := client.Render(c.Conversation(update.Conversation).Items(), !config.Colours)
			if len(lines) > 0 {
				fmt.Printf("%s %s\n", color.Gray.Render(update.Conversation), lines[len(lines)-1])
			}
		}
	}()

	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
		close(input)
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case line, ok := <-input:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return exitOK, nil
			}
			if err := execute(ctx, c, line, !config.Colours); err != nil {
				color.Redf("%v\n", err)
			}
		}
	}
}

func execute(ctx context.Context, c *client.Client, line string, plain bool) error {
	command, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	target, text, _ := strings.Cut(strings.TrimSpace(rest), " ")

	switch command {
	case "":
		return nil
	case "/dm":
		_, err := c.SendDirect(chat.UserID(target), chat.TextBody{Content: text})
		return err
	case "/say":
		_, err := c.SendChannel(chat.ChannelID(target), chat.TextBody{Content: text})
		return err
	case "/file":
		f, err := os.Open(text)
		if err != nil {
			return err
		}
		defer f.Close()
		body, err := c.UploadFile(ctx, f.Name(), f)
		if err != nil {
			return err
		}
		if channelID, ok := strings.CutPrefix(target, "#"); ok {
			_, err = c.SendChannel(chat.ChannelID(channelID), body)
		} else {
			_, err = c.SendDirect(chat.UserID(target), body)
		}
		return err
	case "/join":
		return c.OpenChannel(chat.ChannelID(target))
	case "/leave":
		return c.CloseChannel(chat.ChannelID(target))
	case "/history":
		var key string
		var err error
		if channelID, ok := strings.CutPrefix(target, "#"); ok {
			err = c.LoadChannelHistory(ctx, chat.ChannelID(channelID))
			key = chat.ConversationKey(c.Self().ID, chat.ChannelTarget{Channel: chat.ChannelID(channelID)})
		} else {
			err = c.LoadDirectHistory(ctx, chat.UserID(target))
			key = chat.ConversationKey(c.Self().ID, chat.DirectTarget{Recipient: chat.UserID(target)})
		}
		if err != nil {
			return err
		}
		for _, rendered := range client.Render(c.Conversation(key).Items(), plain) {
			fmt.Println(rendered)
		}
		return nil
	case "/channels":
		channels, err := c.Channels(ctx)
		if err != nil {
			return err
		}
		for _, channel := range channels {
			fmt.Printf("#%s %s (%d members) %s\n", channel.ID, channel.Name, len(channel.Members), channel.LastMessage)
		}
		return nil
	case "/contacts":
		if strings.TrimSpace(rest) == "" {
			contacts, err := c.DirectContacts(ctx)
			if err != nil {
				return err
			}
			for _, contact := range contacts {
				fmt.Printf("%s %s [%s] %s\n", contact.Profile.ID, contact.Profile.DisplayName(),
					contact.LastActivity.Local().Format(time.DateTime), contact.LastMessage)
			}
			return nil
		}
		profiles, err := c.SearchContacts(ctx, rest)
		if err != nil {
			return err
		}
		for _, profile := range profiles {
			fmt.Printf("%s %s <%s>\n", profile.ID, profile.DisplayName(), profile.Email)
		}
		return nil
	case "/delete":
		return c.DeleteChannel(ctx, chat.ChannelID(target))
	case "/find":
		hits, err := c.SearchMessages(ctx, search.NewSearchQuery(line))
		if err != nil {
			return err
		}
		for _, hit := range hits {
			fmt.Printf("%s [%s] %s: %s\n", hit.Conversation, hit.Timestamp.Local().Format(time.DateTime), hit.Sender, hit.Content)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}
