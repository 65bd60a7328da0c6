// Package client implements the chat sub-command: a terminal front end for
// listing chats, searching friends, creating groups, broadcasting and listening.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	apiclient "github.com/chirino/conversation-service/internal/client"
	"github.com/chirino/conversation-service/internal/security"
	"github.com/urfave/cli/v3"
)

// Command returns the chat sub-command.
func Command() *cli.Command {
	var (
		baseURL string
		token   string
		selfID  string
	)
	connFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:        "url",
				Sources:     cli.EnvVars("CONVERSATION_SERVICE_URL"),
				Destination: &baseURL,
				Value:       "http://localhost:8080",
				Usage:       "Conversation service base URL",
			},
			&cli.StringFlag{
				Name:        "token",
				Sources:     cli.EnvVars("CONVERSATION_SERVICE_TOKEN"),
				Destination: &token,
				Usage:       "Auth token sent in the auth-token header",
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "user",
				Sources:     cli.EnvVars("CONVERSATION_SERVICE_USER"),
				Destination: &selfID,
				Usage:       "Your user id; defaults to the token in testing mode",
			},
		}
	}
	self := func() string {
		if selfID != "" {
			return selfID
		}
		return token
	}
	api := func() *apiclient.API { return apiclient.NewAPI(baseURL, token) }

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to a running conversation service",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List your conversations",
				Flags: connFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					list := apiclient.NewChatList(api())
					if err := list.Refresh(ctx); err != nil {
						return err
					}
					return printJSON(writer(cmd), list.Snapshot())
				},
			},
			{
				Name:      "friends",
				Usage:     "Search the peers of your direct chats",
				ArgsUsage: "[query]",
				Flags:     connFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					list := apiclient.NewChatList(api())
					if err := list.Refresh(ctx); err != nil {
						return err
					}
					friends := apiclient.FriendsOf(list.Snapshot(), self())
					return printJSON(writer(cmd), apiclient.SearchFriends(friends, cmd.Args().First(), nil))
				},
			},
			{
				Name:      "create-group",
				Usage:     "Create a group with at least two of your friends",
				ArgsUsage: "<name> <friend-id>...",
				Flags:     connFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return createGroup(ctx, cmd, api(), self())
				},
			},
			{
				Name:      "broadcast",
				Usage:     "Send a message to every direct-chat peer",
				ArgsUsage: "<text>",
				Flags:     connFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return broadcast(ctx, cmd, api(), self())
				},
			},
			{
				Name:  "listen",
				Usage: "Print incoming messages and keep the chat list current until interrupted",
				Flags: connFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return listen(ctx, cmd, api())
				},
			},
			tokenCommand(),
		},
	}
}

func createGroup(ctx context.Context, cmd *cli.Command, api *apiclient.API, selfID string) error {
	args := cmd.Args().Slice()
	if len(args) < 1 {
		return fmt.Errorf("group name is required")
	}
	list := apiclient.NewChatList(api)
	if err := list.Refresh(ctx); err != nil {
		return err
	}
	byID := map[string]apiclient.Friend{}
	for _, f := range apiclient.FriendsOf(list.Snapshot(), selfID) {
		byID[f.ID] = f
	}

	draft := apiclient.NewGroupDraft(api, list, selfID)
	draft.SetName(args[0])
	for _, id := range args[1:] {
		f, ok := byID[id]
		if !ok {
			return fmt.Errorf("%s is not one of your friends", id)
		}
		if err := draft.Add(f); err != nil {
			log.Warn("Skipping friend", "id", id, "err", err)
		}
	}
	view, err := draft.Submit(ctx)
	if err != nil {
		return err
	}
	return printJSON(writer(cmd), view)
}

func broadcast(ctx context.Context, cmd *cli.Command, api *apiclient.API, selfID string) error {
	list := apiclient.NewChatList(api)
	if err := list.Refresh(ctx); err != nil {
		return err
	}
	emitter, err := apiclient.DialSocket(ctx, api)
	if err != nil {
		return err
	}
	defer emitter.Close()

	b := &apiclient.Broadcaster{Emitter: emitter}
	sent, err := b.Broadcast(ctx, list.Snapshot(), selfID, cmd.Args().First())
	log.Info("Broadcast finished", "sent", sent)
	return err
}

func listen(ctx context.Context, cmd *cli.Command, api *apiclient.API) error {
	list := apiclient.NewChatList(api)
	if err := list.Refresh(ctx); err != nil {
		return err
	}
	emitter, err := apiclient.DialSocket(ctx, api)
	if err != nil {
		return err
	}
	defer emitter.Close()
	go func() {
		<-ctx.Done()
		_ = emitter.Close()
	}()

	out := writer(cmd)
	for {
		msg, err := emitter.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		view, err := list.Apply(ctx, msg)
		if err != nil {
			log.Warn("Message for unknown conversation", "conversation", msg.ConversationID, "err", err)
		}
		_, _ = fmt.Fprintf(out, "%s [%s] %s (unread %d)\n", msg.Sender, msg.ConversationID, msg.Text, view.UnreadFor(msg.Receiver))
	}
}

func tokenCommand() *cli.Command {
	var (
		secret string
		issuer string
		ttl    time.Duration
	)
	return &cli.Command{
		Name:      "token",
		Usage:     "Sign an HS256 token for a user id (development only)",
		ArgsUsage: "<user-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "jwt-secret",
				Sources:     cli.EnvVars("CONVERSATION_SERVICE_JWT_SECRET", "JWT_SECRET"),
				Destination: &secret,
				Required:    true,
				Usage:       "Shared HS256 secret (at least 32 bytes)",
			},
			&cli.StringFlag{
				Name:        "jwt-issuer",
				Sources:     cli.EnvVars("CONVERSATION_SERVICE_JWT_ISSUER"),
				Destination: &issuer,
				Usage:       "Issuer claim",
			},
			&cli.DurationFlag{
				Name:        "ttl",
				Destination: &ttl,
				Value:       24 * time.Hour,
				Usage:       "Token lifetime; 0 for no expiry",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			userID := cmd.Args().First()
			if userID == "" {
				return fmt.Errorf("user id is required")
			}
			tok, err := security.SignToken(secret, issuer, userID, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(writer(cmd), tok)
			return err
		},
	}
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
