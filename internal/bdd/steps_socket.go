package bdd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/chirino/conversation-service/internal/client"
	"github.com/chirino/conversation-service/internal/realtime"
	"github.com/chirino/conversation-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

const socketWait = 5 * time.Second

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		so := &socketSteps{s: s, conns: map[string]*client.SocketEmitter{}}
		ctx.Step(`^user "([^"]*)" connects to the realtime socket$`, so.userConnects)
		ctx.Step(`^user "([^"]*)" sends "([^"]*)" to "([^"]*)" in conversation "([^"]*)"$`, so.userSends)
		ctx.Step(`^user "([^"]*)" should receive "([^"]*)" from "([^"]*)"$`, so.userShouldReceive)
		ctx.Step(`^user "([^"]*)" should receive nothing$`, so.userShouldReceiveNothing)
		ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
			for _, c := range so.conns {
				_ = c.Close()
			}
			return ctx, nil
		})
	})
}

type socketSteps struct {
	s     *cucumber.TestScenario
	conns map[string]*client.SocketEmitter
}

func (so *socketSteps) conn(userID string) (*client.SocketEmitter, error) {
	c := so.conns[userID]
	if c == nil {
		return nil, fmt.Errorf("user %q is not connected", userID)
	}
	return c, nil
}

// userConnects dials the socket and waits for a self-addressed frame to come
// back, which proves the hub has registered the connection.
func (so *socketSteps) userConnects(userID string) error {
	token := userID
	if u := so.s.Users[userID]; u != nil {
		token = u.Token
	}

	ctx, cancel := context.WithTimeout(context.Background(), socketWait)
	defer cancel()
	c, err := client.DialSocket(ctx, client.NewAPI(so.s.Suite.APIURL, token))
	if err != nil {
		return err
	}
	so.conns[userID] = c

	ping := realtime.NewMessage{Receiver: userID, Text: "ready"}
	if err := c.Emit(ctx, realtime.EventNewMessage, ping); err != nil {
		return err
	}
	msg, err := c.Receive(ctx)
	if err != nil {
		return fmt.Errorf("socket for %q did not become ready: %w", userID, err)
	}
	if msg.Text != "ready" {
		return fmt.Errorf("unexpected frame while connecting: %+v", msg)
	}
	return nil
}

func (so *socketSteps) userSends(senderID, text, receiverID, conversationID string) error {
	c, err := so.conn(senderID)
	if err != nil {
		return err
	}
	conversationID, err = so.s.Expand(conversationID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), socketWait)
	defer cancel()
	return c.Emit(ctx, realtime.EventNewMessage, realtime.NewMessage{
		ConversationID: conversationID,
		Receiver:       receiverID,
		Text:           text,
	})
}

func (so *socketSteps) userShouldReceive(userID, text, senderID string) error {
	c, err := so.conn(userID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), socketWait)
	defer cancel()
	msg, err := c.Receive(ctx)
	if err != nil {
		return fmt.Errorf("user %q received nothing: %w", userID, err)
	}
	if msg.Text != text || msg.Sender != senderID {
		return fmt.Errorf("user %q expected %q from %q, got %q from %q", userID, text, senderID, msg.Text, msg.Sender)
	}
	so.s.Variables["lastMessage"] = msg
	return nil
}

// userShouldReceiveNothing leaves the connection unusable afterwards, so it
// belongs at the end of a scenario.
func (so *socketSteps) userShouldReceiveNothing(userID string) error {
	c, err := so.conn(userID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	msg, err := c.Receive(ctx)
	if err == nil {
		return fmt.Errorf("user %q unexpectedly received %+v", userID, msg)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	return fmt.Errorf("user %q socket failed: %w", userID, err)
}
