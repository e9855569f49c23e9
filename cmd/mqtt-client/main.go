package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gomqtt-io/client"
)

// mqtt-client is a small interactive publisher/subscriber over the
// package's asynchronous API: connects, subscribes to a fixed set of
// filters, republishes a heartbeat once a second, and prints every
// inbound message and connection-lost event until interrupted.
func main() {
	clientID := "mqtt-client-" + uuid.NewString()[:8]

	c := mqtt.New(
		mqtt.ServerURIs("tcp://127.0.0.1:1883"),
		mqtt.ClientID(clientID),
		mqtt.AutomaticReconnect(true),
		mqtt.CleanSession(true),
	)
	c.SetCallback(func(msg *mqtt.Message) {
		color.Cyan("[%s] %s", msg.Topic, msg.Payload)
	})
	c.SetConnectionLostHandler(func(err error) {
		color.Red("connection lost: %v", err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := c.Connect().Wait(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		color.Green("connected as %s", clientID)

		sub := c.Subscribe([]string{"+", "device/#"}, []uint8{0, 1}, nil)
		if err := sub.Wait(); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		color.Green("subscribed, granted QoS %v", sub.GrantedQoS)

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				payload := []byte(now.Format(time.RFC3339))
				if err := c.Publish("device/heartbeat", payload, 1, false).Wait(); err != nil {
					log.Printf("publish: %v", err)
				}
			}
		}
	})

	group.Go(func() error {
		return readStdinPublishes(ctx, c)
	})

	group.Go(func() error {
		defer cancel()
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-sig:
			return fmt.Errorf("received signal: %s", s)
		}
	})

	err := group.Wait()
	_ = c.Disconnect(250 * time.Millisecond).Wait()
	if err != nil {
		log.Fatal(err)
	}
}

// readStdinPublishes lets an operator type "topic:payload" lines to
// publish ad hoc messages without restarting the process.
func readStdinPublishes(ctx context.Context, c *mqtt.Client) error {
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			topicName, payload, found := strings.Cut(line, ":")
			if !found {
				color.Yellow("usage: <topic>:<payload>")
				continue
			}
			if err := c.Publish(topicName, []byte(payload), 1, false).Wait(); err != nil {
				color.Red("publish failed: %v", err)
			}
		}
	}
}
