package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func newWatchCommand(e *env) *cobra.Command {
	var (
		baseURL string
		pretty  bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream dataset reload events from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL, err := websocketURL(baseURL, "/ws")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			for {
				if err := watch(ctx, e, wsURL, pretty); err != nil && ctx.Err() == nil {
					log.Printf("[watch] disconnected: %v", err)
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Second): // reconnect
				}
			}
		},
	}
	cmd.Flags().StringVar(&baseURL, "server", serverURL(e.cfg.HTTPAddr), "API server base URL")
	cmd.Flags().BoolVar(&pretty, "pretty", true, "pretty print JSON events")
	return cmd
}

// watch prints events until the connection drops or ctx is done.
func watch(ctx context.Context, e *env, wsURL string, pretty bool) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()
	log.Printf("[watch] connected to %s", wsURL)

	// closing the conn unblocks ReadMessage
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !pretty {
			fmt.Fprintln(e.stdout, string(msg))
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(msg, &obj); err != nil {
			fmt.Fprintln(e.stdout, string(msg))
			continue
		}
		_ = e.printJSON(obj)
	}
}

// serverURL turns a listen address like ":8080" into a dialable URL.
func serverURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: path}).String(), nil
}
