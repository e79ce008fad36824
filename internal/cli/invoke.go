package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/roach88/bindery/internal/ir"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	URL       string
	Token     string
	Stream    string
	PK        string
	Data      string
	RequestID string
	Listen    time.Duration
	Timeout   time.Duration
}

// InvokeResult is the JSON payload of the invoke command.
type InvokeResult struct {
	Reply  json.RawMessage   `json:"reply"`
	Pushes []json.RawMessage `json:"pushes,omitempty"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <action>",
		Short: "Send one request to a running server",
		Long: `Connect to a running server, send a single request frame and print
the reply. With --listen the connection stays open and notifications
pushed to it are printed as they arrive.

Exits 1 when the reply status is 400 or above.

Example:
  bindery invoke list --stream todo
  bindery invoke create --stream todo --data '{"title":"milk"}' --token $TOKEN
  bindery invoke subscribe --stream todo --data '{"action":"update"}' --listen 30s`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeAction(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "ws://localhost:8080/ws", "server websocket URL")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token")
	cmd.Flags().StringVar(&opts.Stream, "stream", "", "stream (resource) name")
	cmd.Flags().StringVar(&opts.PK, "pk", "", "target id for detail actions")
	cmd.Flags().StringVar(&opts.Data, "data", "", "request data as JSON")
	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "request id echoed in the reply")
	cmd.Flags().DurationVar(&opts.Listen, "listen", 0, "keep reading pushes for this long")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "timeout for dial and reply")

	return cmd
}

// buildFrame assembles the request frame for action.
func buildFrame(opts *InvokeOptions, action string) ([]byte, error) {
	frame := ir.Object{"action": ir.String(action)}
	if opts.Stream != "" {
		frame["stream"] = ir.String(opts.Stream)
	}
	if opts.PK != "" {
		frame["pk"] = ir.String(opts.PK)
	}
	if opts.RequestID != "" {
		frame["request_id"] = ir.String(opts.RequestID)
	}
	if opts.Data != "" {
		data, err := ir.DecodeValue([]byte(opts.Data))
		if err != nil {
			return nil, fmt.Errorf("invalid --data JSON: %w", err)
		}
		frame["data"] = data
	}
	return ir.MarshalCanonical(frame)
}

func invokeAction(opts *InvokeOptions, action string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	frame, err := buildFrame(opts, action)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid request", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(parentCtx, opts.Timeout)
	defer cancel()

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	formatter.VerboseLog("Dialing %s", opts.URL)
	ws, resp, err := websocket.DefaultDialer.DialContext(dialCtx, opts.URL, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}
	defer ws.Close()

	formatter.VerboseLog("Sending %s", frame)
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return WrapExitError(ExitCommandError, "failed to send request", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(opts.Timeout))
	_, reply, err := ws.ReadMessage()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read reply", err)
	}

	result := InvokeResult{Reply: reply}
	if opts.Format != "json" {
		fmt.Fprintln(formatter.Writer, string(reply))
	}

	if opts.Listen > 0 {
		deadline := time.Now().Add(opts.Listen)
		_ = ws.SetReadDeadline(deadline)
		for {
			_, push, err := ws.ReadMessage()
			if err != nil {
				var ne interface{ Timeout() bool }
				if !errors.As(err, &ne) || !ne.Timeout() {
					formatter.VerboseLog("Connection closed: %v", err)
				}
				break
			}
			result.Pushes = append(result.Pushes, push)
			if opts.Format != "json" {
				fmt.Fprintln(formatter.Writer, string(push))
			}
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	}

	status, err := replyStatus(reply)
	if err != nil {
		return WrapExitError(ExitCommandError, "malformed reply", err)
	}
	if status >= 400 {
		return NewExitError(ExitFailure, fmt.Sprintf("request failed with status %d", status))
	}
	return nil
}

func replyStatus(reply []byte) (int, error) {
	var r struct {
		ResponseStatus int `json:"response_status"`
	}
	if err := json.Unmarshal(reply, &r); err != nil {
		return 0, err
	}
	return r.ResponseStatus, nil
}
