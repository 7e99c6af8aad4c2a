package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/xstreams"
)

// rawEvent carries a JSON payload given on the command line under an explicit type name.
type rawEvent struct {
	name    string
	payload json.RawMessage
}

func (e rawEvent) EventName() string { return e.name }

func (e rawEvent) MarshalJSON() ([]byte, error) { return e.payload, nil }

func newProduceCmd(a *app) *cobra.Command {
	var (
		namespace string
		key       string
		eventType string
		reqCtx    map[string]string
	)
	cmd := &cobra.Command{
		Use:   "produce <json>...",
		Short: "Append JSON events to a stream",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events := make([]any, len(args))
			for i, arg := range args {
				if !json.Valid([]byte(arg)) {
					return fmt.Errorf("event %d is not valid JSON", i)
				}
				events[i] = rawEvent{name: eventType, payload: json.RawMessage(arg)}
			}

			adapter, err := a.factory.CreateAdapter()
			if err != nil {
				return err
			}
			s := xstreams.NewStreamID(namespace, key)
			res := adapter.QueueMessageBatch(cmd.Context(), s, events, nil, reqCtx)
			fmt.Fprintf(cmd.OutOrStdout(), "appended %d/%d to %s (%s)\n", res.Appended, len(events), s, a.factory.QueueMapper().QueueFor(s))
			return res.Err
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "stream namespace")
	cmd.Flags().StringVarP(&key, "key", "k", "", "stream key")
	cmd.Flags().StringVarP(&eventType, "type", "t", "event", "event type name")
	cmd.Flags().StringToStringVar(&reqCtx, "ctx", nil, "request context entries, name=value")
	_ = cmd.MarkFlagRequired("namespace")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
