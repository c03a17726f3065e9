package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"wpplink/internal/bus"
	"wpplink/internal/connectors"
)

const maxHexPreviewLen = 64

// startTrace prints session diagnostics from the bus until the bus closes.
func startTrace(b bus.MessageBus, w io.Writer) <-chan struct{} {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, topic := range []string{
		connectors.TopicConnStatus,
		connectors.TopicRawFrameOut,
		connectors.TopicRawFrameIn,
		connectors.TopicUnsolicited,
		connectors.TopicAuth,
	} {
		sub := b.Subscribe(topic)
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			bus.Listen(context.Background(), sub, func(raw any) {
				line := traceLine(topic, raw)
				if line == "" {
					return
				}
				mu.Lock()
				_, _ = fmt.Fprintln(w, line)
				mu.Unlock()
			})
		}(topic)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func traceLine(topic string, raw any) string {
	switch ev := raw.(type) {
	case connectors.ConnectionStatus:
		line := fmt.Sprintf("conn  %s %s %s", ev.State, ev.TransportName, ev.Target)
		if ev.Err != "" {
			line += " error=" + ev.Err
		}
		return line
	case connectors.RawFrame:
		dir := "rx"
		if topic == connectors.TopicRawFrameOut {
			dir = "tx"
		}
		return fmt.Sprintf("%s    len=%d %s", dir, ev.Len, previewHex(ev.Hex))
	case connectors.UnsolicitedFrame:
		return fmt.Sprintf("unsol cmd=%d %s", ev.Command, previewHex(ev.Hex))
	case connectors.AuthEvent:
		if ev.Err != "" {
			return fmt.Sprintf("auth  failed error=%s", ev.Err)
		}
		return fmt.Sprintf("auth  ok address=%s challenged=%t", ev.Address, ev.Challenged)
	default:
		return ""
	}
}

func previewHex(raw string) string {
	if len(raw) <= maxHexPreviewLen {
		return raw
	}

	return raw[:maxHexPreviewLen] + "..."
}
