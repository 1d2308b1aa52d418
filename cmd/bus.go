// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/ibuscope/pkg/ibus"
)

// busEvent is one decode result, captured on the consumer goroutine together
// with the decoder state at that moment.
type busEvent struct {
	at               time.Time
	msg              ibus.Message
	decodeErr        error
	validationErrors []ibus.ValidationError
	synchronized     bool
	skippedBytes     int
}

// newStream creates a stream sized and parsed by the root flags
func newStream() *ibus.Stream {
	return ibus.NewStream(bufferSize, busRole)
}

// interruptContext returns a context cancelled on SIGINT or SIGTERM
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// startPump copies bytes from conn into stream until the connection fails or
// ctx is done. The returned channel receives the pump result once.
func startPump(ctx context.Context, conn Connection, stream *ibus.Stream) <-chan error {
	done := make(chan error, 1)
	go func() {
		err := stream.Pump(ctx, conn)
		switch {
		case err == nil, isClosed(err), ctx.Err() != nil:
			logger.Info().Msg("connection closed")
			err = nil
		default:
			logger.Error().Err(err).Msg("read failed")
		}
		done <- err
	}()
	return done
}

// closeOnDone closes conn when ctx is done so a blocked Read returns
func closeOnDone(ctx context.Context, conn Connection) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
}

// eventHandler builds busEvents for each decode result and passes them to
// emit. It runs on the stream consumer goroutine, which owns the decoder.
func eventHandler(stream *ibus.Stream, emit func(busEvent)) ibus.Handler {
	return func(msg ibus.Message, err error) {
		d := stream.Decoder()
		ev := busEvent{
			at:           time.Now(),
			msg:          msg,
			decodeErr:    err,
			synchronized: d.Synchronized(),
			skippedBytes: d.SkippedBytes(),
		}
		if msg != nil {
			ev.validationErrors = ibus.ValidateMessage(msg)
		}
		emit(ev)
	}
}

// chanEmitter sends events to out, giving up when ctx is done
func chanEmitter(ctx context.Context, out chan<- busEvent) func(busEvent) {
	return func(ev busEvent) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}
}
