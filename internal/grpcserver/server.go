// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package grpcserver

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// shutdownGrace bounds how long Run waits for outstanding RPCs to finish
// gracefully once ctx is cancelled before forcing termination, per §4.F
// step 2: "wait up to 5s for outstanding RPCs to complete; on timeout,
// force termination."
const shutdownGrace = 5 * time.Second

type App struct {
	ls     net.Listener
	server *grpc.Server
}

func NewApp(ls net.Listener, s *grpc.Server) *App {
	return &App{
		ls:     ls,
		server: s,
	}
}

func (a *App) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return a.server.Serve(a.ls)
	})
	eg.Go(func() error {
		<-egCtx.Done()

		stopped := make(chan struct{})
		go func() {
			a.server.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(shutdownGrace):
			// Graceful shutdown didn't finish within shutdownGrace: force.
			a.server.Stop()
			<-stopped
		}
		return nil
	})

	err := eg.Wait()
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}
