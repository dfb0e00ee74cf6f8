/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// The entry point for the DIAL relay.
// It resolves configuration, wires the client, catalog and service, and dispatches a subcommand.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/dial-relay/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := config.NewConfig()

	// load and validate config
	fs := flag.NewFlagSet("dial-relay", flag.ContinueOnError)
	fs.Usage = func() { usage(fs) }
	klog.InitFlags(fs)
	if err := cfg.Load(fs, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		klog.Errorf("failed to parse config: %v", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		klog.Errorf("failed to validate config: %v", err)
		return 2
	}

	// make sure to flush logs before exiting
	defer klog.Flush()

	if fs.NArg() == 0 {
		usage(fs)
		return 2
	}

	// graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		sig := <-c
		klog.InfoS("Received shutdown signal, starting graceful shutdown...", "signal", sig)
		cancel()
		sig = <-c
		klog.InfoS("Received second shutdown signal, forcing shutdown...", "signal", sig)
		os.Exit(1)
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		klog.ErrorS(err, "Failed to initialize relay")
		return 1
	}
	defer a.Close()

	return a.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "Usage: %s [flags] <command> [args]\n\n", fs.Name())
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  probe                       check the DIAL endpoint and describe the default model")
	fmt.Fprintln(out, "  models                      list the models the endpoint offers")
	fmt.Fprintln(out, "  describe <model>            print the request dialect of a model")
	fmt.Fprintln(out, "  ask [-model m] <prompt>...  complete one or more prompts")
	fmt.Fprintln(out, "  serve                       run the HTTP relay server")
	fmt.Fprintln(out, "\nFlags:")
	fs.PrintDefaults()
}
