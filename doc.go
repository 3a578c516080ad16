/*
Package canopy is a tree-of-thought orchestration engine for LLM-driven code
generation.

A task is routed to a named worker. The worker drives a hierarchical state
machine through plan, propose, execute and verify phases, fanning completions
out to the model and settling every choice with anonymized votes. Code runs
step by step in a sandbox that keeps its state across steps, and each run is
condensed into a single artifact.

# Usage

Build an Engine from configuration and hand it tasks:

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/canopy"
		"github.com/aretw0/canopy/internal/config"
	)

	func main() {
		cfg, err := config.Load("canopy.yaml")
		if err != nil {
			log.Fatal(err)
		}

		engine, err := canopy.New(context.Background(), cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer engine.Close()

		out, err := engine.Handle(context.Background(), "print the first ten primes")
		if err != nil {
			log.Fatal(err)
		}
		log.Println(out.Worker, out.Result.Status)
	}

The same Engine backs the `canopy` CLI, the HTTP adapter and the MCP server.
*/
package canopy
