package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"goa.design/clue/log"

	"github.com/socaity/fastsdk-go/runtime"
	"github.com/socaity/fastsdk-go/telemetry"
)

// demo registers a service from its spec source and invokes one endpoint:
//
//	demo -service https://api.socaity.ai/v1/text2speech -endpoint /infer text=hello
//
// Remaining arguments are key=value input pairs; values that parse as JSON
// are passed decoded so numbers and booleans keep their types.
func main() {
	var (
		source   = flag.String("service", "", "spec source: URL, file path or Replicate model handle")
		endpoint = flag.String("endpoint", "", "endpoint ID or path to invoke")
		debug    = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()
	if *source == "" || *endpoint == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := log.Context(context.Background(), log.WithFormat(log.FormatTerminal))
	if *debug {
		ctx = log.Context(ctx, log.WithDebug())
	}

	// 1) Runtime with structured logging.
	rt := runtime.New(runtime.WithLogger(telemetry.NewClueLogger()))

	// 2) Resolve the spec and register the service.
	def, err := rt.AddService(ctx, *source)
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "add service"})
	}
	log.Info(ctx, log.KV{K: "msg", V: "registered"},
		log.KV{K: "service", V: def.DisplayName},
		log.KV{K: "spec", V: def.Specification},
		log.KV{K: "endpoints", V: len(def.Endpoints)})

	// 3) Run the endpoint and print the decoded result.
	result, err := rt.Run(ctx, def.ID, *endpoint, parseInput(flag.Args()))
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "run"})
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}

func parseInput(args []string) map[string]any {
	input := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			input[key] = decoded
			continue
		}
		input[key] = value
	}
	return input
}
