// This command is only used for local testing: it posts a tool invocation
// to a locally running server and prints the response envelope.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	ServerURL string `env:"UTIL_SERVER_URL, default=http://localhost:8080"`
}

func main() {
	cfg := Config{}
	err := envconfig.Process(context.Background(), &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <tool> [name=value ...]\n", os.Args[0])
		os.Exit(1)
	}

	tool := os.Args[1]
	params := map[string]any{}
	for _, arg := range os.Args[2:] {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			fmt.Fprintf(os.Stderr, "invalid parameter %q, expected name=value\n", arg)
			os.Exit(1)
		}
		params[name] = value
	}

	body, err := json.Marshal(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error encoding parameters: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(
		cfg.ServerURL+"/tools/"+tool,
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	response, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading response: %v\n", err)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, response, "", "  "); err != nil {
		// not JSON, print as-is
		fmt.Println(string(response))
		return
	}

	fmt.Printf("%s (%s)\n%s\n", resp.Status, tool, pretty.String())
}
